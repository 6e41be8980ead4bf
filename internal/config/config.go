// Package config holds the ambient runner configuration: where tests live,
// which compiler builds them, the build mode, and which tests to run.
//
// Values come from built-in defaults, an optional CUE file and command-line
// flags, in increasing order of precedence. The CUE file is validated
// against a closed schema so that typos are reported instead of ignored.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/gauntlet/internal/identity"
)

// FileName is the configuration file looked up in the search path.
const FileName = "gauntlet.cue"

// BuildMode selects the optimization profile passed to the compiler.
type BuildMode string

const (
	ModeDefault BuildMode = ""
	ModeRelease BuildMode = "release"
	ModeDanger  BuildMode = "danger"
	ModeDebug   BuildMode = "debug"
)

// Valid reports whether m is a known build mode.
func (m BuildMode) Valid() bool {
	switch m {
	case ModeDefault, ModeRelease, ModeDanger, ModeDebug:
		return true
	}
	return false
}

// Config is the ambient configuration consumed by the driver.
type Config struct {
	// SearchPath is the directory scanned for tests. Test names are
	// relative to it.
	SearchPath string `json:"search_path"`

	// Compiler is the compiler executable.
	Compiler string `json:"compiler"`

	// SourceExt is the extension of program sources, including the dot.
	SourceExt string `json:"source_ext"`

	// NativeExt is the extension of native test-definition files.
	NativeExt string `json:"native_ext"`

	// BaselineOptions precede every spec's own flags.
	BaselineOptions []string `json:"baseline_options"`

	// Mode is the build mode used when a spec does not choose one.
	Mode BuildMode `json:"mode"`

	// Threads enables threading when a spec does not choose.
	Threads bool `json:"threads"`

	// Update enables rewrite mode.
	Update bool `json:"update"`

	// Include, when non-empty, restricts the run to matching test names.
	Include []string `json:"include"`

	// Exclude skips matching test names.
	Exclude []string `json:"exclude"`

	// Database is the optional result-history database path.
	Database string `json:"database"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		SearchPath:      ".",
		Compiler:        "nim",
		SourceExt:       ".nim",
		NativeExt:       ".cfg",
		BaselineOptions: []string{"--hints:off", "--colors:off"},
	}
}

// fileConfig mirrors Config with optional fields so that a file only
// overrides what it sets.
type fileConfig struct {
	SearchPath      *string    `json:"search_path"`
	Compiler        *string    `json:"compiler"`
	SourceExt       *string    `json:"source_ext"`
	NativeExt       *string    `json:"native_ext"`
	BaselineOptions []string   `json:"baseline_options"`
	Mode            *BuildMode `json:"mode"`
	Threads         *bool      `json:"threads"`
	Update          *bool      `json:"update"`
	Include         []string   `json:"include"`
	Exclude         []string   `json:"exclude"`
	Database        *string    `json:"database"`
}

const schemaSource = `
#Config: {
	search_path?:      string
	compiler?:         string & != ""
	source_ext?:       =~"^\\."
	native_ext?:       =~"^\\."
	baseline_options?: [...string]
	mode?:             "" | "release" | "danger" | "debug"
	threads?:          bool
	update?:           bool
	include?:          [...string]
	exclude?:          [...string]
	database?:         string
}
`

// Load reads a CUE configuration file and applies it over the defaults.
// Relative search_path and database values are resolved against the
// file's directory.
func Load(file string) (*Config, error) {
	cfg := Defaults()
	if err := cfg.apply(file); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDir loads FileName from dir when it exists and returns the defaults,
// with SearchPath set to dir, otherwise.
func LoadDir(dir string) (*Config, error) {
	file := filepath.Join(dir, FileName)
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		cfg := Defaults()
		cfg.SearchPath = dir
		return cfg, nil
	}
	cfg := Defaults()
	cfg.SearchPath = dir
	if err := cfg.apply(file); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(file))
	if err := value.Err(); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", file, err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %w", file, err)
	}

	var fc fileConfig
	if err := unified.Decode(&fc); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", file, err)
	}

	base := filepath.Dir(file)
	if fc.SearchPath != nil {
		c.SearchPath = resolve(base, *fc.SearchPath)
	}
	if fc.Compiler != nil {
		c.Compiler = *fc.Compiler
	}
	if fc.SourceExt != nil {
		c.SourceExt = *fc.SourceExt
	}
	if fc.NativeExt != nil {
		c.NativeExt = *fc.NativeExt
	}
	if fc.BaselineOptions != nil {
		c.BaselineOptions = fc.BaselineOptions
	}
	if fc.Mode != nil {
		c.Mode = *fc.Mode
	}
	if fc.Threads != nil {
		c.Threads = *fc.Threads
	}
	if fc.Update != nil {
		c.Update = *fc.Update
	}
	if fc.Include != nil {
		c.Include = fc.Include
	}
	if fc.Exclude != nil {
		c.Exclude = fc.Exclude
	}
	if fc.Database != nil {
		c.Database = resolve(base, *fc.Database)
	}
	return nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks values that flags may have set.
func (c *Config) Validate() error {
	if c.Compiler == "" {
		return fmt.Errorf("compiler must not be empty")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid build mode %q", c.Mode)
	}
	for _, p := range append(append([]string{}, c.Include...), c.Exclude...) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("invalid name pattern %q: %w", p, err)
		}
	}
	return nil
}

// Excluded reports whether the test called name should not run. A pattern
// matches either the whole slash-separated name or its last element.
func (c *Config) Excluded(name string) bool {
	for _, p := range c.Exclude {
		if matchName(p, name) {
			return true
		}
	}
	if len(c.Include) == 0 {
		return false
	}
	for _, p := range c.Include {
		if matchName(p, name) {
			return false
		}
	}
	return true
}

func matchName(pattern, name string) bool {
	if ok, _ := path.Match(pattern, name); ok {
		return true
	}
	base := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		base = name[i+1:]
	}
	ok, _ := path.Match(pattern, base)
	return ok
}

// Identity returns the per-configuration hash. It covers every setting that
// changes what the compiler produces, and nothing else.
func (c *Config) Identity() (string, error) {
	baseline := c.BaselineOptions
	if baseline == nil {
		baseline = []string{}
	}
	return identity.Config(map[string]any{
		"compiler":   c.Compiler,
		"source_ext": c.SourceExt,
		"baseline":   baseline,
		"mode":       string(c.Mode),
		"threads":    c.Threads,
	})
}
