// Package spec models one test definition: the program to build, how to
// build it, where it may run, and the ordered stages whose outputs are
// checked after it runs.
//
// Specs are read from native section-based files (see package cfgfile) or
// from shim sources that carry their expectations in a leading discard
// block. Loading never fails; problems are logged and produce a spec that
// the driver reports as INVALID.
package spec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"

	"github.com/roach88/gauntlet/internal/cfgfile"
	"github.com/roach88/gauntlet/internal/compare"
	"github.com/roach88/gauntlet/internal/config"
	"github.com/roach88/gauntlet/internal/identity"
)

// ThreadMode records an explicit threading choice.
type ThreadMode string

const (
	ThreadsDefault ThreadMode = ""
	ThreadsOn      ThreadMode = "on"
	ThreadsOff     ThreadMode = "off"
)

// DefaultOS lists the platforms a spec applies to unless it names others.
var DefaultOS = []string{"linux", "darwin", "windows"}

// PrimarySection is the name of the first output section.
const PrimarySection = "Output"

// Stage is one run of the compiled binary and the outputs it must produce.
type Stage struct {
	// Name is the section name without the "Output" prefix, with
	// underscores turned into spaces.
	Name string

	// Section is the raw section name.
	Section string

	// Args are passed to the binary.
	Args []string

	// Outputs maps a channel to its expected text.
	Outputs compare.Outputs

	section *cfgfile.Section
}

// Spec is one test definition.
type Spec struct {
	Name    string
	Path    string
	Program string

	// Flags are compiler arguments in the order they were declared.
	Flags []string

	OS []string

	CompileError string
	ErrorFile    string
	ErrorLine    int
	ErrorColumn  int

	// MaxSize bounds the binary size in bytes; zero means no bound.
	MaxSize int64

	// TimestampPeg overrides the volatile-substring pattern when
	// TimestampPegSet is true. An empty pattern disables elision.
	TimestampPeg    string
	TimestampPegSet bool

	Skip     bool
	Mode     config.BuildMode
	Threads  ThreadMode
	Affinity bool
	Check    compare.CheckMode

	// Shim is set for specs read from a discard block. ShimCmd is the
	// optional compiler command template of such a spec.
	Shim    bool
	ShimCmd string

	Stages []*Stage

	// Identity is the content hash of the build configuration, set by
	// Prepare.
	Identity string

	doc      *cfgfile.Document
	prepared bool
}

func newSpec(path, name string) *Spec {
	return &Spec{
		Name:  name,
		Path:  path,
		OS:    slices.Clone(DefaultOS),
		Check: compare.CheckExact,
	}
}

// Valid reports whether the spec names a program.
func (s *Spec) Valid() bool {
	return s.Program != ""
}

// AppliesTo reports whether the spec may run on goos.
func (s *Spec) AppliesTo(goos string) bool {
	return slices.Contains(s.OS, goos)
}

// Head returns the last stage, which runs after all the others, or nil.
func (s *Spec) Head() *Stage {
	if len(s.Stages) == 0 {
		return nil
	}
	return s.Stages[len(s.Stages)-1]
}

// Child returns the stage that must pass before stage i runs, or nil for
// the first stage.
func (s *Spec) Child(i int) *Stage {
	if i <= 0 || i > len(s.Stages) {
		return nil
	}
	return s.Stages[i-1]
}

// Pattern returns the compiled volatile-substring pattern, or nil when
// elision is disabled.
func (s *Spec) Pattern() (*regexp.Regexp, error) {
	if !s.TimestampPegSet {
		return compare.DefaultPattern(), nil
	}
	if s.TimestampPeg == "" {
		return nil, nil
	}
	re, err := regexp.Compile(s.TimestampPeg)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp_peg: %w", err)
	}
	return re, nil
}

// Dir is the directory holding the test file, its source and its binary.
func (s *Spec) Dir() string {
	return filepath.Dir(s.Path)
}

// SourcePath returns the program source. A shim is its own source.
func (s *Spec) SourcePath(ext string) string {
	if s.Shim {
		return s.Path
	}
	return filepath.Join(s.Dir(), s.Program+ext)
}

// BinaryPath returns where the compiled program is written. The identity
// prefix keeps binaries of different configurations apart.
func (s *Spec) BinaryPath() string {
	name := s.Program
	if s.Identity != "" {
		name += "_" + identity.Short(s.Identity)
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(s.Dir(), name)
}

// Rewritable reports whether expected outputs can be written back.
func (s *Spec) Rewritable() bool {
	return !s.Shim && s.doc != nil
}

// Prepare appends the build-mode and threading flags chosen by the spec, or
// by cfg where the spec leaves them open, and computes the spec identity.
// It is a no-op after the first call.
func (s *Spec) Prepare(cfg *config.Config) error {
	if s.prepared {
		return nil
	}

	mode := s.Mode
	if mode == config.ModeDefault {
		mode = cfg.Mode
	}
	if mode != config.ModeDefault {
		s.Flags = append(s.Flags, "--define:"+string(mode))
	}

	threads := s.Threads
	if s.Affinity {
		threads = ThreadsOn
	}
	if threads == ThreadsDefault && cfg.Threads {
		threads = ThreadsOn
	}
	if threads != ThreadsDefault {
		s.Flags = append(s.Flags, "--threads:"+string(threads))
	}
	if s.Affinity {
		s.Flags = append(s.Flags, "--define:affinity")
	}

	configHash, err := cfg.Identity()
	if err != nil {
		return err
	}
	id, err := identity.Spec(identity.SpecInput{
		ConfigHash: configHash,
		Program:    s.Program,
		Flags:      s.Flags,
		Command:    s.ShimCmd,
	})
	if err != nil {
		return err
	}
	s.Identity = id
	s.prepared = true
	return nil
}
