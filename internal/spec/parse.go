package spec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"

	"github.com/roach88/gauntlet/internal/cfgfile"
	"github.com/roach88/gauntlet/internal/compare"
	"github.com/roach88/gauntlet/internal/config"
)

// Load reads the test file at path. root is the search root used to derive
// the test name. Native files (cfg.NativeExt) are parsed as section-based
// documents; anything else is read as a shim.
//
// Load never fails. Unreadable or malformed files are logged and yield a
// spec without a program.
func Load(path, root string, cfg *config.Config, logger *slog.Logger) *Spec {
	if logger == nil {
		logger = slog.Default()
	}
	name := TestName(path, root)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("cannot read test file", "test", name, "error", err)
		return newSpec(path, name)
	}

	if filepath.Ext(path) == cfg.NativeExt {
		s, err := Parse(path, name, data, logger)
		if err != nil {
			logger.Warn("malformed test file", "test", name, "error", err)
			return newSpec(path, name)
		}
		return s
	}

	s, err := ParseShim(path, name, data)
	if err != nil {
		logger.Warn("malformed shim header", "test", name, "error", err)
	}
	return s
}

// TestName derives a test name from its path: relative to root, slash
// separated, without extension.
func TestName(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

// Parse reads a native test file. Syntax errors are returned; problems with
// individual entries are logged and the entry is ignored.
func Parse(path, name string, data []byte, logger *slog.Logger) (*Spec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := cfgfile.ParseBytes(data, path)
	if err != nil {
		return nil, err
	}

	s := newSpec(path, name)
	s.doc = doc
	log := logger.With("test", name)

	for _, e := range doc.Header.Entries {
		var err error
		switch e.Kind {
		case cfgfile.KeyValue:
			err = s.applyKey(e.Key, e.Value)
		case cfgfile.Option:
			err = s.applyOption(e.Key, e.Value)
		}
		if err != nil {
			log.Warn("ignoring header entry", "line", e.Line, "key", e.Key, "error", err)
		}
	}

	for _, sec := range doc.Sections {
		if !isOutputSection(sec.Name) {
			log.Debug("ignoring section", "section", sec.Name, "line", sec.Line)
			continue
		}
		s.Stages = append(s.Stages, newStage(sec, log))
	}
	return s, nil
}

func isOutputSection(name string) bool {
	return len(name) >= len(PrimarySection) && strings.EqualFold(name[:len(PrimarySection)], PrimarySection)
}

// StageName derives a stage name from an output section name.
func StageName(section string) string {
	if !isOutputSection(section) {
		return strings.TrimSpace(section)
	}
	name := strings.ReplaceAll(section[len(PrimarySection):], "_", " ")
	return strings.TrimSpace(name)
}

func newStage(sec *cfgfile.Section, log *slog.Logger) *Stage {
	st := &Stage{
		Name:    StageName(sec.Name),
		Section: sec.Name,
		Outputs: compare.Outputs{},
		section: sec,
	}
	for _, e := range sec.Entries {
		switch e.Kind {
		case cfgfile.Option:
			log.Warn("ignoring option in output section", "section", sec.Name, "line", e.Line, "option", e.Key)
		case cfgfile.KeyValue:
			if strings.EqualFold(e.Key, "args") {
				args, err := shellquote.Split(e.Value)
				if err != nil {
					log.Warn("cannot split args, splitting on spaces", "section", sec.Name, "line", e.Line, "error", err)
					args = strings.Fields(e.Value)
				}
				st.Args = args
				continue
			}
			if _, dup := st.Outputs[e.Key]; dup {
				log.Warn("duplicate output channel, keeping the first", "section", sec.Name, "line", e.Line, "channel", e.Key)
				continue
			}
			st.Outputs[e.Key] = e.Value
		}
	}
	return st
}

// headerKey is a recognized header entry.
type headerKey struct {
	apply func(s *Spec, value string) error

	// option marks keys that may also be written as options, such as
	// "--release" or a bare "threads".
	option bool
}

var headerKeys = map[string]headerKey{
	"program":       {apply: func(s *Spec, v string) error { s.Program = v; return nil }},
	"timestamp_peg": {apply: (*Spec).setTimestampPeg},
	"max_size":      {apply: (*Spec).setMaxSize},
	"compile_error": {apply: func(s *Spec, v string) error { s.CompileError = v; return nil }},
	"error_file":    {apply: func(s *Spec, v string) error { s.ErrorFile = v; return nil }},
	"error_line":    {apply: func(s *Spec, v string) error { return setPositive(&s.ErrorLine, v) }},
	"error_column":  {apply: func(s *Spec, v string) error { return setPositive(&s.ErrorColumn, v) }},
	"os":            {apply: (*Spec).setOS},
	"skip":          {apply: boolSetter(func(s *Spec, b bool) { s.Skip = b }), option: true},
	"affinity":      {apply: boolSetter(func(s *Spec, b bool) { s.Affinity = b }), option: true},
	"threads":       {apply: boolSetter(func(s *Spec, b bool) { s.Threads = threadMode(b) }), option: true},
	"nothreads":     {apply: boolSetter(func(s *Spec, b bool) { s.Threads = threadMode(!b) }), option: true},
	"release":       {apply: modeSetter(config.ModeRelease), option: true},
	"danger":        {apply: modeSetter(config.ModeDanger), option: true},
	"debug":         {apply: modeSetter(config.ModeDebug), option: true},
}

func (s *Spec) applyKey(key, value string) error {
	if k, ok := headerKeys[key]; ok {
		return k.apply(s, value)
	}
	s.Flags = append(s.Flags, "--define:"+key+":"+value)
	return nil
}

func (s *Spec) applyOption(name, value string) error {
	if k, ok := headerKeys[name]; ok && k.option {
		return k.apply(s, value)
	}
	if value == "" {
		s.Flags = append(s.Flags, "--"+name)
	} else {
		s.Flags = append(s.Flags, "--"+name+":"+value)
	}
	return nil
}

func (s *Spec) setTimestampPeg(v string) error {
	if v != "" {
		if _, err := regexp.Compile(v); err != nil {
			return err
		}
	}
	s.TimestampPeg = v
	s.TimestampPegSet = true
	return nil
}

func (s *Spec) setMaxSize(v string) error {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return err
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("max_size %s out of range", v)
	}
	s.MaxSize = int64(n)
	return nil
}

var osAliases = map[string]string{
	"macosx": "darwin",
	"macos":  "darwin",
	"osx":    "darwin",
	"mac":    "darwin",
	"win":    "windows",
}

func (s *Spec) setOS(v string) error {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return fmt.Errorf("empty os list")
	}
	s.OS = s.OS[:0]
	for _, f := range fields {
		f = strings.ToLower(f)
		if alias, ok := osAliases[f]; ok {
			f = alias
		}
		s.OS = append(s.OS, f)
	}
	return nil
}

func setPositive(dst *int, v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	*dst = n
	return nil
}

func boolSetter(set func(*Spec, bool)) func(*Spec, string) error {
	return func(s *Spec, v string) error {
		b, err := parseBool(v)
		if err != nil {
			return err
		}
		set(s, b)
		return nil
	}
}

func modeSetter(mode config.BuildMode) func(*Spec, string) error {
	return boolSetter(func(s *Spec, on bool) {
		switch {
		case on:
			s.Mode = mode
		case s.Mode == mode:
			s.Mode = config.ModeDefault
		}
	})
}

func threadMode(on bool) ThreadMode {
	if on {
		return ThreadsOn
	}
	return ThreadsOff
}

// parseBool accepts the usual spellings plus on/off and yes/no. An empty
// value means true.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "on", "yes", "y":
		return true, nil
	case "off", "no", "n":
		return false, nil
	}
	return strconv.ParseBool(v)
}

// HasShimHeader reports whether r, after leading whitespace, starts with a
// discard block. It reads no further than the opening marker.
func HasShimHeader(r io.Reader) bool {
	br := bufio.NewReader(r)
	for {
		c, err := br.ReadByte()
		if err != nil {
			return false
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			if err := br.UnreadByte(); err != nil {
				return false
			}
			break
		}
	}
	marker, err := br.Peek(len(shimOpen))
	return err == nil && string(marker) == shimOpen
}

func hasShimHeader(data []byte) bool {
	return HasShimHeader(bytes.NewReader(data))
}
