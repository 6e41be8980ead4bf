// Package cfgfile reads and writes the section-based configuration format
// used by native test-definition files.
//
// # Format
//
//	# comment            ; also a comment
//	program = hello
//	--threads:on         option entry with a value
//	skip                 option entry without a value
//
//	[Output]
//	args = "-v input.txt"
//	stdout = """
//	Hello
//	"""
//
// Entries before the first section belong to the header. Values are bare
// (trimmed to the end of the line), "double quoted" with \n \t \r \\ \" and
// \xHH escapes, r"raw" with "" for a literal quote, or """triple quoted"""
// spanning lines; a newline directly after the opening """ is dropped.
//
// A Document remembers the source text of every entry, so encoding an
// unmodified document reproduces its input. Only entries changed through
// Set or SetValue are re-formatted.
package cfgfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EntryKind distinguishes the kinds of lines in a document.
type EntryKind int

const (
	// KeyValue is a "key = value" or "key: value" entry.
	KeyValue EntryKind = iota
	// Option is a "--name", "--name:value" or bare-word entry.
	Option
	// Trivia is a blank or comment line.
	Trivia
)

func (k EntryKind) String() string {
	switch k {
	case KeyValue:
		return "key"
	case Option:
		return "option"
	case Trivia:
		return "trivia"
	default:
		return fmt.Sprintf("EntryKind(%d)", int(k))
	}
}

// Entry is one logical entry of a section.
type Entry struct {
	Kind  EntryKind
	Key   string
	Value string

	// Line is the 1-based source line, 0 for entries added after parsing.
	Line int

	// raw holds the verbatim source lines; nil once the entry is modified.
	raw []string
}

// SetValue replaces the entry's value.
func (e *Entry) SetValue(v string) {
	if e.Value == v && e.raw != nil {
		return
	}
	e.Value = v
	e.raw = nil
}

// String renders the entry as it will be encoded.
func (e *Entry) String() string {
	if e.raw != nil {
		return strings.Join(e.raw, "\n")
	}
	switch e.Kind {
	case Option:
		if e.Value == "" {
			return "--" + e.Key
		}
		return "--" + e.Key + ":" + FormatValue(e.Value)
	case Trivia:
		return e.Value
	default:
		return e.Key + " = " + FormatValue(e.Value)
	}
}

// Section is a named block of entries. The header section has an empty name.
type Section struct {
	Name    string
	Line    int
	Entries []*Entry

	raw string
}

// Lookup returns the first key/value entry named key. With fold set the
// match is case-insensitive.
func (s *Section) Lookup(key string, fold bool) *Entry {
	for _, e := range s.Entries {
		if e.Kind != KeyValue {
			continue
		}
		if e.Key == key || (fold && strings.EqualFold(e.Key, key)) {
			return e
		}
	}
	return nil
}

// Set updates the first key/value entry named key, or adds one after the
// last non-trivia entry of the section.
func (s *Section) Set(key, value string) *Entry {
	if e := s.Lookup(key, false); e != nil {
		e.SetValue(value)
		return e
	}
	e := &Entry{Kind: KeyValue, Key: key, Value: value}
	at := len(s.Entries)
	for at > 0 && s.Entries[at-1].Kind == Trivia {
		at--
	}
	s.Entries = append(s.Entries, nil)
	copy(s.Entries[at+1:], s.Entries[at:])
	s.Entries[at] = e
	return e
}

// Delete removes every key/value entry named key and reports whether any
// was removed.
func (s *Section) Delete(key string) bool {
	kept := s.Entries[:0]
	removed := false
	for _, e := range s.Entries {
		if e.Kind == KeyValue && e.Key == key {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.Entries = kept
	return removed
}

// Document is a parsed configuration file.
type Document struct {
	// Name identifies the source in error messages, usually its path.
	Name string

	// Header holds the entries that precede the first section.
	Header *Section

	// Sections lists named sections in file order. Names need not be unique.
	Sections []*Section
}

// Section returns the first section with the given name, or nil.
func (d *Document) Section(name string) *Section {
	for _, s := range d.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Encode writes the document to w.
func (d *Document) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	writeEntries(bw, d.Header)
	for _, s := range d.Sections {
		header := s.raw
		if header == "" {
			header = "[" + s.Name + "]"
		}
		bw.WriteString(header)
		bw.WriteByte('\n')
		writeEntries(bw, s)
	}
	return bw.Flush()
}

func writeEntries(bw *bufio.Writer, s *Section) {
	if s == nil {
		return
	}
	for _, e := range s.Entries {
		bw.WriteString(e.String())
		bw.WriteByte('\n')
	}
}

// Bytes returns the encoded document.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail.
	_ = d.Encode(&buf)
	return buf.Bytes()
}

// Save writes the document to path atomically: it is written to a temporary
// file in the same directory and renamed over path.
func (d *Document) Save(path string) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := d.Encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// FormatValue renders v so that parsing it yields v again. Values that end
// in a newline use the triple-quoted form, whose closing quotes then sit on a
// line of their own; everything else is double quoted.
func FormatValue(v string) string {
	if strings.HasSuffix(v, "\n") && !strings.Contains(v, `"""`) && !strings.ContainsRune(v, '\r') {
		return `"""` + "\n" + v + `"""`
	}
	return Quote(v)
}

// Quote renders v as a double-quoted value with escapes.
func Quote(v string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
