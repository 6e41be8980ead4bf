package cfgfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// SyntaxError reports malformed input with its location.
type SyntaxError struct {
	File string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// Parse reads a document from r. name is used in error messages.
func Parse(r io.Reader, name string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return ParseBytes(data, name)
}

// ParseBytes parses a document held in memory.
func ParseBytes(data []byte, name string) (*Document, error) {
	p := &parser{name: name, lines: splitLines(data)}
	return p.parse()
}

// splitLines splits data on LF, dropping CR line-ending remnants and the
// empty element after a final newline.
func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

type parser struct {
	name  string
	lines []string
	pos   int // index of the line being parsed
}

func (p *parser) errorf(idx int, format string, args ...any) error {
	return &SyntaxError{File: p.name, Line: idx + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parse() (*Document, error) {
	doc := &Document{Name: p.name, Header: &Section{}}
	cur := doc.Header

	for p.pos < len(p.lines) {
		start := p.pos
		line := strings.TrimSpace(p.lines[start])

		switch {
		case line == "" || line[0] == '#' || line[0] == ';':
			cur.Entries = append(cur.Entries, &Entry{
				Kind:  Trivia,
				Value: p.lines[start],
				Line:  start + 1,
				raw:   p.lines[start : start+1],
			})
			p.pos++

		case line[0] == '[':
			if !strings.HasSuffix(line, "]") {
				return nil, p.errorf(start, "unterminated section header %q", line)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, p.errorf(start, "empty section name")
			}
			cur = &Section{Name: name, Line: start + 1, raw: p.lines[start]}
			doc.Sections = append(doc.Sections, cur)
			p.pos++

		default:
			e, err := p.parseEntry(line)
			if err != nil {
				return nil, err
			}
			e.Line = start + 1
			e.raw = p.lines[start:p.pos:p.pos]
			cur.Entries = append(cur.Entries, e)
		}
	}
	return doc, nil
}

// parseEntry parses the entry starting on the current line and advances
// past every line it consumed.
func (p *parser) parseEntry(line string) (*Entry, error) {
	kind := KeyValue
	body := line
	if strings.HasPrefix(line, "--") {
		kind = Option
		body = line[2:]
	}

	i := strings.IndexAny(body, "=:")
	if i < 0 {
		name := strings.TrimSpace(body)
		if name == "" || strings.ContainsAny(name, " \t\"") {
			return nil, p.errorf(p.pos, "expected \"key = value\" or an option, got %q", line)
		}
		p.pos++
		return &Entry{Kind: Option, Key: name}, nil
	}

	key := strings.TrimSpace(body[:i])
	if key == "" {
		return nil, p.errorf(p.pos, "missing key before %q", body[i:i+1])
	}
	value, err := p.parseValue(body[i+1:])
	if err != nil {
		return nil, err
	}
	return &Entry{Kind: kind, Key: key, Value: value}, nil
}

func (p *parser) parseValue(s string) (string, error) {
	s = strings.TrimLeft(s, " \t")
	switch {
	case strings.HasPrefix(s, `"""`):
		return p.parseTriple(s[3:])
	case strings.HasPrefix(s, `r"`), strings.HasPrefix(s, `R"`):
		v, rest, err := unquoteRaw(s[2:])
		if err != nil {
			return "", p.errorf(p.pos, "%v", err)
		}
		return p.finish(v, rest)
	case strings.HasPrefix(s, `"`):
		v, rest, err := unquote(s[1:])
		if err != nil {
			return "", p.errorf(p.pos, "%v", err)
		}
		return p.finish(v, rest)
	default:
		p.pos++
		return strings.TrimSpace(s), nil
	}
}

// finish checks what follows a closing quote and advances to the next line.
func (p *parser) finish(v, rest string) (string, error) {
	if !blankOrComment(rest) {
		return "", p.errorf(p.pos, "unexpected text after quoted value: %q", strings.TrimSpace(rest))
	}
	p.pos++
	return v, nil
}

func (p *parser) parseTriple(first string) (string, error) {
	start := p.pos
	if i := strings.Index(first, `"""`); i >= 0 {
		return p.finish(first[:i], first[i+3:])
	}

	var b strings.Builder
	if strings.TrimRight(first, " \t") != "" {
		b.WriteString(first)
		b.WriteByte('\n')
	}
	for p.pos++; p.pos < len(p.lines); p.pos++ {
		line := p.lines[p.pos]
		if i := strings.Index(line, `"""`); i >= 0 {
			b.WriteString(line[:i])
			return p.finish(b.String(), line[i+3:])
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return "", p.errorf(start, "unterminated triple-quoted value")
}

func blankOrComment(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s[0] == '#' || s[0] == ';'
}

// unquote decodes a double-quoted value; s starts after the opening quote.
// It returns the value and the text after the closing quote.
func unquote(s string) (string, string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), s[i+1:], nil
		case '\\':
			i++
			if i >= len(s) {
				return "", "", fmt.Errorf("unterminated escape sequence")
			}
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case '\'':
				b.WriteByte('\'')
			case 'x':
				if i+3 > len(s) {
					return "", "", fmt.Errorf("short \\x escape")
				}
				n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
				if err != nil {
					return "", "", fmt.Errorf("invalid \\x escape %q", s[i+1:i+3])
				}
				b.WriteByte(byte(n))
				i += 2
			default:
				return "", "", fmt.Errorf("unknown escape sequence \\%c", s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("unterminated string")
}

// unquoteRaw decodes an r"..." value; s starts after the opening quote.
func unquoteRaw(s string) (string, string, error) {
	var b bytes.Buffer
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			if i+1 < len(s) && s[i+1] == '"' {
				b.WriteByte('"')
				i++
				continue
			}
			return b.String(), s[i+1:], nil
		}
		b.WriteByte(s[i])
	}
	return "", "", fmt.Errorf("unterminated raw string")
}
