package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gauntlet/internal/compare"
)

const (
	shimOpen  = `discard """`
	shimClose = `"""`
)

// ErrNoShimHeader reports a shim source without a leading discard block.
var ErrNoShimHeader = errors.New("no discard header")

// shimHeader is the YAML body of a discard block.
type shimHeader struct {
	Output     *string  `yaml:"output"`
	Args       []string `yaml:"args"`
	SortOutput bool     `yaml:"sortoutput"`
	Cmd        string   `yaml:"cmd"`
}

// ParseShim reads a shim source: a program whose expectations live in a
// leading block such as
//
//	discard """
//	output: "Hello\n"
//	args: [a, b]
//	sortoutput: true
//	"""
//
// The program is the file stem. The returned spec is never nil. Without a
// discard block it has no program; with an unreadable block it has a program
// but no stages.
func ParseShim(path, name string, data []byte) (*Spec, error) {
	s := newSpec(path, name)
	s.Shim = true

	body, ok := shimBody(data)
	if !ok {
		return s, ErrNoShimHeader
	}

	base := filepath.Base(path)
	s.Program = strings.TrimSuffix(base, filepath.Ext(base))

	var h shimHeader
	dec := yaml.NewDecoder(bytes.NewReader(body))
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil && !errors.Is(err, io.EOF) {
		return s, fmt.Errorf("failed to decode discard block: %w", err)
	}

	s.ShimCmd = h.Cmd
	st := &Stage{
		Section: PrimarySection,
		Args:    h.Args,
		Outputs: compare.Outputs{},
	}
	if h.Output != nil {
		out := *h.Output
		if h.SortOutput {
			out = compare.SortLines(out)
		}
		st.Outputs[compare.Stdout] = out
	}
	if h.SortOutput {
		s.Check = compare.CheckSorted
	}
	s.Stages = []*Stage{st}
	return s, nil
}

// shimBody returns the text between the opening and closing quotes of the
// leading discard block.
func shimBody(data []byte) ([]byte, bool) {
	if !hasShimHeader(data) {
		return nil, false
	}
	rest := bytes.TrimLeft(data, " \t\r\n")[len(shimOpen):]
	end := bytes.Index(rest, []byte(shimClose))
	if end < 0 {
		return nil, false
	}
	return rest[:end], true
}
