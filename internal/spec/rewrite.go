package spec

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/roach88/gauntlet/internal/compare"
)

// ErrNotRewritable is returned when a spec has no document of its own.
var ErrNotRewritable = errors.New("spec has no rewritable file")

// Rewrite replaces the expectations of st with what the program actually
// produced and saves the test file. Every expected channel takes its actual
// value; channels the program did not produce are removed. The args entry is
// rewritten from st.Args when there are any.
//
// The in-memory stage is updated only after the file was written.
func (s *Spec) Rewrite(st *Stage, actual compare.Outputs) error {
	if !s.Rewritable() || st.section == nil {
		return ErrNotRewritable
	}
	sec := st.section

	updated := compare.Outputs{}
	for _, channel := range st.Outputs.Channels() {
		got, ok := actual[channel]
		if !ok {
			sec.Delete(channel)
			continue
		}
		sec.Set(channel, got)
		updated[channel] = got
	}

	if len(st.Args) > 0 {
		joined := shellquote.Join(st.Args...)
		if e := sec.Lookup("args", true); e != nil {
			e.SetValue(joined)
		} else {
			sec.Set("args", joined)
		}
	}

	if err := s.doc.Save(s.Path); err != nil {
		return fmt.Errorf("rewrite %s: %w", s.Name, err)
	}
	st.Outputs = updated
	return nil
}
