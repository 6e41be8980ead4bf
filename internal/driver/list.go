package driver

import (
	"github.com/roach88/gauntlet/internal/spec"
)

// Entry describes a discovered test without running it.
type Entry struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Program  string   `json:"program,omitempty"`
	Shim     bool     `json:"shim,omitempty"`
	Valid    bool     `json:"valid"`
	Identity string   `json:"identity,omitempty"`
	Stages   []string `json:"stages,omitempty"`
	Skip     string   `json:"skip,omitempty"`
}

// List loads every file in paths and reports what would run.
func (d *Driver) List(paths []string) []Entry {
	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		s := spec.Load(path, d.cfg.SearchPath, d.cfg, d.logger)
		e := Entry{
			Name:    s.Name,
			Path:    s.Path,
			Program: s.Program,
			Shim:    s.Shim,
			Valid:   s.Valid(),
		}
		for _, st := range s.Stages {
			e.Stages = append(e.Stages, st.Section)
		}
		if e.Valid {
			e.Skip = d.skipReason(s)
			if err := s.Prepare(d.cfg); err != nil {
				d.logger.Warn("cannot compute test identity", "test", s.Name, "error", err)
			} else {
				e.Identity = s.Identity
			}
		}
		entries = append(entries, e)
	}
	return entries
}
