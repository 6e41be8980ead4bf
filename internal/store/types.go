package store

import (
	"time"

	"github.com/roach88/gauntlet/internal/status"
)

// Run is one invocation of the runner.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	ConfigHash string    `json:"config_hash"`
}

// Result is the recorded outcome of one test within a run.
type Result struct {
	RunID    string            `json:"run_id"`
	Name     string            `json:"name"`
	Identity string            `json:"identity"`
	Status   status.Status     `json:"status"`
	Failures []*status.Failure `json:"failures,omitempty"`
	Duration time.Duration     `json:"duration"`

	// Seq is the position of the test within its run.
	Seq int64 `json:"seq"`
}

// Kind returns the kind of the first failure, or "".
func (r Result) Kind() status.Kind {
	if len(r.Failures) == 0 {
		return ""
	}
	return r.Failures[0].Kind
}
