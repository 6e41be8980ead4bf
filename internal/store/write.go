package store

import (
	"context"
	"fmt"
	"time"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, config_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.ConfigHash,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteResult inserts a test result.
// Uses ON CONFLICT DO NOTHING for idempotency - a second result for the same
// test in the same run is silently ignored.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteResult(ctx context.Context, res Result) error {
	failuresJSON, err := marshalFailures(res.Failures)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results
		(run_id, name, identity, status, kind, failures, duration_ms, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		res.RunID,
		res.Name,
		res.Identity,
		string(res.Status),
		string(res.Kind()),
		failuresJSON,
		res.Duration.Milliseconds(),
		res.Seq,
	)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
