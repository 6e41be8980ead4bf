package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/gauntlet/internal/status"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ReadRun returns a run and its results ordered by seq ASC.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, []Result, error) {
	var run Run
	var started string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, config_hash FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &started, &run.ConfigHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, nil, fmt.Errorf("query run: %w", err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, nil, fmt.Errorf("parse started_at: %w", err)
	}

	results, err := s.queryResults(ctx, `
		SELECT run_id, name, identity, status, failures, duration_ms, seq
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC, name COLLATE BINARY ASC
	`, id)
	if err != nil {
		return Run{}, nil, err
	}
	return run, results, nil
}

// Runs returns the most recent runs, newest first. A limit of zero or less
// returns all runs.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, config_hash
		FROM runs
		ORDER BY id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var started string
		if err := rows.Scan(&run.ID, &started, &run.ConfigHash); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// TestHistory returns the recorded results of one test, newest run first.
func (s *Store) TestHistory(ctx context.Context, name string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryResults(ctx, `
		SELECT run_id, name, identity, status, failures, duration_ms, seq
		FROM results
		WHERE name = ?
		ORDER BY run_id COLLATE BINARY DESC
		LIMIT ?
	`, name, limit)
}

// LastStatus returns the status the test had in the most recent run that
// built it with the given identity. The boolean is false when there is no
// such run.
func (s *Store) LastStatus(ctx context.Context, name, identity string) (status.Status, bool, error) {
	var st string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM results
		WHERE name = ? AND identity = ?
		ORDER BY run_id COLLATE BINARY DESC
		LIMIT 1
	`, name, identity).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query last status: %w", err)
	}
	return status.Status(st), true, nil
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var res Result
		var st, failures string
		var durationMS int64
		if err := rows.Scan(&res.RunID, &res.Name, &res.Identity, &st, &failures, &durationMS, &res.Seq); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.Status = status.Status(st)
		res.Duration = time.Duration(durationMS) * time.Millisecond
		if res.Failures, err = unmarshalFailures(failures); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}
