// Package store provides SQLite-backed history of test runs.
//
// Each invocation of the runner records one row in runs and one row per
// test in results. History lets a later run, or the history command, ask
// what a test last did under the same build identity.
//
// # Critical Patterns
//
// Idempotent writes
//   - runs.id is the primary key and results carry UNIQUE(run_id, name)
//   - inserts use ON CONFLICT DO NOTHING, so re-recording is a no-op
//
// Deterministic ordering
//   - results within a run are ordered by seq ASC, the order tests ran in
//   - runs are ordered by id, which is a time-sortable UUIDv7
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
