// Package store provides SQLite-backed history of oracle runs.
//
// Each saved run holds:
//   - runs: one record per oracle run (id, start time, subject, verdict)
//   - run_rows: one record per matrix row or probe, with its tally and the
//     report statistics as canonical JSON
//   - discrepancies: every recorded discrepancy in row order
//
// A run is written in a single transaction and never updated afterwards;
// saving the same run id twice is a no-op.
//
// # Ordering
//
// Runs list newest first (started_at DESC, id DESC). Rows and discrepancies
// keep the order the oracle produced them in (seq ASC).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The schema version lives in PRAGMA user_version. Open refuses a database
// stamped with a newer version than it knows.
package store
