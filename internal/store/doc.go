// Package store provides SQLite-backed durable storage for profile
// snapshots.
//
// One row is kept per profiling session, holding the canonical JSON
// export plus the columns needed for listing and retention. Saving
// under an existing session id replaces the earlier row, so re-export
// of a session never duplicates it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
