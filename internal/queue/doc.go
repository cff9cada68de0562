// Package queue persists recordings in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-recording recovery, and the status
// transitions that mirror the public pipeline enum. Each recording carries
// per-stage execution records, artifact references, progress, and review
// flags so stages can coordinate without additional state.
//
// The database is treated as transient storage for in-flight work rather
// than a long-term archive. Schema changes ship as numbered files under
// migrations/ and apply incrementally on Open, tracked in a
// schema_migrations table.
//
// Treat this package as the single source of truth for queue semantics;
// when you add new statuses or stages, add a migration and update
// models.go together.
package queue
