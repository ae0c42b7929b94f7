// Package queue persists detected scan files in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, stuck-item recovery, and the status transitions the workflow
// manager depends on. Items capture the classification outcome, final path,
// correlation ID, and per-run elapsed time so the CLI and health checks can
// report on processing without additional state.
//
// The database is treated as transient storage for in-flight jobs rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
