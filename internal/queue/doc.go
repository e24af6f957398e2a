// Package queue persists triage work items in SQLite and exposes helpers for
// driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, priority-ordered dequeuing, and the retry policy applied when a
// processing attempt fails. Items are keyed by GitHub issue number; at most
// one item may be in the processing status at any instant.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue
