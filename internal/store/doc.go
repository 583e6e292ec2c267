// Package store persists orchestrator state in SQLite: tracked files, user
// and site registries, the append-only audit trail, transfer attempts,
// deferred cleanup/retransfer tasks, and the permanent file-history dedup
// ledger.
//
// All lifecycle mutation flows through Transact so each operation commits as
// one atomic unit. State transitions use guarded UPDATEs (state IN (...)) so
// concurrent operations on the same file serialize by first committer rather
// than by row locks. Timestamps are stored as RFC3339 text in UTC.
//
// Schema changes bump the version in schema.go; the database is authoritative
// long-term storage, so additive migrations are preferred over drops.
package store
