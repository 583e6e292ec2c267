// Package lifecycle implements the file state machine: legal-transition
// enforcement, per-state timestamp stamping, assignment and locking rules,
// and the audit entry written alongside every successful change.
//
// All operations are single-file and atomic. Concurrent operations on the
// same file serialize through guarded updates, so of two racing calls exactly
// one succeeds and the other observes the new state and fails with
// InvalidTransitionError. Bulk variants fan out over independent per-file
// attempts and report per-item results.
package lifecycle
