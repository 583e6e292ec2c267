// Package agent implements the site daemon. It watches a local directory for
// finished media files, reports them to the orchestrator, and executes the
// deferred cleanup and retransfer tasks returned by each heartbeat poll.
//
// The agent holds no durable state of its own beyond the in-memory set of
// already-reported paths; the orchestrator's dedup ledger makes repeated
// reports after a restart harmless.
package agent
