// Package orchestrator assembles the colorflow daemon: the HTTP API server
// and the stuck-task monitor under a single start/stop lifecycle, guarded by
// flock-based locking so only one instance runs against a database at a time.
package orchestrator
