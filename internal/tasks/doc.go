// Package tasks coordinates deferred physical-file work executed by site
// daemons: source cleanup after MAM delivery and retransfer of rejected
// files.
//
// Delivery is at-least-once over a pull protocol. A daemon's heartbeat
// returns the tasks pending for its site; the daemon executes them locally
// and reports completion on a later call. Completion reports are idempotent,
// so retried acknowledgements are success no-ops. Tasks no daemon picks up
// stay pending indefinitely and are surfaced by the monitor as stuck.
package tasks
