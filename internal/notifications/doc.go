// Package notifications delivers operational events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Events cover the signals an operator acts on: rejected files,
// stuck deferred tasks, and sites that stop heartbeating.
//
// Extend this package if you need alternative transports; all orchestrator
// code depends only on the Service interface.
package notifications
