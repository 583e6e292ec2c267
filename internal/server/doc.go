// Package server exposes the orchestrator over HTTP. One route table serves
// two audiences: the presentation layer (lifecycle operations, bulk actions,
// read queries) and site daemons (heartbeat, detection reports, and task
// completion behind the shared X-API-Key).
//
// Handlers stay thin: they decode the wire types in internal/api, call the
// lifecycle engine or task coordinator, and map the error taxonomy onto HTTP
// statuses in respond.go.
package server
