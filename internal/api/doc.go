// Package api defines the JSON wire types shared by the orchestrator's HTTP
// server, the CLI, and the site agent, plus converters from the persistence
// models. Keeping the DTOs in one package lets the three binaries agree on
// the contract without importing each other's internals.
package api
