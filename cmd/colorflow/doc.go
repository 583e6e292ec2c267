// Command colorflow is the operator CLI for the orchestrator. It drives files
// through the color-correction lifecycle, manages sites and users, and
// inspects the audit trail over the orchestrator's HTTP API.
package main
