// Package logging builds the slog loggers used across colorflow.
//
// Two output formats are supported: a console handler rendering
// "TIMESTAMP LEVEL component: message key=value" lines, and a JSON handler
// for machine consumption. The component attribute set via WithComponent is
// hoisted into the line prefix by the console handler.
package logging
