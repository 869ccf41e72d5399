// Package logging builds the slog loggers used across repack.
//
// Two handlers are available: a console handler that prints
// "component: message key=value" lines for operators, and a JSON handler for
// log shippers. NewFromConfig wires the level, format and optional log file
// from the [logging] and [paths] config sections. WithContext attaches job,
// stage and correlation identifiers carried on a context.
package logging
