// Package main hosts the repack CLI entrypoint and command graph.
//
// The Cobra command tree runs one-off conversions in process, serves the HTTP
// API with its worker pool and sweeper, and inspects staging, history and
// configuration. Configuration resolution and pipeline wiring live here so
// subcommands only deal with presentation.
package main
