// Package history keeps a SQLite log of finished conversions: formats, the
// outcome and failure class, duration, and the BLAKE3 digest of each output.
// Recorder plugs the store into the converter as an observer.
package history
