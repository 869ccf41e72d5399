// Package services defines shared utilities consumed by the conversion stages
// and the service layer around them.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Failure markers plus the Wrap helper that give every pipeline error a
//     class (unsupported format, dependency unavailable, not found, io,
//     corrupt) and a stage-qualified message.
//
// Use these helpers when adding a stage or codec so failures stay uniform from
// the extractor all the way to the result descriptor.
package services
