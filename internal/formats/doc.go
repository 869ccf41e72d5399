// Package formats is the registry of container formats repack understands.
//
// A Registry is built once from the Capabilities probed at startup. Resolve
// and ResolvePath always succeed for a known format, even when its optional
// codec is missing; Codec and the Descriptor checks then fail with
// services.ErrDependencyUnavailable so callers can tell "not recognised" from
// "recognised but not usable here".
package formats
