// Package archive implements the container codecs used by the conversion
// pipeline.
//
// Each Codec extracts an archive into a staging directory and packs a staged
// tree into a new archive. Zip and Tar work in-process; SevenZip drives an
// external 7-Zip binary through an Executor so tests can stub it. Every entry
// name is checked before anything is written: names that would land outside
// the staging directory fail the extraction with services.ErrCorrupt rather
// than being skipped. Limits guard against archives that expand without bound.
//
// Packing walks the staged tree without following links and emits entries in
// lexical order with slash separated names relative to the tree root.
package archive
