// Package convert sequences a container conversion: resolve both formats,
// acquire a staging area, extract, pack into a partial file, commit it under
// the output name, and release the staging area on every path.
//
// Converter.Convert never returns an error or panics; failures become a
// Result whose message reads "<class>: <stage>: <format>: <reason>". Pool
// offloads Convert onto a fixed set of workers with a bounded queue.
package convert
