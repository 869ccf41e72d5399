// Package preflight provides readiness checks for the filesystem paths and
// external binaries repack depends on.
//
// These checks run in two contexts:
//   - "repack serve" runs RunAll at startup and refuses to start when a
//     working directory is unusable.
//   - "repack status" and GET /api/status display every check plus the
//     7-Zip dependency status.
package preflight
