// Package staging owns the per-job scratch directories used during a
// conversion.
//
// Manager.Acquire creates "<root>/<slug>-<uuid>/" with a content/ directory
// for extracted entries and a .lock file held through gofrs/flock until
// Area.Release removes the whole area. CleanStale and the Sweeper skip any
// area whose lock is still held, so a long-running job is never swept from
// under itself.
package staging
