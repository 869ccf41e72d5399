package history

import (
	"context"
	"log/slog"
	"time"

	"repack/internal/convert"
	"repack/internal/fileutil"
	"repack/internal/logging"
)

const recordTimeout = 5 * time.Second

// Recorder stores every finished conversion. It implements convert.Observer.
type Recorder struct {
	store  *Store
	logger *slog.Logger
}

// NewRecorder wraps store as a conversion observer.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logging.NewComponentLogger(logger, "history")}
}

// StateChanged is a no-op; only final outcomes are stored.
func (r *Recorder) StateChanged(convert.Job, convert.State, convert.State) {}

// ReleaseFailed is a no-op; release failures do not change the outcome.
func (r *Recorder) ReleaseFailed(convert.Job, error) {}

// Completed writes the outcome, hashing the output on success.
func (r *Recorder) Completed(o convert.Outcome) {
	rec := Record{
		JobID:        o.Job.ID,
		SourcePath:   o.Job.SourcePath,
		SourceFormat: o.SourceFormat,
		TargetFormat: o.TargetFormat,
		Success:      o.Result.Success,
		OutputPath:   o.Result.OutputPath,
		ErrorKind:    o.Result.Kind,
		ErrorMessage: o.Result.Error,
		Duration:     o.Duration.Milliseconds(),
	}
	if !o.Started.IsZero() {
		rec.CreatedAt = o.Started.Add(o.Duration)
	}
	if rec.TargetFormat == "" {
		rec.TargetFormat = o.Job.TargetFormat
	}
	if o.Result.Success {
		digest, size, err := fileutil.Digest(o.Result.OutputPath)
		if err != nil {
			logging.WarnWithContext(r.logger, "output digest failed", "history_digest_failed",
				logging.String("path", o.Result.OutputPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "history entry stored without digest"),
			)
		} else {
			rec.OutputDigest = digest
			rec.OutputSize = size
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if _, err := r.store.Add(ctx, rec); err != nil {
		logging.WarnWithContext(r.logger, "history write failed", "history_write_failed",
			logging.String(logging.FieldJobID, rec.JobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
			logging.String(logging.FieldImpact, "conversion missing from history"),
		)
	}
}
