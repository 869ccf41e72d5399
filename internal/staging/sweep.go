package staging

import (
	"context"
	"log/slog"
	"time"

	"repack/internal/logging"
)

// SweepResult reports one sweeper pass.
type SweepResult struct {
	Uploads CleanStaleResult
	Staging CleanStaleResult
}

// Sweeper periodically removes old uploads and abandoned staging areas.
type Sweeper struct {
	uploadDir  string
	stagingDir string
	interval   time.Duration
	maxAge     time.Duration
	logger     *slog.Logger
	onSweep    func(SweepResult)
}

// NewSweeper builds a sweeper. onSweep, if non-nil, observes each pass.
func NewSweeper(uploadDir, stagingDir string, interval, maxAge time.Duration, logger *slog.Logger, onSweep func(SweepResult)) *Sweeper {
	return &Sweeper{
		uploadDir:  uploadDir,
		stagingDir: stagingDir,
		interval:   interval,
		maxAge:     maxAge,
		logger:     logging.NewComponentLogger(logger, "sweeper"),
		onSweep:    onSweep,
	}
}

// SweepOnce runs a single pass over both directories.
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	result := SweepResult{
		Uploads: CleanOldFiles(ctx, s.uploadDir, s.maxAge, s.logger),
		Staging: CleanStale(ctx, s.stagingDir, s.maxAge, s.logger),
	}
	removed := len(result.Uploads.Removed) + len(result.Staging.Removed)
	failed := len(result.Uploads.Errors) + len(result.Staging.Errors)
	if removed > 0 || failed > 0 {
		s.logger.Info("sweep completed",
			logging.Int("uploads_removed", len(result.Uploads.Removed)),
			logging.Int("staging_removed", len(result.Staging.Removed)),
			logging.Int("staging_active", len(result.Staging.Skipped)),
			logging.Int("errors", failed),
			logging.String(logging.FieldEventType, "sweep_completed"),
		)
	}
	if s.onSweep != nil {
		s.onSweep(result)
	}
	return result
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s.SweepOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
