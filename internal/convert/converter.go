package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"repack/internal/archive"
	"repack/internal/config"
	"repack/internal/formats"
	"repack/internal/logging"
	"repack/internal/services"
	"repack/internal/staging"
)

// Converter runs the extract, stage and re-pack pipeline for single jobs.
// It is safe for concurrent use; jobs share nothing but the filesystem.
type Converter struct {
	registry  *formats.Registry
	staging   *staging.Manager
	collision string
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the converter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) { c.logger = logging.NewComponentLogger(logger, "convert") }
}

// WithCollisionPolicy selects how an existing output file is handled.
func WithCollisionPolicy(policy string) Option {
	return func(c *Converter) {
		if policy != "" {
			c.collision = policy
		}
	}
}

// WithObserver registers lifecycle observers such as metrics or history.
func WithObserver(observers ...Observer) Option {
	return func(c *Converter) {
		for _, o := range observers {
			if o != nil {
				c.observers = append(c.observers, o)
			}
		}
	}
}

// New builds a converter over registry and the staging manager.
func New(registry *formats.Registry, manager *staging.Manager, opts ...Option) *Converter {
	c := &Converter{
		registry:  registry,
		staging:   manager,
		collision: config.CollisionOverwrite,
		logger:    logging.NewComponentLogger(nil, "convert"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// run carries the per-job state through the pipeline.
type run struct {
	c      *Converter
	job    Job
	logger *slog.Logger

	state        State
	sourceFormat string
	targetFormat string
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to

	r.logger.Debug("conversion state changed",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String(logging.FieldEventType, "state_transition"),
	)
	for _, o := range r.c.observers {
		o.StateChanged(r.job, from, to)
	}
}

func (r *run) current() State { return r.state }

// Convert runs job to completion and never panics: every failure, including
// a recovered panic, is reported as a failed Result.
func (c *Converter) Convert(ctx context.Context, job Job) (result Result) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx = services.WithJobID(ctx, job.ID)
	r := &run{
		c:      c,
		job:    job,
		logger: logging.WithContext(ctx, c.logger),
		state:  StateIdle,
	}
	started := c.now()

	r.logger.Info("conversion started",
		logging.String("source", job.SourcePath),
		logging.String("target_format", job.TargetFormat),
		logging.String(logging.FieldEventType, "conversion_start"),
	)

	defer func() {
		if rec := recover(); rec != nil {
			err := services.Wrap(services.ErrIO, stageFor(r.current()), r.sourceFormat, fmt.Sprintf("unexpected panic: %v", rec), nil)
			result = Failure(services.Kind(err), err.Error())
		}
		c.finish(r, result, started)
	}()

	output, err := c.execute(ctx, r)
	if err != nil {
		if !services.IsTagged(err) {
			err = services.Wrap(services.ErrIO, stageFor(r.current()), r.sourceFormat, "conversion failed", err)
		}
		return Failure(services.Kind(err), err.Error())
	}
	r.transition(StateDone)
	return Success(output, filepath.Base(output))
}

func (c *Converter) finish(r *run, result Result, started time.Time) {
	outcome := Outcome{
		Job:          r.job,
		Result:       result,
		SourceFormat: r.sourceFormat,
		TargetFormat: r.targetFormat,
		Started:      started,
		Duration:     c.now().Sub(started),
	}
	if result.Success {
		r.logger.Info("conversion completed",
			logging.String("output", result.OutputPath),
			logging.Duration("duration", outcome.Duration),
			logging.String(logging.FieldEventType, "conversion_complete"),
		)
	} else {
		outcome.FailedIn = r.current()
		r.transition(StateFailed)
		logging.ErrorWithContext(r.logger, "conversion failed", "conversion_failure",
			logging.String("failed_in", string(outcome.FailedIn)),
			logging.String("error_kind", result.Kind),
			logging.String("error_message", result.Error),
		)
	}
	for _, obs := range c.observers {
		obs.Completed(outcome)
	}
}

func stageFor(s State) string {
	switch s {
	case StateExtracting:
		return archive.StageExtraction
	case StatePacking:
		return archive.StagePacking
	default:
		return formats.StageResolve
	}
}

func (c *Converter) execute(ctx context.Context, r *run) (string, error) {
	job := r.job

	srcDesc, base, err := c.registry.ResolvePath(job.SourcePath)
	if err != nil {
		return "", err
	}
	r.sourceFormat = srcDesc.Token
	if err := srcDesc.CheckSource(); err != nil {
		return "", err
	}
	srcCodec, err := c.registry.Codec(srcDesc)
	if err != nil {
		return "", err
	}

	dstDesc, err := c.registry.Resolve(job.TargetFormat)
	if err != nil {
		return "", err
	}
	r.targetFormat = dstDesc.Token
	if err := dstDesc.CheckTarget(); err != nil {
		return "", err
	}
	dstCodec, err := c.registry.Codec(dstDesc)
	if err != nil {
		return "", err
	}

	if err := checkSource(job.SourcePath, srcDesc.Token); err != nil {
		return "", err
	}
	if err := checkOutputDir(job.OutputDir, dstDesc.Token); err != nil {
		return "", err
	}

	area, err := c.staging.Acquire(ctx, filepath.Base(job.SourcePath))
	if err != nil {
		return "", err
	}
	defer func() {
		if releaseErr := area.Release(); releaseErr != nil {
			logging.WarnWithContext(r.logger, "staging cleanup failed", "staging_release_failed",
				logging.String("path", area.Path),
				logging.Error(releaseErr),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions; the sweeper retries stale areas"),
				logging.String(logging.FieldImpact, "staging directory left on disk"),
			)
			for _, o := range c.observers {
				o.ReleaseFailed(job, releaseErr)
			}
		}
	}()

	r.transition(StateExtracting)
	extractCtx := services.WithStage(ctx, archive.StageExtraction)
	if err := srcCodec.Extract(extractCtx, job.SourcePath, area.Content); err != nil {
		return "", err
	}

	r.transition(StatePacking)
	packCtx := services.WithStage(ctx, archive.StagePacking)
	filename := base + dstDesc.Extension
	partial := partialPath(job.OutputDir, filename, job.ID)
	if err := dstCodec.Pack(packCtx, area.Content, partial); err != nil {
		_ = os.Remove(partial)
		return "", err
	}
	return commitOutput(partial, job.OutputDir, filename, c.collision, dstDesc.Token)
}

func checkSource(path, format string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, formats.StageResolve, format, fmt.Sprintf("source %s does not exist", path), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrIO, formats.StageResolve, format, "stat source", err)
	}
	if !info.Mode().IsRegular() {
		return services.Wrap(services.ErrNotFound, formats.StageResolve, format, fmt.Sprintf("source %s is not a regular file", path), nil)
	}
	return nil
}

func checkOutputDir(dir, format string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrNotFound, formats.StageResolve, format, fmt.Sprintf("output directory %s does not exist", dir), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrIO, formats.StageResolve, format, "stat output directory", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrIO, formats.StageResolve, format, fmt.Sprintf("output path %s is not a directory", dir), nil)
	}
	return nil
}
