package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"repack/internal/api"
	"repack/internal/config"
	"repack/internal/convert"
	"repack/internal/deps"
	"repack/internal/history"
	"repack/internal/logging"
	"repack/internal/metrics"
	"repack/internal/preflight"
	"repack/internal/staging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP conversion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, cfg, logger, nil)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to paths.api_bind)")
	return cmd
}

// serve runs the service until ctx is done. ready, when set, receives the
// bound address once the API is listening.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, ready func(addr string)) error {
	for _, check := range preflight.Failed(preflight.RunAll(cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldErrorHint, "fix directory permissions or free disk space"),
			logging.String(logging.FieldImpact, "conversions may fail"),
		)
	}

	collector := metrics.New()
	p, err := newPipeline(cfg, logger, collector)
	if err != nil {
		return err
	}
	defer p.Close()
	logSevenZip(logger, p.sevenZip)

	if p.history != nil {
		pruneHistory(ctx, cfg, p.history, logger)
	}

	pool := convert.NewPool(p.converter, cfg.Conversion.Workers, cfg.Conversion.QueueSize, logger)
	defer pool.Close()

	if cfg.Sweep.Enabled {
		sweeper := staging.NewSweeper(cfg.Paths.UploadDir, cfg.Paths.StagingDir,
			cfg.SweepInterval(), cfg.SweepMaxAge(), logger, collector.ObserveSweep)
		go sweeper.Run(ctx)
	}

	opts := api.Options{
		Config:       cfg,
		Registry:     p.registry,
		Pool:         pool,
		Metrics:      collector.Handler(),
		Dependencies: []deps.Status{p.sevenZip},
		Logger:       logger,
	}
	if p.history != nil {
		opts.History = p.history
	}
	server, err := api.New(opts)
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	if ready != nil {
		ready(server.Addr())
	}

	<-ctx.Done()
	logger.Info("repack shutting down", logging.String(logging.FieldEventType, "shutdown"))
	server.Stop()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logSevenZip(logger *slog.Logger, status deps.Status) {
	if status.Available {
		logger.Info("7-Zip available", logging.String("path", status.Path))
		return
	}
	logging.WarnWithContext(logger, "7-Zip not found", "dependency_missing",
		logging.String("command", status.Command),
		logging.String("detail", status.Detail),
		logging.String(logging.FieldErrorHint, "install 7zz or set conversion.sevenzip_binary"),
		logging.String(logging.FieldImpact, "7z conversions will be rejected"),
	)
}

func pruneHistory(ctx context.Context, cfg *config.Config, store *history.Store, logger *slog.Logger) {
	retention := cfg.HistoryRetention()
	if retention <= 0 {
		return
	}
	removed, err := store.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		logging.WarnWithContext(logger, "history prune failed", "history_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
			logging.String(logging.FieldImpact, "old history rows kept"),
		)
		return
	}
	if removed > 0 {
		logger.Info("pruned history", logging.Int64("removed", removed))
	}
}
