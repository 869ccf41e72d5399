package main

import (
	"fmt"
	"log/slog"

	"repack/internal/archive"
	"repack/internal/config"
	"repack/internal/convert"
	"repack/internal/deps"
	"repack/internal/formats"
	"repack/internal/history"
	"repack/internal/staging"
)

// pipeline holds the collaborators a conversion needs.
type pipeline struct {
	cfg       *config.Config
	sevenZip  deps.Status
	registry  *formats.Registry
	staging   *staging.Manager
	history   *history.Store
	converter *convert.Converter
}

func newRegistry(cfg *config.Config, logger *slog.Logger) (*formats.Registry, deps.Status) {
	sevenZip := deps.ResolveSevenZip(cfg.Conversion.SevenZipBinary)
	registry := formats.NewRegistry(formats.CapabilitiesFrom(sevenZip),
		formats.WithArchiveOptions(archive.Options{
			Limits: archive.Limits{
				MaxEntries:    cfg.Limits.MaxEntries,
				MaxTotalBytes: cfg.Limits.MaxTotalBytes,
				MaxEntryBytes: cfg.Limits.MaxEntryBytes,
			},
			Logger: logger,
		}),
	)
	return registry, sevenZip
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, nil
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

// newPipeline wires registry, staging, history and the converter. Extra
// observers are notified after the history recorder.
func newPipeline(cfg *config.Config, logger *slog.Logger, observers ...convert.Observer) (*pipeline, error) {
	registry, sevenZip := newRegistry(cfg, logger)
	store, err := openHistory(cfg)
	if err != nil {
		return nil, err
	}

	if store != nil {
		observers = append([]convert.Observer{history.NewRecorder(store, logger)}, observers...)
	}
	manager := staging.NewManager(cfg.Paths.StagingDir, logger)
	converter := convert.New(registry, manager,
		convert.WithLogger(logger),
		convert.WithCollisionPolicy(cfg.Conversion.CollisionPolicy),
		convert.WithObserver(observers...),
	)

	return &pipeline{
		cfg:       cfg,
		sevenZip:  sevenZip,
		registry:  registry,
		staging:   manager,
		history:   store,
		converter: converter,
	}, nil
}

func (p *pipeline) Close() error {
	if p == nil || p.history == nil {
		return nil
	}
	return p.history.Close()
}
