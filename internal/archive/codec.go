package archive

import (
	"context"
	"fmt"
	"log/slog"

	"repack/internal/logging"
	"repack/internal/services"
)

// Stage names reported in codec errors.
const (
	StageExtraction = "extraction"
	StagePacking    = "packing"
)

// Codec reads and writes one container format. Extract unpacks src into the
// existing directory dst; Pack writes every entry below srcDir into the new
// file dst.
type Codec interface {
	Name() string
	Extract(ctx context.Context, src, dst string) error
	Pack(ctx context.Context, srcDir, dst string) error
}

// Limits bounds a single extraction. Zero values disable a check.
type Limits struct {
	MaxEntries    int
	MaxTotalBytes int64
	MaxEntryBytes int64
}

// Options are shared by every codec constructor.
type Options struct {
	Limits Limits
	Logger *slog.Logger
}

func (o Options) logger(name string) *slog.Logger {
	return logging.NewComponentLogger(o.Logger, "archive").With(logging.String(logging.FieldFormat, name))
}

func extractErr(marker error, format, message string, err error) error {
	return services.Wrap(marker, StageExtraction, format, message, err)
}

func packErr(marker error, format, message string, err error) error {
	return services.Wrap(marker, StagePacking, format, message, err)
}

func escapeErr(format, name string) error {
	return extractErr(services.ErrCorrupt, format, fmt.Sprintf("entry %q escapes the staging directory", name), nil)
}
