package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"repack/internal/config"
	"repack/internal/convert"
	"repack/internal/fileutil"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var target string
	var outputDir string
	var collision string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "convert <source>",
		Short: "Convert an archive to another container format",
		Long: `Convert an archive to another container format.

The source is extracted into a private staging area and repacked as the
target format in the output directory. The output name is the source name
with its archive suffix replaced by the target extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(target) == "" {
				return errors.New("--to is required")
			}
			if collision != "" {
				switch collision {
				case config.CollisionOverwrite, config.CollisionRename, config.CollisionFail:
					cfg.Conversion.CollisionPolicy = collision
				default:
					return errors.New("--collision must be overwrite, rename or fail")
				}
			}

			logger, err := ctx.logger(cfg, verbose)
			if err != nil {
				return err
			}
			p, err := newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve source: %w", err)
			}
			dir := cfg.Paths.OutputDir
			if strings.TrimSpace(outputDir) != "" {
				if dir, err = config.ExpandPath(outputDir); err != nil {
					return fmt.Errorf("resolve output directory: %w", err)
				}
			}

			result := p.converter.Convert(cmd.Context(), convert.Job{
				SourcePath:   source,
				OutputDir:    dir,
				TargetFormat: target,
			})
			if ctx.JSONMode() {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
				if !result.Success {
					return errReported
				}
				return nil
			}
			if !result.Success {
				return errors.New(result.Error)
			}
			printConvertResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&target, "to", "t", "", "Target format (zip, tar, tar.gz, tar.zst, tar.lz4, 7z)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().StringVar(&collision, "collision", "", "Output collision policy: overwrite, rename or fail")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	return cmd
}

func printConvertResult(cmd *cobra.Command, result convert.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", result.OutputPath)
	digest, size, err := fileutil.Digest(result.OutputPath)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "Size:   %s\n", humanize.IBytes(uint64(size)))
	fmt.Fprintf(out, "BLAKE3: %s\n", digest)
}
