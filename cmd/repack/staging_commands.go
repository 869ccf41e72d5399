package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"repack/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage staging areas",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List staging areas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stagingDir := cfg.Paths.StagingDir
			dirs, err := staging.ListDirectories(stagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				var totalSize int64
				for _, dir := range dirs {
					totalSize += dir.Size
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      stagingDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			if len(dirs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No staging areas found")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Staging directory: %s\n\n", stagingDir)

			var totalSize int64
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				totalSize += dir.Size
				rows = append(rows, []string{
					dir.Name,
					humanize.Time(dir.ModTime),
					humanize.IBytes(uint64(dir.Size)),
					yesNo(dir.Active),
				})
			}

			fmt.Fprint(out, renderTable(out,
				[]string{"Area", "Age", "Size", "Active"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "\nTotal: %d areas, %s\n", len(dirs), humanize.IBytes(uint64(totalSize)))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var uploads bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staging areas",
		Long: `Remove staging areas left behind by interrupted conversions.

Areas whose lock is still held by a running conversion are never removed.
By default only areas older than sweep.max_age_seconds are removed; pass
--max-age 0 to remove every idle area. With --uploads, stale upload files are
removed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age := cfg.SweepMaxAge()
			if cmd.Flags().Changed("max-age") {
				age = maxAge
			}

			result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, age, nil)
			var uploadResult staging.CleanStaleResult
			if uploads {
				uploadResult = staging.CleanOldFiles(cmd.Context(), cfg.Paths.UploadDir, age, nil)
			}

			if ctx.JSONMode() {
				payload := map[string]any{
					"removed": len(result.Removed),
					"skipped": len(result.Skipped),
					"errors":  cleanupErrors(result),
				}
				if uploads {
					payload["uploads_removed"] = len(uploadResult.Removed)
				}
				return writeJSON(cmd, payload)
			}
			printStagingCleanResult(cmd, result, "staging")
			if uploads {
				printStagingCleanResult(cmd, uploadResult, "upload")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Only remove entries older than this (default sweep.max_age_seconds)")
	cmd.Flags().BoolVar(&uploads, "uploads", false, "Also remove stale upload files")

	return cmd
}

func printStagingCleanResult(cmd *cobra.Command, result staging.CleanStaleResult, label string) {
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintf(out, "No %s entries to clean\n", label)
		return
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "Removed %d %s entries, %d errors\n", len(result.Removed), label, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
		return
	}
	fmt.Fprintf(out, "Removed %d %s entries\n", len(result.Removed), label)
}

func cleanupErrors(result staging.CleanStaleResult) []string {
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
	}
	return errs
}
