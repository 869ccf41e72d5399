package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"repack/internal/config"
	"repack/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the conversion history",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))

	return historyCmd
}

func withHistory(cfg *config.Config, fn func(*history.Store) error) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("history is disabled (set history.enabled = true)")
	}
	defer store.Close()
	return fn(store)
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var failedOnly bool
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return withHistory(cfg, func(store *history.Store) error {
				opts := history.ListOptions{Limit: limit, FailedOnly: failedOnly}
				if since > 0 {
					opts.Since = time.Now().Add(-since)
				}
				records, err := store.List(cmd.Context(), opts)
				if err != nil {
					return fmt.Errorf("list history: %w", err)
				}

				if ctx.JSONMode() {
					if records == nil {
						records = []history.Record{}
					}
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No conversions recorded")
					return nil
				}
				printHistory(cmd, records)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed conversions")
	cmd.Flags().DurationVar(&since, "since", 0, "Only show conversions newer than this")
	return cmd
}

func printHistory(cmd *cobra.Command, records []history.Record) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		outcome := "ok"
		detail := filepath.Base(rec.OutputPath)
		if !rec.Success {
			outcome = rec.ErrorKind
			detail = rec.ErrorMessage
		}
		rows = append(rows, []string{
			humanize.Time(rec.CreatedAt),
			filepath.Base(rec.SourcePath),
			rec.SourceFormat + " -> " + rec.TargetFormat,
			outcome,
			(time.Duration(rec.Duration) * time.Millisecond).String(),
			detail,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderTable(out,
		[]string{"When", "Source", "Conversion", "Outcome", "Took", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age := cfg.HistoryRetention()
			if cmd.Flags().Changed("older-than") {
				age = olderThan
			} else if age <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "History retention is disabled; nothing to prune")
				return nil
			}
			return withHistory(cfg, func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-age))
				if err != nil {
					return fmt.Errorf("prune history: %w", err)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history records\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove records older than this (default history.retention_days)")
	return cmd
}
