package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"repack/internal/api"
	"repack/internal/history"
	"repack/internal/preflight"
	"repack/internal/staging"
)

type statusReport struct {
	Dependencies []api.DependencyStatus `json:"dependencies"`
	Checks       []preflight.Result     `json:"checks"`
	Staging      api.StagingSummary     `json:"staging"`
	History      *history.Summary       `json:"history,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency, directory and history status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			report := statusReport{Checks: preflight.RunAll(cfg)}
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				report.Dependencies = append(report.Dependencies, api.FromDependency(dep))
			}
			dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}
			for _, dir := range dirs {
				report.Staging.Areas++
				report.Staging.Bytes += dir.Size
				if dir.Active {
					report.Staging.Active++
				}
			}
			report.Staging.Size = humanize.IBytes(uint64(report.Staging.Bytes))

			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				summary, err := store.Summarize(cmd.Context())
				if err != nil {
					return fmt.Errorf("summarize history: %w", err)
				}
				report.History = &summary
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}
			printStatus(cmd, report)
			if failed := preflight.Failed(report.Checks); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, report statusReport) {
	out := cmd.OutOrStdout()

	depRows := make([][]string, 0, len(report.Dependencies))
	for _, dep := range report.Dependencies {
		detail := dep.Path
		if !dep.Available {
			detail = dep.Detail
		}
		depRows = append(depRows, []string{dep.Name, dep.Command, yesNo(dep.Available), yesNo(dep.Optional), detail})
	}
	fmt.Fprintln(out, "Dependencies")
	fmt.Fprint(out, renderTable(out, []string{"Name", "Command", "Available", "Optional", "Detail"}, depRows, nil))

	checkRows := make([][]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		checkRows = append(checkRows, []string{check.Name, yesNo(check.Passed), check.Detail})
	}
	fmt.Fprintln(out, "\nChecks")
	fmt.Fprint(out, renderTable(out, []string{"Check", "Passed", "Detail"}, checkRows, nil))

	fmt.Fprintf(out, "\nStaging: %d areas (%d active), %s\n", report.Staging.Areas, report.Staging.Active, report.Staging.Size)
	if report.History != nil {
		fmt.Fprintf(out, "History: %d conversions, %d succeeded, %d failed\n",
			report.History.Total, report.History.Succeeded, report.History.Failed)
	}
}
