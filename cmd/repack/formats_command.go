package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"repack/internal/api"
	"repack/internal/formats"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported archive formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			registry, _ := newRegistry(cfg, nil)
			descs := registry.Descriptors()

			if ctx.JSONMode() {
				out := make([]api.Format, 0, len(descs))
				for _, d := range descs {
					out = append(out, api.FromDescriptor(d))
				}
				return writeJSON(cmd, api.FormatsResponse{Formats: out})
			}

			rows := make([][]string, 0, len(descs))
			for _, d := range descs {
				rows = append(rows, []string{
					d.Token,
					d.Extension,
					d.Direction.String(),
					yesNo(d.Availability == formats.Available),
					d.Detail,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable(out,
				[]string{"Format", "Extension", "Direction", "Available", "Detail"},
				rows,
				nil,
			))
			fmt.Fprintf(out, "\nRecognized suffixes: %s\n", strings.Join(registry.Extensions(), " "))
			return nil
		},
	}
}
