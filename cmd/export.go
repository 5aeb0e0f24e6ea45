package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/export"
	"github.com/sells-group/shotsense-cli/internal/render"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export your analysis history to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("out")

		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		ex := export.New(env.History, env.Resolver, export.WithConcurrency(cfg.Export.Concurrency))
		sum, err := ex.WriteFile(ctx, path)
		if err != nil {
			if eris.Is(err, auth.ErrSessionExpired) {
				return errSessionExpired
			}
			return err
		}

		if f := format(); f != render.FormatText {
			return render.Encode(cmd.OutOrStdout(), f, sum)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d analyses (%d failed), %d metrics.\n",
			path, sum.Analyses, sum.Failed, sum.Metrics)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "shotsense-history.xlsx", "workbook path")
	rootCmd.AddCommand(exportCmd)
}
