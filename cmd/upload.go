package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/analysis"
	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/internal/upload"
	"github.com/sells-group/shotsense-cli/pkg/shotsense"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <video>",
	Short: "Submit a shot video for analysis",
	Long: `Uploads a video of a single shot. When the service answers with the finished
analysis it is shown immediately; otherwise the new analysis id is printed, or
with --wait the service is polled until the analysis is ready.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		armFlag, _ := cmd.Flags().GetString("arm")
		arm, err := model.ParseShootingArm(armFlag)
		if err != nil {
			return eris.Wrap(err, "upload")
		}
		wait, _ := cmd.Flags().GetBool("wait")

		video, closer, err := upload.OpenVideo(args[0])
		if err != nil {
			return err
		}
		defer closer.Close() //nolint:errcheck

		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		out := env.Submitter.Submit(ctx, video, arm)
		switch {
		case out.Kind == outcome.KindAuthExpired:
			return errSessionExpired
		case !out.IsOK():
			fmt.Fprintln(cmd.ErrOrStderr(), out.Message)
			return errReported
		}

		sub := out.Value
		if sub.Handoff.Pending() {
			return showAnalysis(ctx, cmd.OutOrStdout(), env.Resolver, sub.ID, sub.Handoff)
		}
		if !wait {
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted. Analysis id: %s\n", sub.ID)
			return nil
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Submitted %s, waiting for the analysis...\n", sub.ID)
		rec, err := waitForAnalysis(ctx, env.Client, sub.ID)
		if err != nil {
			zap.L().Warn("upload: wait for analysis", zap.String("analysis_id", sub.ID), zap.Error(err))
			fmt.Fprintf(cmd.ErrOrStderr(), "The analysis is not ready yet. Run `shotsense show %s` later.\n", sub.ID)
			return errReported
		}
		return showAnalysis(ctx, cmd.OutOrStdout(), env.Resolver, sub.ID, model.NewHandoff(rec))
	},
}

// waitForAnalysis polls the service until the record for id exists.
func waitForAnalysis(ctx context.Context, client shotsense.Client, id string) (*model.AnalysisRecord, error) {
	initial, limit, timeout := cfg.Poll.Durations()
	p, err := shotsense.PollAnalysis(ctx, client, id,
		shotsense.WithPollInterval(initial),
		shotsense.WithPollCap(limit),
		shotsense.WithPollTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	return analysis.Coalesce(p, id)
}

func init() {
	uploadCmd.Flags().String("arm", string(model.DefaultShootingArm), "shooting arm: LEFT or RIGHT")
	uploadCmd.Flags().Bool("wait", false, "poll until the analysis is ready when it is not returned inline")
	rootCmd.AddCommand(uploadCmd)
}
