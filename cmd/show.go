package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/render"
	"github.com/sells-group/shotsense-cli/internal/view"
)

var showCmd = &cobra.Command{
	Use:   "show <analysis-id>",
	Short: "Show one analysis with its per-phase metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		return showAnalysis(ctx, cmd.OutOrStdout(), env.Resolver, args[0], nil)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List your analyzed videos",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		v := view.NewHistoryView(env.History)
		defer v.Unmount()
		<-v.Load(ctx)
		if v.Redirected() {
			return errSessionExpired
		}

		st := v.State()
		if err := render.History(cmd.OutOrStdout(), format(), st); err != nil {
			return err
		}
		if st.Status != view.StatusReady {
			return errReported
		}
		return nil
	},
}

// showAnalysis drives an analysis view for id and renders where it settles.
func showAnalysis(ctx context.Context, w io.Writer, resolver view.Resolver, id string, handoff *model.Handoff) error {
	v := view.NewAnalysisView(resolver, nil)
	defer v.Unmount()

	<-v.Navigate(ctx, id, handoff)
	if v.Redirected() {
		return errSessionExpired
	}

	st := v.State()
	if err := render.Analysis(w, format(), st); err != nil {
		return err
	}
	if st.Status != view.StatusReady {
		return errReported
	}
	return nil
}

func init() {
	rootCmd.AddCommand(showCmd, historyCmd)
}
