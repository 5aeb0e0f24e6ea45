package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shotsense-cli/internal/model"
	"github.com/sells-group/shotsense-cli/internal/render"
	"github.com/sells-group/shotsense-cli/internal/store"
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Inspect the local upload journal",
	Long:  "Commands for listing and summarizing the videos submitted from this machine.",
}

// -- uploads list --

var uploadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submitted uploads, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		analysisID, _ := cmd.Flags().GetString("analysis")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListUploads(ctx, store.UploadFilter{AnalysisID: analysisID, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "uploads list")
		}
		return render.Uploads(cmd.OutOrStdout(), format(), entries)
	},
}

// -- uploads stats --

var uploadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate upload statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		entries, err := st.ListUploads(ctx, store.UploadFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "uploads stats")
		}

		var cutoff time.Time
		if since > 0 {
			cutoff = time.Now().Add(-since)
		}
		stats := computeUploadStats(entries, cutoff)
		if f := format(); f != render.FormatText {
			return render.Encode(cmd.OutOrStdout(), f, stats)
		}
		formatUploadStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
	}, cfg.Store.DataDir)
}

func init() {
	uploadsListCmd.Flags().String("analysis", "", "only entries for this analysis id")
	uploadsListCmd.Flags().Int("limit", 50, "max number of entries to display")

	uploadsStatsCmd.Flags().Duration("since", 0, "time window for stats (e.g. 24h, 168h); 0 means all")

	uploadsCmd.AddCommand(uploadsListCmd)
	uploadsCmd.AddCommand(uploadsStatsCmd)
	rootCmd.AddCommand(uploadsCmd)
}

// uploadStats holds aggregate statistics computed from journal entries.
type uploadStats struct {
	Total  int        `json:"total" yaml:"total"`
	Left   int        `json:"left" yaml:"left"`
	Right  int        `json:"right" yaml:"right"`
	Inline int        `json:"inline" yaml:"inline"`
	First  *time.Time `json:"first,omitempty" yaml:"first,omitempty"`
	Last   *time.Time `json:"last,omitempty" yaml:"last,omitempty"`
}

// computeUploadStats counts entries submitted at or after cutoff. Inline
// entries are uploads whose analysis came back without an identifier.
func computeUploadStats(entries []model.UploadEntry, cutoff time.Time) uploadStats {
	var s uploadStats
	for _, e := range entries {
		if !cutoff.IsZero() && e.SubmittedAt.Before(cutoff) {
			continue
		}
		s.Total++
		switch e.ShootingArm {
		case model.ShootingArmLeft:
			s.Left++
		case model.ShootingArmRight:
			s.Right++
		}
		if e.AnalysisID == "" {
			s.Inline++
		}
		at := e.SubmittedAt
		if s.First == nil || at.Before(*s.First) {
			s.First = &at
		}
		if s.Last == nil || at.After(*s.Last) {
			s.Last = &at
		}
	}
	return s
}

// formatUploadStats writes aggregate stats to w.
func formatUploadStats(out io.Writer, s uploadStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total uploads:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Right arm:\t%d\n", s.Right)
	_, _ = fmt.Fprintf(w, "  Left arm:\t%d\n", s.Left)
	_, _ = fmt.Fprintf(w, "Without analysis id:\t%d\n", s.Inline)
	if s.First != nil {
		_, _ = fmt.Fprintf(w, "First:\t%s\n", s.First.Format("2006-01-02 15:04"))
		_, _ = fmt.Fprintf(w, "Last:\t%s\n", s.Last.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
