package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/shotsense-cli/internal/auth"
	"github.com/sells-group/shotsense-cli/internal/media"
	"github.com/sells-group/shotsense-cli/internal/outcome"
	"github.com/sells-group/shotsense-cli/internal/render"
)

var downloadCmd = &cobra.Command{
	Use:   "download <analysis-id>",
	Short: "Save the videos and key frames of an analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Download.Dir
		}
		kindFlags, _ := cmd.Flags().GetStringSlice("kind")
		kinds, err := parseAssetKinds(kindFlags)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer env.Close(ctx)

		actx, cancel := auth.WithAction(ctx)
		defer cancel(nil)

		out := env.Resolver.Resolve(actx, args[0], nil)
		switch {
		case out.Kind == outcome.KindAuthExpired:
			return errSessionExpired
		case !out.IsOK():
			fmt.Fprintln(cmd.ErrOrStderr(), out.Message)
			return errReported
		}

		dl, err := env.newDownloader()
		if err != nil {
			return err
		}
		saved, err := dl.SaveAll(ctx, out.Value, dir, kinds...)
		if eris.Is(err, auth.ErrSessionExpired) {
			env.Session.SetUser(nil)
			env.redirector.RedirectToSignIn(ctx, err)
			return errSessionExpired
		}
		if err != nil {
			return eris.Wrapf(err, "download %s", args[0])
		}

		if f := format(); f != render.FormatText {
			return render.Encode(cmd.OutOrStdout(), f, saved)
		}
		if len(saved) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No media to download.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "KIND\tPATH\tBYTES")
		for _, s := range saved {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", s.Asset.Kind, s.Path, s.Bytes)
		}
		return w.Flush()
	},
}

func parseAssetKinds(values []string) ([]media.AssetKind, error) {
	var kinds []media.AssetKind
	for _, v := range values {
		switch k := media.AssetKind(v); k {
		case media.AssetOriginalVideo, media.AssetAnalysisVideo,
			media.AssetSetupFrame, media.AssetReleaseFrame, media.AssetFollowFrame:
			kinds = append(kinds, k)
		default:
			return nil, eris.Errorf("unknown media kind %q (want original, analysis, setup, release or follow)", v)
		}
	}
	return kinds, nil
}

func init() {
	downloadCmd.Flags().String("dir", "", "output directory (default from config)")
	downloadCmd.Flags().StringSlice("kind", nil, "only these media kinds: original, analysis, setup, release, follow")
	rootCmd.AddCommand(downloadCmd)
}
