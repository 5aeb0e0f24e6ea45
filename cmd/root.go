package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/shotsense-cli/internal/config"
	"github.com/sells-group/shotsense-cli/internal/render"
)

var (
	cfg          *config.Config
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "shotsense",
	Short:         "Basketball shot analysis from the command line",
	Long:          "Uploads shooting videos to the ShotSense analysis service, shows per-phase form metrics and feedback, and keeps a local journal of submissions.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if _, err := render.ParseFormat(outputFormat); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", "text", "output format: text, json or yaml")
}

// format returns the validated --format value.
func format() render.Format {
	f, _ := render.ParseFormat(outputFormat)
	return f
}

// errReported marks a failure whose message the command already printed.
var errReported = eris.New("failure already reported")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) && !errors.Is(err, errSessionExpired) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
