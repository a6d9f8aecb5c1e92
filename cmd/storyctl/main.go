// Command storyctl drives story sessions against a running API and handles the
// files they produce.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snappy-loop/feeled/internal/config"
	"github.com/snappy-loop/feeled/internal/logging"
)

var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:   "storyctl",
	Short: "Generate FeelEd stories from the command line",
	Long: `storyctl submits a story request to a FeelEd API over HTTP or gRPC, follows
the session until narration and illustration settle, and writes the story text,
a WAV file and the image to disk.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := cfg.LogLevel
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		logging.Setup(level, cfg.LogJSON)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("storyctl failed")
		os.Exit(1)
	}
}
