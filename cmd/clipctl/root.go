package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/you-humble/audioclip/internal/infra/config"
)

var (
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "clipctl",
	Short: "Cut audio clips out of online videos",
	Long: `clipctl extracts a time range of an online video's audio track as MP3.

It can run the whole pipeline locally, or talk to a running ingress:

  clipctl extract https://youtu.be/dQw4w9WgXcQ 1:30 2:00 --output clip.mp3
  clipctl submit https://youtu.be/dQw4w9WgXcQ 0 45 --server http://localhost:8080 --wait
  clipctl status 6b7c... --server http://localhost:8080
  clipctl sweep --config ./configs/distributor.yaml --dry-run`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: config.Level(logLevel),
		})))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
}
