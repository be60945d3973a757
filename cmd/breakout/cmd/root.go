package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	log      zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "breakout",
	Short: "Intraday breakout trading engine",
	Long: `Breakout watches scanner-supplied pivot levels on intraday bars and
order-flow data, confirms breakouts through momentum or order-flow paths,
and manages the resulting positions with partial exits, trailing stops,
and an end-of-day flatten.

The same engine drives live sessions and recorded-session replays; a
recorded session replayed through a fresh process produces the identical
decisions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(level).
			With().Timestamp().Logger()
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
}
