package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/feed"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/scanner"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded session from CSV",
	Long: `Replay a recorded session's bars and order-flow samples through a
fresh engine. Decisions depend only on configuration, the watchlist, and
the recorded tick order, so a replay reproduces the live session's
decisions exactly.

Examples:
  breakout replay -f config.yaml -w watchlist.yaml -t session.csv
  breakout replay -f config.yaml -w watchlist.yaml -t session.csv -d replay.db`,
	RunE: runReplay,
}

var (
	replayConfigPath    string
	replayWatchlistPath string
	replayTicksPath     string
	replayDBPath        string
	replayCloseEnd      bool
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "f", "", "path to config file (required)")
	replayCmd.Flags().StringVarP(&replayWatchlistPath, "watchlist", "w", "", "path to session watchlist YAML (required)")
	replayCmd.Flags().StringVarP(&replayTicksPath, "ticks", "t", "", "recorded session CSV (required)")
	replayCmd.Flags().StringVarP(&replayDBPath, "db", "d", "./replay.db", "SQLite journal path for replay output")
	replayCmd.Flags().BoolVar(&replayCloseEnd, "close-end", true, "close open positions at end of data")
	replayCmd.MarkFlagRequired("config")
	replayCmd.MarkFlagRequired("watchlist")
	replayCmd.MarkFlagRequired("ticks")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.LoadFromFile(replayConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	wl, err := scanner.LoadFile(replayWatchlistPath)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	j, err := journal.NewSQLite(replayDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	// Replays never persist session state: each run starts cold.
	sim := broker.NewSim(log)
	eng, err := engine.New(cfg, wl, sim, j, nil, log)
	if err != nil {
		return err
	}
	sim.SetFillListener(eng)

	f, err := feed.OpenCSV(replayTicksPath)
	if err != nil {
		return err
	}

	fmt.Printf("Replaying %s (%d symbols)\n", replayTicksPath, len(wl.Levels))
	r := &engine.Runner{
		Engine:  eng,
		Feed:    f,
		Options: engine.RunnerOptions{CloseEnd: replayCloseEnd},
		Log:     log,
	}
	res, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	printResult(res)
	fmt.Printf("\nJournal saved to: %s\n", replayDBPath)
	return nil
}
