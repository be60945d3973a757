package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/engine"
	"github.com/rustyeddy/breakout/feed"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/scanner"
	"github.com/rustyeddy/breakout/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a live trading session",
	Long: `Run a paper-trading session against a live data stream.

The watchlist supplies the session's pivot levels; the stream delivers
bars and order-flow samples. Session state is snapshotted after every
position mutation, and a restart reconciles the snapshot against the
broker's book before resuming.

Examples:
  breakout run -f config.yaml -w watchlist.yaml
  breakout run -f config.yaml -w watchlist.yaml --stream-url ws://data.example.com/stream`,
	RunE: runSession,
}

var (
	runConfigPath    string
	runWatchlistPath string
	runStreamURL     string
	runMetricsAddr   string
	runMaxRetries    uint64
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (required)")
	runCmd.Flags().StringVarP(&runWatchlistPath, "watchlist", "w", "", "path to session watchlist YAML (required)")
	runCmd.Flags().StringVar(&runStreamURL, "stream-url", "", "data stream URL (defaults to $BREAKOUT_STREAM_URL)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", ":9120", "Prometheus metrics listen address (empty disables)")
	runCmd.Flags().Uint64Var(&runMaxRetries, "order-retries", 3, "max retries per broker call for transient failures")
	runCmd.MarkFlagRequired("config")
	runCmd.MarkFlagRequired("watchlist")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	wl, err := scanner.LoadFile(runWatchlistPath)
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}

	streamURL := runStreamURL
	if streamURL == "" {
		streamURL = os.Getenv("BREAKOUT_STREAM_URL")
	}
	if streamURL == "" {
		return fmt.Errorf("stream URL required (--stream-url or BREAKOUT_STREAM_URL)")
	}

	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	store, err := session.NewStore(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	sim := broker.NewSim(log)
	client := broker.NewSubmitter(sim, runMaxRetries, log)

	eng, err := engine.New(cfg, wl, client, j, store, log)
	if err != nil {
		return err
	}
	sim.SetFillListener(eng)

	rep, err := eng.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	if rerr := rep.Err(); rerr != nil {
		// Mismatched symbols are already halted; the session continues
		// for the rest of the watchlist.
		log.Error().Err(rerr).Msg("resumed with reconciliation mismatches")
	}

	if runMetricsAddr != "" {
		go serveMetrics(runMetricsAddr)
	}

	log.Info().Str("session", wl.SessionDate).Int("symbols", len(wl.Levels)).Msg("session starting")
	f, err := feed.OpenStream(ctx, streamURL, wl.Symbols())
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	r := &engine.Runner{
		Engine:  eng,
		Feed:    f,
		Options: engine.RunnerOptions{CloseEnd: true},
		Log:     log,
	}
	res, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	printResult(res)
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	if cfg.Journal.Type == "csv" {
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.DecisionsFile)
	}
	return journal.NewSQLite(cfg.Journal.DBPath)
}

func printResult(res engine.Result) {
	fmt.Printf("\nSession complete\n")
	fmt.Printf("  Ticks:       %d (%d rejected)\n", res.Ticks, res.BadTicks)
	fmt.Printf("  Trades:      %d (%d wins, %d losses)\n", res.Trades, res.Wins, res.Losses)
	fmt.Printf("  Realized PL: $%.2f\n", res.RealizedPL)
	if !res.Start.IsZero() {
		fmt.Printf("  Data range:  %s .. %s\n", res.Start.Format("15:04:05"), res.End.Format("15:04:05"))
	}
}
