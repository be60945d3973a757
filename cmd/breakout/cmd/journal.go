package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/breakout/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade and decision journal",
	Long: `Query the SQLite journal produced by live sessions and replays.

Subcommands:
  trades     - List recorded trades
  decisions  - List entry decisions for a symbol

Examples:
  breakout journal trades
  breakout journal decisions AAPL`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List recorded trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalDecisionsCmd = &cobra.Command{
	Use:   "decisions <symbol>",
	Short: "List entry decisions for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDecisions,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalDecisionsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./breakout.db", "path to SQLite journal")
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTrades()
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No trades recorded.")
		return nil
	}

	var total float64
	fmt.Printf("%-8s %-6s %-10s %6s %10s %10s %10s  %s\n",
		"SYMBOL", "SIDE", "SETUP", "SHARES", "ENTRY", "EXIT", "P&L", "REASON")
	for _, r := range recs {
		total += r.RealizedPL
		fmt.Printf("%-8s %-6s %-10s %6d %10.2f %10.2f %10.2f  %s\n",
			r.Symbol, r.Side, r.SetupType, r.Shares, r.EntryPrice, r.ExitPrice, r.RealizedPL, r.Reason)
	}
	fmt.Printf("\n%d trades, total P&L $%.2f\n", len(recs), total)
	return nil
}

func runJournalDecisions(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	recs, err := j.ListDecisions(args[0])
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No decisions recorded for %s.\n", args[0])
		return nil
	}

	fmt.Printf("%-20s %-7s %-6s %10s %8s  %s\n", "TIME", "ACTION", "SIDE", "PRICE", "IMB%", "REASON")
	for _, r := range recs {
		fmt.Printf("%-20s %-7s %-6s %10.2f %8.1f  %s\n",
			r.Time.Format("2006-01-02 15:04:05"), r.Action, r.Side, r.Price, r.ImbalancePct, r.Reason)
	}
	return nil
}
