package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// CSVJournal writes trades and decisions to two flat files, one row per
// record, flushed on every write so a crash loses nothing.
type CSVJournal struct {
	trades    *csv.Writer
	decisions *csv.Writer
	tf, df    *os.File
}

func NewCSV(tradesPath, decisionsPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	df, err := os.Create(decisionsPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	dw := csv.NewWriter(df)

	if err := tw.Write([]string{"trade_id", "symbol", "side", "setup_type",
		"shares", "entry_price", "exit_price", "entry_time", "exit_time",
		"realized_pl", "fees", "reason"}); err != nil {
		return nil, err
	}
	if err := dw.Write([]string{"decision_id", "symbol", "time", "action",
		"side", "reason", "price", "pivot", "volume_ratio", "body_pct",
		"imbalance_pct", "consecutive_imbalance", "bars_held"}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	dw.Flush()
	if err := dw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{trades: tw, decisions: dw, tf: tf, df: df}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.trades.Write([]string{
		t.TradeID,
		t.Symbol,
		t.Side,
		t.SetupType,
		strconv.Itoa(t.Shares),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.EntryTime.Format(time.RFC3339),
		t.ExitTime.Format(time.RFC3339),
		f(t.RealizedPL),
		f(t.Fees),
		t.Reason,
	})
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordDecision(d DecisionRecord) error {
	j.decisions.Write([]string{
		d.DecisionID,
		d.Symbol,
		d.Time.Format(time.RFC3339),
		d.Action,
		d.Side,
		d.Reason,
		f(d.Price),
		f(d.Pivot),
		f(d.VolumeRatio),
		f(d.BodyPct),
		f(d.ImbalancePct),
		strconv.Itoa(d.ConsecutiveImbalance),
		strconv.Itoa(d.BarsHeld),
	})
	j.decisions.Flush()
	return j.decisions.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.decisions.Flush()
	if err := j.tf.Close(); err != nil {
		j.df.Close()
		return err
	}
	return j.df.Close()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
