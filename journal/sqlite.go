package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal stores trades and decisions in a single SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the journal database. Use ":memory:" in
// tests.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, setup_type, shares, entry_price, exit_price,
		 entry_time, exit_time, realized_pl, fees, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Symbol, t.Side, t.SetupType, t.Shares, t.EntryPrice,
		t.ExitPrice, t.EntryTime, t.ExitTime, t.RealizedPL, t.Fees, t.Reason,
	)
	return err
}

func (j *SQLiteJournal) RecordDecision(d DecisionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(decision_id, symbol, time, action, side, reason, price, pivot,
		 volume_ratio, body_pct, imbalance_pct, consecutive_imbalance, bars_held)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DecisionID, d.Symbol, d.Time, d.Action, d.Side, d.Reason, d.Price,
		d.Pivot, d.VolumeRatio, d.BodyPct, d.ImbalancePct,
		d.ConsecutiveImbalance, d.BarsHeld,
	)
	return err
}

// ListTrades returns all recorded trades in exit-time order.
func (j *SQLiteJournal) ListTrades() ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, setup_type, shares, entry_price,
		       exit_price, entry_time, exit_time, realized_pl, fees, reason
		FROM trades ORDER BY exit_time, trade_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.TradeID, &t.Symbol, &t.Side, &t.SetupType,
			&t.Shares, &t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime,
			&t.RealizedPL, &t.Fees, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTradesClosedBetween returns trades whose exit time falls in
// [start, end).
func (j *SQLiteJournal) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, setup_type, shares, entry_price,
		       exit_price, entry_time, exit_time, realized_pl, fees, reason
		FROM trades WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time, trade_id`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.TradeID, &t.Symbol, &t.Side, &t.SetupType,
			&t.Shares, &t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime,
			&t.RealizedPL, &t.Fees, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListDecisions returns a symbol's decisions in time order; an empty symbol
// returns everything.
func (j *SQLiteJournal) ListDecisions(symbol string) ([]DecisionRecord, error) {
	q := `
		SELECT decision_id, symbol, time, action, side, reason, price, pivot,
		       volume_ratio, body_pct, imbalance_pct, consecutive_imbalance, bars_held
		FROM decisions`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY time, decision_id`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(&d.DecisionID, &d.Symbol, &d.Time, &d.Action,
			&d.Side, &d.Reason, &d.Price, &d.Pivot, &d.VolumeRatio,
			&d.BodyPct, &d.ImbalancePct, &d.ConsecutiveImbalance,
			&d.BarsHeld); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
