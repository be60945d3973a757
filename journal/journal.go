// Package journal persists the audit trail: closed trades and every entry
// decision the engine evaluated, entered or rejected.
package journal

import "time"

// TradeRecord is one closed trade (or closed slice of a trade, for
// partials) appended to the per-session ledger.
type TradeRecord struct {
	TradeID    string
	Symbol     string
	Side       string
	SetupType  string
	Shares     int
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	RealizedPL float64
	Fees       float64
	Reason     string
}

// Duration returns time in trade.
func (t TradeRecord) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// DecisionRecord captures one evaluated entry attempt with the full
// contributing signal values, for audit and offline analysis.
type DecisionRecord struct {
	DecisionID           string
	Symbol               string
	Time                 time.Time
	Action               string // ENTER or REJECT
	Side                 string
	Reason               string
	Price                float64
	Pivot                float64
	VolumeRatio          float64
	BodyPct              float64
	ImbalancePct         float64
	ConsecutiveImbalance int
	BarsHeld             int
}

// Journal is the audit sink. Implementations must tolerate being called
// once per tick without back-pressure on the decision path.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordDecision(DecisionRecord) error
	Close() error
}
