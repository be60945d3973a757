// Package position owns the lifecycle of open positions: partial exits,
// trailing-stop adjustment, time-based exit rules, and realized P&L.
package position

import (
	"time"

	"github.com/rustyeddy/breakout/market"
)

// Exit reasons recorded in the closed-trade ledger.
const (
	StallExit     = "STALL_EXIT"
	PartialProfit = "PARTIAL_PROFIT"
	StopHit       = "STOP_HIT"
	TrailStop     = "TRAIL_STOP"
	EODClose      = "EOD_CLOSE"
)

// Partial is one profit-taking slice already executed.
type Partial struct {
	Rule     int       `json:"rule"` // index of the partial rule that fired
	Fraction float64   `json:"fraction"`
	Shares   int       `json:"shares"`
	Price    float64   `json:"price"`
	Time     time.Time `json:"time"`
}

// Position is one open trade. It is created by the Manager on a confirmed
// entry and mutated only by the Manager.
type Position struct {
	Symbol     string      `json:"symbol"`
	Side       market.Side `json:"side"`
	SetupType  string      `json:"setup_type"`
	PivotPrice float64     `json:"pivot_price"`

	EntryPrice float64   `json:"entry_price"`
	Shares     int       `json:"shares"` // original size
	EntryPos   int64     `json:"entry_pos"`
	EntryTime  time.Time `json:"entry_time"`

	StopPrice   float64 `json:"stop_price"`
	InitialStop float64 `json:"initial_stop"`

	// Trailed marks a stop the trailing rule has tightened at least once.
	// A breakeven move alone does not set it, so a breakeven stop-out is
	// still reported as a plain stop hit.
	Trailed bool `json:"trailed,omitempty"`

	Partials          []Partial `json:"partials,omitempty"`
	RemainingShares   int       `json:"remaining_shares"`
	RemainingFraction float64   `json:"remaining_fraction"`

	// HighWaterMark is the best favorable excursion: highest price seen for
	// a long, lowest for a short. The trailing stop derives from it.
	HighWaterMark float64 `json:"high_water_mark"`

	BrokerOrderIDs []string `json:"broker_order_ids,omitempty"`
	StopOrderID    string   `json:"stop_order_id,omitempty"`

	// PendingClose marks a close decision whose fill confirmation has not
	// arrived. A pending-close position is excluded from exit evaluation
	// and blocks new entry attempts for its symbol. PendingCloseID is the
	// client correlation id assigned before the close order is submitted.
	PendingClose   bool   `json:"pending_close,omitempty"`
	PendingCloseID string `json:"pending_close_id,omitempty"`
	PendingReason  string `json:"pending_reason,omitempty"`
}

// tookPartial reports whether the partial rule at index i already fired.
func (p *Position) tookPartial(i int) bool {
	for _, pt := range p.Partials {
		if pt.Rule == i {
			return true
		}
	}
	return false
}

// UnrealizedPL returns open P&L at the given price for the remaining size.
func (p *Position) UnrealizedPL(price float64) float64 {
	return p.Side.Sign() * (price - p.EntryPrice) * float64(p.RemainingShares)
}

// GainPct returns the signed favorable move from entry as a fraction of the
// entry price (positive when the trade is winning, long or short).
func (p *Position) GainPct(price float64) float64 {
	return p.Side.Sign() * (price - p.EntryPrice) / p.EntryPrice
}
