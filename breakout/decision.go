package breakout

import (
	"time"

	"github.com/rustyeddy/breakout/market"
)

// Action is the outcome of one evaluation.
type Action int

const (
	// Wait: nothing decidable this tick; the attempt is still live.
	Wait Action = iota
	// Enter: confirmed, one-shot entry decision.
	Enter
	// Reject: evaluated and refused, with a structured reason. No
	// rejection is silent.
	Reject
)

func (a Action) String() string {
	switch a {
	case Enter:
		return "ENTER"
	case Reject:
		return "REJECT"
	default:
		return "WAIT"
	}
}

// Rejection and confirmation reasons. These land in the decision journal, so
// they are stable strings rather than error values.
const (
	ReasonPivotCross         = "pivot_cross"
	ReasonWatching           = "watching_breakout"
	ReasonMomentumConfirmed  = "momentum_confirmed"
	ReasonAwaitingFlow       = "awaiting_order_flow"
	ReasonAccumulating       = "accumulating_order_flow"
	ReasonNoBreakout         = "no_breakout"
	ReasonPathA              = "order_flow_single_sample"
	ReasonPathB              = "order_flow_sustained"
	ReasonPriceReversal      = "price_reversal"
	ReasonThresholdNotMet    = "threshold_not_met"
	ReasonAttemptCap         = "attempt_cap_exhausted"
	ReasonOutsideEntryWindow = "outside_entry_window"
)

// Signals is the snapshot of contributing values captured with every
// decision, for audit and offline analysis.
type Signals struct {
	Pivot                float64
	Price                float64
	VolumeRatio          float64
	BodyPct              float64
	ImbalancePct         float64
	ConsecutiveImbalance int
	BarsHeld             int
}

// Decision is the one-shot output of an evaluation: enter, wait, or reject
// with reason.
type Decision struct {
	Symbol         string
	Time           time.Time
	Action         Action
	Side           market.Side
	ReferencePrice float64
	Reason         string
	Signals        Signals
}
