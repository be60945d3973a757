// Package breakout holds the per-symbol breakout state: what happened since
// the pivot was crossed, and the state machine that turns that record plus
// incoming bars and order-flow samples into entry decisions.
package breakout

import (
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/market"
)

// Kind classifies the bar that crossed the pivot.
type Kind int

const (
	KindStrong   Kind = iota + 1 // large body and high relative volume
	KindWeak                     // either condition marginal
	KindPullback                 // re-approach after an initial strong break
)

func (k Kind) String() string {
	switch k {
	case KindStrong:
		return "STRONG"
	case KindWeak:
		return "WEAK"
	case KindPullback:
		return "PULLBACK"
	default:
		return "UNKNOWN"
	}
}

// Memory records everything that happened since the pivot was crossed. It is
// owned exclusively by the Tracker; the state machine reads it and never
// writes it.
type Memory struct {
	BreakoutPos   int64
	BreakoutPrice float64
	Kind          Kind

	// CandleClosePos is the logical position of the confirmation candle
	// close, nil until that bar arrives.
	CandleClosePos *int64

	BarsHeldBeyondPivot int
	VolumeRatio         float64 // relative volume at the crossing bar

	ConsecutiveImbalance int
	ImbalanceDirection   market.Side

	EntryReason string // free text for audit
}

// Tracker owns one symbol's Memory with an explicit lifecycle: created lazily
// on the first pivot touch, cleared on invalidation or session reset.
type Tracker struct {
	cfg config.SetupConfig
	mem *Memory

	// priorStrong survives clears: a fresh cross after an invalidated
	// strong break is a PULLBACK, not a new independent break.
	priorStrong bool
}

// NewTracker creates a tracker with the setup's classification thresholds.
func NewTracker(cfg config.SetupConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// OnPivotCross initializes or overwrites the memory for a fresh breakout,
// classifying it from candle size and relative volume at the crossing bar.
func (t *Tracker) OnPivotCross(bar market.Bar, pos int64, volumeRatio float64) {
	kind := KindWeak
	switch {
	case t.priorStrong:
		kind = KindPullback
	case bar.BodyPct() >= t.cfg.StrongBodyPct && volumeRatio >= t.cfg.StrongVolumeRatio:
		kind = KindStrong
	}

	t.mem = &Memory{
		BreakoutPos:   pos,
		BreakoutPrice: bar.Close,
		Kind:          kind,
		VolumeRatio:   volumeRatio,
	}
}

// RecordFlowSample updates the consecutive-imbalance accumulator: the count
// increments when the sample's direction matches the running direction and
// its magnitude exceeds the sustained threshold; a directional flip resets
// the count to 1; a sub-threshold sample resets it to 0.
func (t *Tracker) RecordFlowSample(s market.OrderFlowSample) {
	if t.mem == nil {
		return
	}

	if s.Magnitude() < t.cfg.SustainedSampleThreshold {
		t.mem.ConsecutiveImbalance = 0
		t.mem.ImbalanceDirection = 0
		return
	}

	dir := s.PressureSide()
	if dir == t.mem.ImbalanceDirection {
		t.mem.ConsecutiveImbalance++
	} else {
		t.mem.ConsecutiveImbalance = 1
		t.mem.ImbalanceDirection = dir
	}
}

// HoldBar counts one more bar held beyond the pivot.
func (t *Tracker) HoldBar() {
	if t.mem != nil {
		t.mem.BarsHeldBeyondPivot++
	}
}

// MarkCandleClose records the confirmation candle's logical position.
func (t *Tracker) MarkCandleClose(pos int64) {
	if t.mem != nil {
		p := pos
		t.mem.CandleClosePos = &p
	}
}

// Invalidate clears the memory; used when price recrosses back through the
// pivot (the breakout premise is falsified) or after a confirmed entry.
func (t *Tracker) Invalidate() {
	if t.mem != nil && t.mem.Kind == KindStrong {
		t.priorStrong = true
	}
	t.mem = nil
}

// Reset clears everything at a session boundary, including the strong-break
// history that drives PULLBACK classification.
func (t *Tracker) Reset() {
	t.mem = nil
	t.priorStrong = false
}

// Get returns the current memory, nil when no breakout is being tracked.
// Callers must treat the result as read-only.
func (t *Tracker) Get() *Memory {
	return t.mem
}
