package breakout

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/market"
)

// State is the per-symbol machine state. CONFIRMED is instantaneous: the
// machine emits the entry decision and returns to Idle for the next attempt.
type State int

const (
	Idle State = iota
	WatchingBreakout
	AwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case WatchingBreakout:
		return "WATCHING_BREAKOUT"
	case AwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	default:
		return "IDLE"
	}
}

// Machine advances one symbol's breakout state on each bar and order-flow
// sample and emits entry decisions. It holds no clock and no I/O: given the
// same ordered inputs it produces the same decisions, live or replayed.
type Machine struct {
	symbol  string
	pivot   market.PivotLevel
	cfg     config.SetupConfig
	bars    config.BarConfig
	tracker *Tracker

	state   State
	entries int // confirmed entries on this pivot

	log zerolog.Logger
}

// NewMachine creates the state machine for one watched pivot.
func NewMachine(pivot market.PivotLevel, setup config.SetupConfig, barCfg config.BarConfig, tracker *Tracker, log zerolog.Logger) *Machine {
	return &Machine{
		symbol:  pivot.Symbol,
		pivot:   pivot,
		cfg:     setup,
		bars:    barCfg,
		tracker: tracker,
		log:     log.With().Str("component", "machine").Str("symbol", pivot.Symbol).Logger(),
	}
}

// State returns the current machine state.
func (m *Machine) State() State { return m.state }

// Attempts returns the confirmed-entry count for this pivot.
func (m *Machine) Attempts() int { return m.entries }

// RestoreAttempts reloads the attempt counter from a session snapshot.
func (m *Machine) RestoreAttempts(n int) { m.entries = n }

// Pivot returns the watched level.
func (m *Machine) Pivot() market.PivotLevel { return m.pivot }

// beyond reports whether price is past the pivot in the breakout direction.
func (m *Machine) beyond(price float64) bool {
	return m.pivot.Bias.Sign()*(price-m.pivot.Price) > 0
}

// cleared reports whether price is beyond the pivot by the minimum clearance.
func (m *Machine) cleared(price float64) bool {
	return m.pivot.Bias.Sign()*(price-m.pivot.Price)/m.pivot.Price >= m.cfg.MinClearancePct
}

func (m *Machine) signals(price, volumeRatio, bodyPct, imbalance float64) Signals {
	s := Signals{
		Pivot:        m.pivot.Price,
		Price:        price,
		VolumeRatio:  volumeRatio,
		BodyPct:      bodyPct,
		ImbalancePct: imbalance,
	}
	if mem := m.tracker.Get(); mem != nil {
		s.ConsecutiveImbalance = mem.ConsecutiveImbalance
		s.BarsHeld = mem.BarsHeldBeyondPivot
	}
	return s
}

func (m *Machine) decide(t time.Time, action Action, price float64, reason string, sig Signals) Decision {
	return Decision{
		Symbol:         m.symbol,
		Time:           t,
		Action:         action,
		Side:           m.pivot.Bias,
		ReferencePrice: price,
		Reason:         reason,
		Signals:        sig,
	}
}

// invalidate falsifies the current breakout premise: memory is cleared and
// the machine returns to Idle, leaving the symbol eligible for a fresh
// attempt (subject to the per-pivot cap).
func (m *Machine) invalidate(t time.Time, price float64, sig Signals) Decision {
	d := m.decide(t, Reject, price, ReasonPriceReversal, sig)
	m.tracker.Invalidate()
	m.state = Idle
	m.log.Debug().Float64("price", price).Msg("breakout invalidated, price reversed through pivot")
	return d
}

func (m *Machine) confirm(t time.Time, price float64, reason string, sig Signals) Decision {
	m.entries++
	if mem := m.tracker.Get(); mem != nil {
		mem.EntryReason = reason
	}
	d := m.decide(t, Enter, price, reason, sig)
	m.tracker.Invalidate()
	m.state = Idle
	m.log.Info().
		Str("reason", reason).
		Float64("price", price).
		Int("attempt", m.entries).
		Msg("entry confirmed")
	return d
}

// OnBar advances the machine with the close of a new bar. pos is the bar's
// logical position; volumeRatio its volume relative to the session average.
// inEntryWindow gates new attempts, not exits (exits belong to the position
// manager).
func (m *Machine) OnBar(bar market.Bar, pos int64, volumeRatio float64, inEntryWindow bool) Decision {
	sig := m.signals(bar.Close, volumeRatio, bar.BodyPct(), 0)

	switch m.state {
	case Idle:
		if !m.cleared(bar.Close) {
			return m.decide(bar.OpenTime, Wait, bar.Close, ReasonNoBreakout, sig)
		}
		if m.entries >= m.cfg.MaxAttemptsPerPivot {
			return m.decide(bar.OpenTime, Reject, bar.Close, ReasonAttemptCap, sig)
		}
		if !inEntryWindow {
			return m.decide(bar.OpenTime, Reject, bar.Close, ReasonOutsideEntryWindow, sig)
		}

		m.tracker.OnPivotCross(bar, pos, volumeRatio)
		m.state = WatchingBreakout
		mem := m.tracker.Get()
		m.log.Debug().
			Int64("pos", pos).
			Str("kind", mem.Kind.String()).
			Float64("price", bar.Close).
			Msg("pivot crossed, watching breakout")
		return m.decide(bar.OpenTime, Wait, bar.Close, ReasonPivotCross, m.signals(bar.Close, volumeRatio, bar.BodyPct(), 0))

	case WatchingBreakout:
		if !m.beyond(bar.Close) {
			return m.invalidate(bar.OpenTime, bar.Close, sig)
		}
		m.tracker.HoldBar()

		mem := m.tracker.Get()
		// BarsPerConfirmation is derived from the configured intervals on
		// every evaluation; the ratio changes whenever bar granularity does.
		confirmPos := mem.BreakoutPos + int64(m.bars.BarsPerConfirmation())
		if pos < confirmPos {
			return m.decide(bar.OpenTime, Wait, bar.Close, ReasonWatching, sig)
		}

		m.tracker.MarkCandleClose(pos)
		m.state = AwaitingConfirmation

		if volumeRatio >= m.cfg.ConfirmVolumeRatio && bar.BodyPct() >= m.cfg.ConfirmBodyPct {
			m.log.Debug().Int64("pos", pos).Msg("confirmation candle closed with momentum")
			return m.decide(bar.OpenTime, Wait, bar.Close, ReasonMomentumConfirmed, sig)
		}
		// Momentum alone inconclusive; fall through to order-flow evaluation.
		m.log.Debug().Int64("pos", pos).Msg("confirmation candle closed, momentum inconclusive")
		return m.decide(bar.OpenTime, Wait, bar.Close, ReasonAwaitingFlow, sig)

	default: // AwaitingConfirmation
		if !m.beyond(bar.Close) {
			return m.invalidate(bar.OpenTime, bar.Close, sig)
		}
		m.tracker.HoldBar()

		// Path B can complete on a bar when the accumulator already
		// crossed its count threshold while the candle was forming.
		mem := m.tracker.Get()
		if mem.ConsecutiveImbalance >= m.cfg.SustainedCountThreshold &&
			mem.ImbalanceDirection == m.pivot.Bias {
			if !inEntryWindow {
				return m.decide(bar.OpenTime, Reject, bar.Close, ReasonOutsideEntryWindow, sig)
			}
			return m.confirm(bar.OpenTime, bar.Close, ReasonPathB, sig)
		}
		return m.decide(bar.OpenTime, Wait, bar.Close, ReasonAwaitingFlow, sig)
	}
}

// OnFlow advances the machine with an order-flow sample. price is the
// current price at sample arrival; a sample can arrive after price has
// already reverted through the pivot, and that must block entry rather than
// be ignored, so the reversal check runs before any path fires.
func (m *Machine) OnFlow(s market.OrderFlowSample, price float64, inEntryWindow bool) Decision {
	mem := m.tracker.Get()
	sig := m.signals(price, 0, 0, s.ImbalancePct)

	if m.state == Idle || mem == nil {
		return m.decide(s.Time, Wait, price, ReasonNoBreakout, sig)
	}

	m.tracker.RecordFlowSample(s)
	sig = m.signals(price, 0, 0, s.ImbalancePct)

	if m.state == WatchingBreakout {
		// Accumulate only; confirmation paths are armed by the candle close.
		return m.decide(s.Time, Wait, price, ReasonAccumulating, sig)
	}

	// AwaitingConfirmation: re-validate price against the pivot immediately
	// before any path may fire.
	if !m.beyond(price) {
		return m.invalidate(s.Time, price, sig)
	}

	// Path A: a single aggressive sample in the breakout direction.
	if s.PressureSide() == m.pivot.Bias && s.Magnitude() >= m.cfg.SingleSampleThreshold {
		if !inEntryWindow {
			return m.decide(s.Time, Reject, price, ReasonOutsideEntryWindow, sig)
		}
		return m.confirm(s.Time, price, ReasonPathA, sig)
	}

	// Path B: sustained imbalance with matching direction.
	mem = m.tracker.Get()
	if mem.ConsecutiveImbalance >= m.cfg.SustainedCountThreshold &&
		mem.ImbalanceDirection == m.pivot.Bias {
		if !inEntryWindow {
			return m.decide(s.Time, Reject, price, ReasonOutsideEntryWindow, sig)
		}
		return m.confirm(s.Time, price, ReasonPathB, sig)
	}

	return m.decide(s.Time, Reject, price, ReasonThresholdNotMet, sig)
}
