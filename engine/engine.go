// Package engine wires the per-symbol pipelines to the position manager,
// the broker, and the session store, and drives entry and exit decisions
// from the feed. Decisions are a pure function of configuration, the
// session pivot set, and the tick sequence: the same recorded session
// replayed through a fresh engine produces the identical decisions.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/bars"
	"github.com/rustyeddy/breakout/breakout"
	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/feed"
	"github.com/rustyeddy/breakout/indicators"
	"github.com/rustyeddy/breakout/internal/id"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/position"
	"github.com/rustyeddy/breakout/risk"
	"github.com/rustyeddy/breakout/scanner"
	"github.com/rustyeddy/breakout/session"
)

// PriceMarker is implemented by brokers that need the engine to push marks
// (the paper broker triggers resting stops off them). Live brokers mark
// their own book and do not implement it.
type PriceMarker interface {
	MarkPrice(symbol string, price float64, t time.Time)
}

// findMarker walks wrapper clients (the retrying Submitter among them)
// looking for a PriceMarker.
func findMarker(c broker.Client) PriceMarker {
	for c != nil {
		if pm, ok := c.(PriceMarker); ok {
			return pm
		}
		u, ok := c.(interface{ Unwrap() broker.Client })
		if !ok {
			return nil
		}
		c = u.Unwrap()
	}
	return nil
}

// pipeline is the per-symbol decision state. Pipelines are built once at
// startup and never added intraday; an error in one symbol's data must not
// disturb the others.
type pipeline struct {
	level   market.PivotLevel
	buf     *bars.Buffer
	vol     *indicators.VolumeSMA
	machine *breakout.Machine

	lastBarTime time.Time
	lastPrice   float64
	lastPos     int64
}

// Engine routes feed events through the per-symbol pipelines and the
// position manager. Feed events must arrive on a single goroutine; broker
// fills may arrive on any.
type Engine struct {
	cfg     *config.Config
	log     zerolog.Logger
	journal journal.Journal
	store   *session.Store // nil disables persistence
	manager *position.Manager
	broker  broker.Client
	marker  PriceMarker // nil when the broker marks its own book

	pipelines   map[string]*pipeline // fixed after New
	sessionDate string
	entryOpen   time.Duration
	entryClose  time.Duration

	mu       sync.Mutex // guards attempts, lastPos, halted
	attempts map[string]int
	lastPos  map[string]int64
	halted   map[string]bool
}

// New builds an engine for one session. The watchlist supplies the pivot
// set; store may be nil for replay runs that do not persist state.
func New(cfg *config.Config, wl scanner.Watchlist, client broker.Client, j journal.Journal, store *session.Store, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	entryOpen, err := config.ParseClock(cfg.Session.EntryOpen)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	entryClose, err := config.ParseClock(cfg.Session.EntryClose)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	flatten, err := config.ParseClock(cfg.Session.FlattenTime)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	log = log.With().Str("component", "engine").Logger()
	e := &Engine{
		cfg:         cfg,
		log:         log,
		journal:     j,
		store:       store,
		broker:      client,
		marker:      findMarker(client),
		pipelines:   make(map[string]*pipeline, len(wl.Levels)),
		sessionDate: wl.SessionDate,
		entryOpen:   entryOpen,
		entryClose:  entryClose,
		attempts:    make(map[string]int),
		lastPos:     make(map[string]int64),
		halted:      make(map[string]bool),
	}

	for _, lv := range wl.Levels {
		setup, err := cfg.Setups.ForType(lv.SetupType)
		if err != nil {
			return nil, fmt.Errorf("engine: watchlist %s: %w", lv.Symbol, err)
		}
		buf, err := bars.NewBuffer(cfg.Bars.BufferCapacity)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		tracker := breakout.NewTracker(setup)
		e.pipelines[lv.Symbol] = &pipeline{
			level:   lv,
			buf:     buf,
			vol:     indicators.NewVolumeSMA(cfg.Bars.VolumeAveragePeriod),
			machine: breakout.NewMachine(lv, setup, cfg.Bars, tracker, log),
			lastPos: -1,
		}
	}

	e.manager = position.NewManager(cfg.Exits, cfg.Setups, flatten, client, j, log)
	e.manager.SetMutationListener(e.snapshot)
	return e, nil
}

// Manager exposes the position manager, for the runner's summary and EOF
// close.
func (e *Engine) Manager() *position.Manager { return e.manager }

// OnFill satisfies broker.FillListener.
func (e *Engine) OnFill(f broker.Fill) {
	e.manager.OnFill(f)
	mtxRealizedPL.Set(e.manager.RealizedPL())
}

// Resume loads the session snapshot, reconciles it against the broker's
// book, restores what matches, and halts what does not. Cold start (no
// snapshot) returns an empty report.
func (e *Engine) Resume(ctx context.Context) (session.Report, error) {
	if e.store == nil {
		return session.Report{}, nil
	}
	snap, ok, err := e.store.Load(e.sessionDate)
	if err != nil {
		return session.Report{}, fmt.Errorf("resume: %w", err)
	}
	if !ok {
		return session.Report{}, nil
	}

	holdings, err := e.broker.Holdings(ctx)
	if err != nil {
		return session.Report{}, fmt.Errorf("resume: broker holdings: %w", err)
	}
	rep := session.Reconcile(snap, holdings)

	e.manager.Restore(rep.Restorable)
	e.mu.Lock()
	for sym, n := range snap.Attempts {
		e.attempts[sym] = n
		if p, ok := e.pipelines[sym]; ok {
			p.machine.RestoreAttempts(n)
		}
	}
	for sym, pos := range snap.LastPos {
		e.lastPos[sym] = pos
	}
	for _, sym := range rep.HaltedSymbols() {
		e.halted[sym] = true
	}
	mtxHalted.Set(float64(len(e.halted)))
	e.mu.Unlock()

	if err := rep.Err(); err != nil {
		e.log.Error().Err(err).Msg("reconciliation mismatch, affected symbols halted")
	}
	for _, h := range rep.Unmanaged {
		e.log.Warn().Str("symbol", h.Symbol).Int("shares", h.Shares).
			Msg("unmanaged broker holding, symbol halted")
	}
	return rep, nil
}

// Halted reports whether the symbol is excluded from the session.
func (e *Engine) Halted(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted[symbol]
}

func (e *Engine) inEntryWindow(t time.Time) bool {
	clock := config.ClockOf(t)
	return clock >= e.entryOpen && clock <= e.entryClose
}

// OnTick processes one feed event. A *market.DataError return means the
// single event was rejected and the session may continue; any other error
// is fatal to the run.
func (e *Engine) OnTick(ctx context.Context, t feed.Tick) error {
	switch t.Kind {
	case feed.BarEvent:
		return e.onBar(ctx, t.Symbol, t.Bar)
	case feed.FlowEvent:
		return e.onFlow(ctx, t.Flow)
	default:
		return &market.DataError{Field: "type", Reason: "unknown event kind"}
	}
}

func (e *Engine) onBar(ctx context.Context, symbol string, bar market.Bar) error {
	p, ok := e.pipelines[symbol]
	if !ok || e.Halted(symbol) {
		return nil
	}
	if err := bar.Validate(); err != nil {
		mtxDataErrors.WithLabelValues(symbol).Inc()
		return err
	}
	if !p.lastBarTime.IsZero() && !bar.OpenTime.After(p.lastBarTime) {
		mtxDataErrors.WithLabelValues(symbol).Inc()
		return &market.DataError{Field: "open_time", Reason: "out of order"}
	}

	// Ratio against the average of prior bars, then fold this bar in.
	ratio := p.vol.Ratio(bar.Volume)
	pos := p.buf.Append(bar)
	p.vol.Update(bar)
	p.lastBarTime = bar.OpenTime
	p.lastPrice = bar.Close
	p.lastPos = pos
	e.mu.Lock()
	e.lastPos[symbol] = pos
	e.mu.Unlock()
	mtxBars.WithLabelValues(symbol).Inc()

	if e.marker != nil {
		e.marker.MarkPrice(symbol, bar.Close, bar.OpenTime)
	}

	// Exits run before entries on every bar.
	if err := e.manager.Evaluate(ctx, symbol, bar); err != nil {
		return fmt.Errorf("evaluate exits %s: %w", symbol, err)
	}

	// One position per symbol: a pending close still blocks.
	if e.manager.HasOpen(symbol) {
		return nil
	}

	d := p.machine.OnBar(bar, pos, ratio, e.inEntryWindow(bar.OpenTime))
	return e.applyDecision(ctx, p, d)
}

func (e *Engine) onFlow(ctx context.Context, s market.OrderFlowSample) error {
	p, ok := e.pipelines[s.Symbol]
	if !ok || e.Halted(s.Symbol) {
		return nil
	}
	if err := s.Validate(); err != nil {
		mtxDataErrors.WithLabelValues(s.Symbol).Inc()
		return err
	}
	// No bar yet means no reference price to judge the sample against.
	if p.lastPrice == 0 {
		return nil
	}
	if e.manager.HasOpen(s.Symbol) {
		return nil
	}

	d := p.machine.OnFlow(s, p.lastPrice, e.inEntryWindow(s.Time))
	return e.applyDecision(ctx, p, d)
}

func (e *Engine) applyDecision(ctx context.Context, p *pipeline, d breakout.Decision) error {
	if d.Action == breakout.Wait {
		return nil
	}
	mtxDecisions.WithLabelValues(d.Action.String(), d.Reason).Inc()
	e.recordDecision(d)

	if d.Action != breakout.Enter {
		return nil
	}
	if err := e.enter(ctx, p, d); err != nil {
		return fmt.Errorf("enter %s: %w", d.Symbol, err)
	}
	return nil
}

// enter sizes the confirmed entry, validates it, and hands it to the
// position manager. A sizing rejection is logged and dropped; the
// confirmation was already consumed, so the attempt counts.
func (e *Engine) enter(ctx context.Context, p *pipeline, d breakout.Decision) error {
	in := risk.Inputs{
		AccountSize:      e.cfg.Account.Size,
		RiskFraction:     e.cfg.Risk.RiskFraction,
		EntryPrice:       d.ReferencePrice,
		StopPrice:        p.level.Price,
		MaxPositionValue: e.cfg.Risk.MaxPositionValue,
		MaxShares:        e.cfg.Risk.MaxShares,
	}
	res, err := risk.Size(in)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("entry dropped, unsizeable")
		return nil
	}
	if err := risk.Validate(in, e.cfg.Risk.BufferFraction); err != nil {
		e.log.Warn().Err(err).Str("symbol", d.Symbol).Msg("entry dropped, pre-trade check failed")
		return nil
	}

	e.mu.Lock()
	e.attempts[d.Symbol] = p.machine.Attempts()
	e.mu.Unlock()

	err = e.manager.Open(ctx, position.OpenRequest{
		Symbol:     d.Symbol,
		Side:       d.Side,
		SetupType:  p.level.SetupType,
		PivotPrice: p.level.Price,
		EntryPrice: d.ReferencePrice,
		Shares:     res.Shares,
		StopPrice:  p.level.Price,
		EntryPos:   p.lastPos,
		EntryTime:  d.Time,
	})
	if err != nil {
		return err
	}
	mtxEntries.WithLabelValues(d.Side.String(), p.level.SetupType).Inc()
	e.log.Info().Str("symbol", d.Symbol).Str("reason", d.Reason).
		Int("shares", res.Shares).Str("bound_by", string(res.BoundBy)).
		Msg("entry executed")
	return nil
}

func (e *Engine) recordDecision(d breakout.Decision) {
	if e.journal == nil {
		return
	}
	rec := journal.DecisionRecord{
		DecisionID:           id.New(),
		Symbol:               d.Symbol,
		Time:                 d.Time,
		Action:               d.Action.String(),
		Side:                 d.Side.String(),
		Reason:               d.Reason,
		Price:                d.ReferencePrice,
		Pivot:                d.Signals.Pivot,
		VolumeRatio:          d.Signals.VolumeRatio,
		BodyPct:              d.Signals.BodyPct,
		ImbalancePct:         d.Signals.ImbalancePct,
		ConsecutiveImbalance: d.Signals.ConsecutiveImbalance,
		BarsHeld:             d.Signals.BarsHeld,
	}
	if err := e.journal.RecordDecision(rec); err != nil {
		e.log.Error().Err(err).Str("symbol", d.Symbol).Msg("journal decision")
	}
}

// snapshot persists the full session state. It runs after every position
// mutation; a failed save is logged, never fatal to the trading path.
func (e *Engine) snapshot() {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	attempts := make(map[string]int, len(e.attempts))
	for k, v := range e.attempts {
		attempts[k] = v
	}
	lastPos := make(map[string]int64, len(e.lastPos))
	for k, v := range e.lastPos {
		lastPos[k] = v
	}
	e.mu.Unlock()

	snap := session.Snapshot{
		SessionDate: e.sessionDate,
		Positions:   e.manager.OpenPositions(),
		Attempts:    attempts,
		LastPos:     lastPos,
	}
	if err := e.store.Save(snap); err != nil {
		e.log.Error().Err(err).Msg("session snapshot failed")
	}
}
