package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/internal/id"
	"github.com/rustyeddy/breakout/journal"
	"github.com/rustyeddy/breakout/market"
)

// OrderRouter is the order surface the Manager consumes. Both the paper
// broker and the retrying Submitter satisfy it.
type OrderRouter interface {
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
	SubmitStop(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
	ModifyStop(ctx context.Context, orderID string, stopPrice float64) error
	CancelOrder(ctx context.Context, orderID string) error
}

// MutationListener is notified after every position mutation, while the
// manager lock is NOT held. The engine uses it to snapshot session state.
type MutationListener func()

// gainEpsilon is the tolerance for partial-profit threshold comparisons.
const gainEpsilon = 1e-9

// OpenRequest describes a confirmed entry handed to the Manager.
type OpenRequest struct {
	Symbol     string
	Side       market.Side
	SetupType  string
	PivotPrice float64
	EntryPrice float64
	Shares     int
	StopPrice  float64
	EntryPos   int64
	EntryTime  time.Time
}

// Manager tracks all open positions and applies the exit rules in a fixed
// order on every completed bar: stall exit, partial profit, trailing-stop
// update, stop hit, end-of-day flatten. The first rule that applies wins
// the tick; a trailing update counts as applying only when it actually
// tightens the stop.
type Manager struct {
	mu       sync.Mutex
	cfg      config.ExitConfig
	setups   config.SetupsConfig
	flatten  time.Duration // time-of-day offset for the EOD flatten
	router   OrderRouter
	journal  journal.Journal
	log      zerolog.Logger
	open     map[string]*Position
	ledger   []journal.TradeRecord
	listener MutationListener
}

// NewManager wires the exit-rule engine. flattenClock is the time-of-day
// offset past which every open position is force closed.
func NewManager(cfg config.ExitConfig, setups config.SetupsConfig, flattenClock time.Duration, router OrderRouter, j journal.Journal, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		setups:  setups,
		flatten: flattenClock,
		router:  router,
		journal: j,
		log:     log.With().Str("component", "position").Logger(),
		open:    make(map[string]*Position),
	}
}

// SetMutationListener registers the snapshot hook. Call before feeding data.
func (m *Manager) SetMutationListener(l MutationListener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

func (m *Manager) notify() {
	if m.listener != nil {
		m.listener()
	}
}

// HasOpen reports whether the symbol holds an open or pending-close
// position. Pending-close still blocks new entries.
func (m *Manager) HasOpen(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[symbol]
	return ok
}

// Get returns a copy of the open position for the symbol.
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.open[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OpenPositions returns copies of all open positions, for snapshots.
func (m *Manager) OpenPositions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// Restore reinstates positions from a session snapshot without submitting
// any orders. Protective stops are assumed to still rest at the broker.
func (m *Manager) Restore(positions []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range positions {
		p := positions[i]
		m.open[p.Symbol] = &p
	}
}

// Ledger returns the closed-trade records accumulated this session, in
// close order.
func (m *Manager) Ledger() []journal.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]journal.TradeRecord, len(m.ledger))
	copy(out, m.ledger)
	return out
}

// RealizedPL sums the closed-trade ledger.
func (m *Manager) RealizedPL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, t := range m.ledger {
		sum += t.RealizedPL
	}
	return sum
}

// UnrealizedPL returns open P&L across all positions at the given marks.
func (m *Manager) UnrealizedPL(marks map[string]float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for sym, p := range m.open {
		if px, ok := marks[sym]; ok {
			sum += p.UnrealizedPL(px)
		}
	}
	return sum
}

// Open submits the entry market order and the protective stop, then
// registers the position. One position per symbol.
func (m *Manager) Open(ctx context.Context, req OpenRequest) error {
	if req.Shares <= 0 {
		return fmt.Errorf("open %s: shares must be positive, got %d", req.Symbol, req.Shares)
	}
	m.mu.Lock()
	if _, ok := m.open[req.Symbol]; ok {
		m.mu.Unlock()
		return fmt.Errorf("open %s: position already open", req.Symbol)
	}
	m.mu.Unlock()

	entry, err := m.router.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: req.Symbol,
		Side:   req.Side,
		Shares: req.Shares,
		Kind:   broker.Market,
	})
	if err != nil {
		return fmt.Errorf("open %s: entry order: %w", req.Symbol, err)
	}
	stop, err := m.router.SubmitStop(ctx, broker.OrderRequest{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Shares:    req.Shares,
		Kind:      broker.Stop,
		StopPrice: req.StopPrice,
		Closing:   true,
	})
	if err != nil {
		return fmt.Errorf("open %s: protective stop: %w", req.Symbol, err)
	}

	p := &Position{
		Symbol:            req.Symbol,
		Side:              req.Side,
		SetupType:         req.SetupType,
		PivotPrice:        req.PivotPrice,
		EntryPrice:        req.EntryPrice,
		Shares:            req.Shares,
		EntryPos:          req.EntryPos,
		EntryTime:         req.EntryTime,
		StopPrice:         req.StopPrice,
		InitialStop:       req.StopPrice,
		RemainingShares:   req.Shares,
		RemainingFraction: 1.0,
		HighWaterMark:     req.EntryPrice,
		BrokerOrderIDs:    []string{entry.ID, stop.ID},
		StopOrderID:       stop.ID,
	}
	m.mu.Lock()
	m.open[req.Symbol] = p
	m.mu.Unlock()
	m.notify()

	m.log.Info().Str("symbol", req.Symbol).Str("side", req.Side.String()).
		Int("shares", req.Shares).Float64("entry", req.EntryPrice).
		Float64("stop", req.StopPrice).Msg("position opened")
	return nil
}

// Evaluate runs the exit rules for the symbol against a completed bar.
// It is a no-op for symbols with no open position or a pending close.
func (m *Manager) Evaluate(ctx context.Context, symbol string, bar market.Bar) error {
	m.mu.Lock()
	p, ok := m.open[symbol]
	if !ok || p.PendingClose {
		m.mu.Unlock()
		return nil
	}

	price := bar.Close
	sign := p.Side.Sign()
	if sign*(price-p.HighWaterMark) > 0 {
		p.HighWaterMark = price
	}

	// Rule 1: stall exit. A trade that has gone nowhere inside the stall
	// window gets cut. Any partial already taken proves the trade moved,
	// so the rule is suppressed for the rest of the position.
	inTrade := bar.OpenTime.Sub(p.EntryTime)
	if len(p.Partials) == 0 &&
		inTrade >= time.Duration(m.cfg.StallWindowStartSeconds)*time.Second &&
		inTrade <= time.Duration(m.cfg.StallWindowEndSeconds)*time.Second &&
		math.Abs(price-p.EntryPrice)/p.EntryPrice <= m.cfg.StallTolerancePct {
		return m.requestCloseLocked(ctx, p, StallExit)
	}

	// Rule 2: partial profit. Each configured rule fires at most once.
	// The epsilon absorbs float representation error when the price lands
	// exactly on the configured threshold.
	gain := p.GainPct(price)
	for i, rule := range m.cfg.Partials {
		if p.tookPartial(i) || gain < rule.GainPct-gainEpsilon {
			continue
		}
		return m.takePartialLocked(ctx, p, i, rule, price, bar.OpenTime)
	}

	// Rule 3: trailing-stop update, tighten only. The trail engages once
	// the high-water mark has moved past entry; until then the initial
	// stop governs.
	trail := p.HighWaterMark * (1 - sign*m.cfg.TrailDistancePct)
	if sign*(p.HighWaterMark-p.EntryPrice) > 0 && sign*(trail-p.StopPrice) > 0 {
		old := p.StopPrice
		p.StopPrice = trail
		p.Trailed = true
		stopID := p.StopOrderID
		m.mu.Unlock()
		if err := m.router.ModifyStop(ctx, stopID, trail); err != nil {
			return fmt.Errorf("trail %s: %w", symbol, err)
		}
		m.notify()
		m.log.Debug().Str("symbol", symbol).Float64("from", old).Float64("to", trail).Msg("stop trailed")
		return nil
	}

	// Rule 4: stop hit on the bar close. The broker's resting stop usually
	// executes first and arrives as a fill; this is the engine's own check
	// for brokers without server-side stops.
	if sign*(price-p.StopPrice) <= 0 {
		reason := StopHit
		if p.Trailed {
			reason = TrailStop
		}
		return m.requestCloseLocked(ctx, p, reason)
	}

	// Rule 5: end-of-day flatten.
	if config.ClockOf(bar.OpenTime) >= m.flatten {
		return m.requestCloseLocked(ctx, p, EODClose)
	}

	m.mu.Unlock()
	return nil
}

// takePartialLocked submits a closing slice and applies the reduction.
// Called with the lock held; releases it.
func (m *Manager) takePartialLocked(ctx context.Context, p *Position, ruleIdx int, rule config.PartialRule, price float64, at time.Time) error {
	shares := int(math.Round(rule.Fraction * float64(p.Shares)))
	if shares < 1 {
		shares = 1
	}
	if shares >= p.RemainingShares {
		shares = p.RemainingShares - 1
	}
	if shares < 1 {
		// Position too small to slice; mark the rule spent and move on.
		p.Partials = append(p.Partials, Partial{Rule: ruleIdx, Time: at})
		m.mu.Unlock()
		m.notify()
		return nil
	}

	// Record the fraction actually sliced, not the configured one, so a
	// clamped slice keeps fractions and share counts in agreement.
	frac := float64(shares) / float64(p.Shares)
	symbol, side := p.Symbol, p.Side
	m.mu.Unlock()
	ord, err := m.router.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:  symbol,
		Side:    side,
		Shares:  shares,
		Kind:    broker.Market,
		Closing: true,
	})
	if err != nil {
		return fmt.Errorf("partial %s: %w", symbol, err)
	}

	m.mu.Lock()
	p.Partials = append(p.Partials, Partial{
		Rule:     ruleIdx,
		Fraction: frac,
		Shares:   shares,
		Price:    price,
		Time:     at,
	})
	p.RemainingShares -= shares
	p.RemainingFraction -= frac
	p.BrokerOrderIDs = append(p.BrokerOrderIDs, ord.ID)

	rec := journal.TradeRecord{
		TradeID:    id.New(),
		Symbol:     symbol,
		Side:       side.String(),
		SetupType:  p.SetupType,
		Shares:     shares,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		EntryTime:  p.EntryTime,
		ExitTime:   at,
		RealizedPL: side.Sign() * (price - p.EntryPrice) * float64(shares),
		Reason:     PartialProfit,
	}
	m.ledger = append(m.ledger, rec)

	// Breakeven protection after the first partial, when the setup asks
	// for it and the move only tightens.
	var stopMove struct {
		id    string
		price float64
	}
	if setup, err := m.setups.ForType(p.SetupType); err == nil && setup.MoveStopToBreakeven {
		if side.Sign()*(p.EntryPrice-p.StopPrice) > 0 {
			p.StopPrice = p.EntryPrice
			stopMove.id, stopMove.price = p.StopOrderID, p.EntryPrice
		}
	}
	m.mu.Unlock()

	if stopMove.id != "" {
		if err := m.router.ModifyStop(ctx, stopMove.id, stopMove.price); err != nil {
			return fmt.Errorf("partial %s: breakeven stop: %w", symbol, err)
		}
	}
	if m.journal != nil {
		if err := m.journal.RecordTrade(rec); err != nil {
			m.log.Error().Err(err).Str("symbol", symbol).Msg("journal partial")
		}
	}
	m.notify()
	m.log.Info().Str("symbol", symbol).Int("rule", ruleIdx).Int("shares", shares).
		Float64("price", price).Msg("partial profit taken")
	return nil
}

// requestCloseLocked cancels the resting stop, submits a market close for
// the remaining size, and parks the position as pending-close until the
// fill arrives. The pending state is recorded before the submit: the paper
// broker delivers the fill synchronously from inside SubmitOrder, and the
// fill must already find a match. Called with the lock held; releases it.
func (m *Manager) requestCloseLocked(ctx context.Context, p *Position, reason string) error {
	closeID := id.New()
	symbol, side, shares, stopID := p.Symbol, p.Side, p.RemainingShares, p.StopOrderID
	p.PendingClose = true
	p.PendingCloseID = closeID
	p.PendingReason = reason
	p.StopOrderID = ""
	m.mu.Unlock()

	if stopID != "" {
		if err := m.router.CancelOrder(ctx, stopID); err != nil && !errors.Is(err, broker.ErrOrderNotFound) {
			m.unmarkPending(symbol, closeID, stopID)
			return fmt.Errorf("close %s: cancel stop: %w", symbol, err)
		}
	}
	ord, err := m.router.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Shares:   shares,
		Kind:     broker.Market,
		Closing:  true,
		ClientID: closeID,
	})
	if err != nil {
		m.unmarkPending(symbol, closeID, "")
		return fmt.Errorf("close %s: %w", symbol, err)
	}

	m.mu.Lock()
	// The fill may have already finalized and removed the position.
	if cur, ok := m.open[symbol]; ok && cur.PendingCloseID == closeID {
		cur.BrokerOrderIDs = append(cur.BrokerOrderIDs, ord.ID)
	}
	m.mu.Unlock()
	m.notify()
	m.log.Info().Str("symbol", symbol).Str("reason", reason).Int("shares", shares).Msg("close requested")
	return nil
}

// unmarkPending rolls back a failed close request so the position resumes
// exit evaluation. stopID restores the resting stop if it was not cancelled.
func (m *Manager) unmarkPending(symbol, closeID, stopID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.open[symbol]
	if !ok || p.PendingCloseID != closeID {
		return
	}
	p.PendingClose = false
	p.PendingCloseID = ""
	p.PendingReason = ""
	p.StopOrderID = stopID
}

// OnFill consumes execution events. A fill matching a pending close
// finalizes the trade; a fill on the resting stop order is the broker
// executing the stop on its own, and drives the same removal path.
func (m *Manager) OnFill(f broker.Fill) {
	if !f.Closing {
		return
	}
	m.mu.Lock()
	p, ok := m.open[f.Symbol]
	if !ok {
		m.mu.Unlock()
		return
	}
	switch {
	case p.PendingClose && (f.ClientID == p.PendingCloseID || f.OrderID == p.PendingCloseID):
		m.finalizeLocked(p, f, p.PendingReason)
	case p.StopOrderID != "" && f.OrderID == p.StopOrderID:
		reason := StopHit
		if p.Trailed {
			reason = TrailStop
		}
		m.finalizeLocked(p, f, reason)
	default:
		// Partial-slice fill, already applied at submit time.
		m.mu.Unlock()
	}
}

// finalizeLocked writes the closed-trade record and removes the position.
// Called with the lock held; releases it.
func (m *Manager) finalizeLocked(p *Position, f broker.Fill, reason string) {
	rec := journal.TradeRecord{
		TradeID:    id.New(),
		Symbol:     p.Symbol,
		Side:       p.Side.String(),
		SetupType:  p.SetupType,
		Shares:     p.RemainingShares,
		EntryPrice: p.EntryPrice,
		ExitPrice:  f.Price,
		EntryTime:  p.EntryTime,
		ExitTime:   f.Time,
		RealizedPL: p.Side.Sign() * (f.Price - p.EntryPrice) * float64(p.RemainingShares),
		Reason:     reason,
	}
	m.ledger = append(m.ledger, rec)
	delete(m.open, p.Symbol)
	m.mu.Unlock()

	if m.journal != nil {
		if err := m.journal.RecordTrade(rec); err != nil {
			m.log.Error().Err(err).Str("symbol", p.Symbol).Msg("journal trade")
		}
	}
	m.notify()
	m.log.Info().Str("symbol", p.Symbol).Str("reason", reason).
		Float64("exit", f.Price).Float64("pl", rec.RealizedPL).Msg("position closed")
}

// CloseAll force closes every open position, pending-close ones excluded.
// The replay runner calls it when the data ends before the flatten time.
func (m *Manager) CloseAll(ctx context.Context, reason string) error {
	m.mu.Lock()
	syms := make([]string, 0, len(m.open))
	for sym, p := range m.open {
		if !p.PendingClose {
			syms = append(syms, sym)
		}
	}
	m.mu.Unlock()
	sort.Strings(syms)

	var firstErr error
	for _, sym := range syms {
		m.mu.Lock()
		p, ok := m.open[sym]
		if !ok || p.PendingClose {
			m.mu.Unlock()
			continue
		}
		if err := m.requestCloseLocked(ctx, p, reason); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
