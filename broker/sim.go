package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/market"
)

// Sim is an immediate-fill paper broker. Market orders fill at the last
// marked price; stop orders rest and trigger on MarkPrice, producing the
// same external-fill events a real broker would. Replay and live paper
// trading share this implementation so the engine exercises one code path.
type Sim struct {
	mu       sync.Mutex
	prices   map[string]float64
	times    map[string]time.Time
	stops    map[string]Order
	holdings map[string]*Holding
	listener FillListener
	log      zerolog.Logger
}

// NewSim creates an empty paper broker.
func NewSim(log zerolog.Logger) *Sim {
	return &Sim{
		prices:   make(map[string]float64),
		times:    make(map[string]time.Time),
		stops:    make(map[string]Order),
		holdings: make(map[string]*Holding),
		log:      log.With().Str("component", "sim-broker").Logger(),
	}
}

// SetFillListener registers the fill consumer. Fills are delivered after
// the internal lock is released, so the listener may call back into Sim's
// read methods but not submit from OnFill.
func (s *Sim) SetFillListener(l FillListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// SeedHolding primes the broker book, for reconciliation tests.
func (s *Sim) SeedHolding(h Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hh := h
	s.holdings[h.Symbol] = &hh
}

// MarkPrice records the latest price for a symbol and triggers any resting
// stops it crosses.
func (s *Sim) MarkPrice(symbol string, price float64, t time.Time) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.times[symbol] = t

	var fired []Fill
	for id, o := range s.stops {
		if o.Symbol != symbol {
			continue
		}
		// A stop protecting a long triggers when price drops to it; a
		// short's stop triggers when price rises to it.
		triggered := (o.Side == market.Long && price <= o.StopPrice) ||
			(o.Side == market.Short && price >= o.StopPrice)
		if !triggered {
			continue
		}
		delete(s.stops, id)
		fill := s.fillLocked(o, o.StopPrice, t)
		fired = append(fired, fill)
	}
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		for _, f := range fired {
			listener.OnFill(f)
		}
	}
}

func (s *Sim) fillLocked(o Order, price float64, t time.Time) Fill {
	delta := o.Shares
	if (o.Side == market.Long) == o.Closing {
		delta = -delta
	}
	h := s.holdings[o.Symbol]
	if h == nil {
		h = &Holding{Symbol: o.Symbol}
		s.holdings[o.Symbol] = h
	}
	h.Shares += delta
	if h.Shares == 0 {
		delete(s.holdings, o.Symbol)
	} else if !o.Closing {
		h.AvgPrice = price
	}

	return Fill{
		OrderID:  o.ID,
		ClientID: o.ClientID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Shares:   o.Shares,
		Price:    price,
		Time:     t,
		Closing:  o.Closing,
	}
}

func (s *Sim) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.Shares <= 0 {
		return Order{}, fmt.Errorf("sim: shares must be positive, got %d", req.Shares)
	}

	s.mu.Lock()
	price, ok := s.prices[req.Symbol]
	if !ok {
		s.mu.Unlock()
		return Order{}, fmt.Errorf("sim: no price for %q", req.Symbol)
	}
	t := s.times[req.Symbol]

	o := Order{
		ID:        uuid.NewString(),
		ClientID:  req.ClientID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Shares:    req.Shares,
		Kind:      Market,
		Closing:   req.Closing,
		Submitted: t,
	}
	fill := s.fillLocked(o, price, t)
	listener := s.listener
	s.mu.Unlock()

	s.log.Debug().Str("order_id", o.ID).Str("symbol", o.Symbol).
		Int("shares", o.Shares).Float64("price", price).Msg("market order filled")

	if listener != nil {
		listener.OnFill(fill)
	}
	return o, nil
}

func (s *Sim) SubmitStop(ctx context.Context, req OrderRequest) (Order, error) {
	if req.Shares <= 0 {
		return Order{}, fmt.Errorf("sim: shares must be positive, got %d", req.Shares)
	}
	if req.StopPrice <= 0 {
		return Order{}, fmt.Errorf("sim: stop price must be positive, got %v", req.StopPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o := Order{
		ID:        uuid.NewString(),
		ClientID:  req.ClientID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Shares:    req.Shares,
		Kind:      Stop,
		StopPrice: req.StopPrice,
		Closing:   true,
		Submitted: s.times[req.Symbol],
	}
	s.stops[o.ID] = o
	return o, nil
}

func (s *Sim) ModifyStop(ctx context.Context, orderID string, stopPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.stops[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.StopPrice = stopPrice
	s.stops[orderID] = o
	return nil
}

func (s *Sim) CancelOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stops[orderID]; !ok {
		return ErrOrderNotFound
	}
	delete(s.stops, orderID)
	return nil
}

func (s *Sim) Holdings(ctx context.Context) ([]Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, *h)
	}
	return out, nil
}

// OpenStops returns the resting stop count, for tests.
func (s *Sim) OpenStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stops)
}
