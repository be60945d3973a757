// Package feed delivers market events to the engine: completed bars and
// order-flow samples, from a live stream or a recorded session.
package feed

import "github.com/rustyeddy/breakout/market"

// EventKind discriminates a Tick's payload.
type EventKind int

const (
	BarEvent EventKind = iota
	FlowEvent
)

func (k EventKind) String() string {
	switch k {
	case BarEvent:
		return "bar"
	case FlowEvent:
		return "flow"
	default:
		return "unknown"
	}
}

// Tick is one feed event: a completed bar or an order-flow sample, never
// both. The feed preserves the source's arrival order; the engine's
// decisions are a pure function of that sequence.
type Tick struct {
	Kind   EventKind
	Symbol string
	Bar    market.Bar
	Flow   market.OrderFlowSample
}

// Feed yields ticks one at a time. Implementations must be deterministic
// for identical sources and return (ok=false, err=nil) at end of stream.
type Feed interface {
	Next() (t Tick, ok bool, err error)
	Close() error
}
