package market

import "time"

// OrderFlowSample is a signed aggressive buy/sell imbalance over an interval,
// produced by an external aggregator from trade-level data. Arrival cadence
// may be sparser than bars.
//
// Sign convention: positive ImbalancePct means selling pressure, negative
// means buying pressure. Use PressureSide rather than comparing signs inline;
// the convention is too easy to get backwards.
type OrderFlowSample struct {
	Symbol       string
	Time         time.Time
	ImbalancePct float64
}

// Magnitude returns the unsigned imbalance.
func (s OrderFlowSample) Magnitude() float64 {
	if s.ImbalancePct < 0 {
		return -s.ImbalancePct
	}
	return s.ImbalancePct
}

// PressureSide returns the trade side the sample supports: buying pressure
// (negative imbalance) supports Long, selling pressure supports Short.
// Returns 0 for a perfectly balanced sample.
func (s OrderFlowSample) PressureSide() Side {
	switch {
	case s.ImbalancePct < 0:
		return Long
	case s.ImbalancePct > 0:
		return Short
	default:
		return 0
	}
}

// Validate checks the sample for malformed fields.
func (s OrderFlowSample) Validate() error {
	if s.Symbol == "" {
		return &DataError{Field: "symbol", Reason: "missing"}
	}
	if s.Time.IsZero() {
		return &DataError{Field: "time", Reason: "missing"}
	}
	return nil
}
