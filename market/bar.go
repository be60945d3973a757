package market

import "time"

// Bar is one OHLCV interval for a single symbol. Bars are immutable once
// produced; ordering is by arrival, never by wall clock alone (a replay may
// compress time).
type Bar struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Body returns the absolute open-to-close distance.
func (b Bar) Body() float64 {
	d := b.Close - b.Open
	if d < 0 {
		return -d
	}
	return d
}

// Range returns the high-to-low distance.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// BodyPct returns the body as a fraction of the close, a scale-free measure
// of candle size. Zero when the close is zero.
func (b Bar) BodyPct() float64 {
	if b.Close == 0 {
		return 0
	}
	return b.Body() / b.Close
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool {
	return b.Close > b.Open
}

// Validate checks the bar for malformed fields. A failed check is a
// DataError: the single bar is rejected and the session continues.
func (b Bar) Validate() error {
	if b.OpenTime.IsZero() {
		return &DataError{Field: "open_time", Reason: "missing"}
	}
	if b.High < b.Low {
		return &DataError{Field: "high", Reason: "high below low"}
	}
	if b.Open > b.High || b.Open < b.Low {
		return &DataError{Field: "open", Reason: "outside high/low range"}
	}
	if b.Close > b.High || b.Close < b.Low {
		return &DataError{Field: "close", Reason: "outside high/low range"}
	}
	if b.Volume < 0 {
		return &DataError{Field: "volume", Reason: "negative"}
	}
	return nil
}
