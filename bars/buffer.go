// Package bars stores each symbol's session bars in a bounded ring.
//
// Every appended bar gets a logical position: a strictly increasing integer
// starting at 0 for the first bar of the session. The logical position never
// wraps; only the physical slot (position mod capacity) does. Lookback rules
// must do their arithmetic in logical positions and handle ErrEvicted
// explicitly -- a position that has fallen out of the window is reported as
// evicted, never approximated.
package bars

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/breakout/market"
)

// ErrEvicted is returned by Get when the requested logical position has been
// overwritten. The caller must treat it as "insufficient history" and take
// the conservative no-action result.
var ErrEvicted = errors.New("bars: position evicted from buffer")

// ErrFuture is returned by Get for a position that has not been appended yet.
var ErrFuture = errors.New("bars: position not yet appended")

// Buffer is a fixed-capacity ring of bars for one symbol. It is not safe for
// concurrent use; each symbol's pipeline owns its buffer and processes ticks
// in arrival order.
type Buffer struct {
	slots []market.Bar
	count int64 // bars appended this session; next logical position
}

// NewBuffer returns a ring holding the last capacity bars. Capacity must
// exceed the longest lookback window used by any confirmation path; size it
// for the full session, not a few minutes.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("bars: capacity must be positive, got %d", capacity)
	}
	return &Buffer{slots: make([]market.Bar, capacity)}, nil
}

// Append stores the bar and returns its logical position. Append is the only
// mutator and is O(1): given the same ordered bar sequence it produces the
// same position assignments and the same evictions regardless of wall-clock
// timing, which is what keeps backtest and live runs comparable.
func (b *Buffer) Append(bar market.Bar) int64 {
	pos := b.count
	b.slots[pos%int64(len(b.slots))] = bar
	b.count++
	return pos
}

// Get returns the bar appended at the given logical position.
func (b *Buffer) Get(pos int64) (market.Bar, error) {
	if pos < 0 || pos >= b.count {
		return market.Bar{}, ErrFuture
	}
	if b.count-pos > int64(len(b.slots)) {
		return market.Bar{}, ErrEvicted
	}
	return b.slots[pos%int64(len(b.slots))], nil
}

// Latest returns the logical position of the most recent bar, or -1 when the
// buffer is empty.
func (b *Buffer) Latest() int64 {
	return b.count - 1
}

// Len returns the number of bars currently retrievable.
func (b *Buffer) Len() int {
	if b.count < int64(len(b.slots)) {
		return int(b.count)
	}
	return len(b.slots)
}

// Capacity returns the fixed slot count.
func (b *Buffer) Capacity() int {
	return len(b.slots)
}

// Reset clears the buffer for a new trading session. Logical positions
// restart at 0; they never reset mid-session.
func (b *Buffer) Reset() {
	b.count = 0
}
