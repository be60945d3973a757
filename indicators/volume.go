// Package indicators provides streaming per-bar indicators. Each indicator
// consumes one bar at a time and exposes Ready/Value, so live and replay
// drivers feed it identically.
package indicators

import (
	"fmt"

	"github.com/rustyeddy/breakout/market"
)

// VolumeSMA is a streaming simple moving average of bar volume. The breakout
// classifier divides a bar's volume by this baseline to get its relative
// volume ratio.
type VolumeSMA struct {
	period int
	window []float64
	sum    float64
}

// NewVolumeSMA creates a volume average over the given bar period.
func NewVolumeSMA(period int) *VolumeSMA {
	return &VolumeSMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (v *VolumeSMA) Name() string {
	return fmt.Sprintf("VolSMA(%d)", v.period)
}

func (v *VolumeSMA) Warmup() int {
	return v.period
}

func (v *VolumeSMA) Reset() {
	v.window = v.window[:0]
	v.sum = 0
}

func (v *VolumeSMA) Update(b market.Bar) {
	v.window = append(v.window, b.Volume)
	v.sum += b.Volume
	if len(v.window) > v.period {
		v.sum -= v.window[0]
		v.window = v.window[1:]
	}
}

func (v *VolumeSMA) Ready() bool {
	return len(v.window) >= v.period
}

func (v *VolumeSMA) Value() float64 {
	if len(v.window) == 0 {
		return 0
	}
	return v.sum / float64(len(v.window))
}

// Ratio returns volume relative to the average, or 1.0 before warmup so
// early-session bars are treated as unremarkable rather than extreme.
func (v *VolumeSMA) Ratio(volume float64) float64 {
	if !v.Ready() || v.Value() == 0 {
		return 1.0
	}
	return volume / v.Value()
}
