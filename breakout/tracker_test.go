package breakout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/config"
	"github.com/rustyeddy/breakout/market"
)

func testSetup() config.SetupConfig {
	return config.SetupConfig{
		MinClearancePct:          0.0005,
		StrongBodyPct:            0.002,
		StrongVolumeRatio:        2.0,
		ConfirmBodyPct:           0.001,
		ConfirmVolumeRatio:       1.5,
		SingleSampleThreshold:    65,
		SustainedSampleThreshold: 55,
		SustainedCountThreshold:  3,
		MaxAttemptsPerPivot:      2,
	}
}

func crossBar(open, close, volume float64) market.Bar {
	hi, lo := close, open
	if open > close {
		hi, lo = open, close
	}
	return market.Bar{
		OpenTime: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Open:     open, High: hi, Low: lo, Close: close, Volume: volume,
	}
}

func TestOnPivotCross_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		bar         market.Bar
		volumeRatio float64
		want        Kind
	}{
		{"strong_body_and_volume", crossBar(100, 100.5, 5000), 2.5, KindStrong},
		{"weak_marginal_volume", crossBar(100, 100.5, 1000), 1.2, KindWeak},
		{"weak_marginal_body", crossBar(100, 100.05, 5000), 2.5, KindWeak},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := NewTracker(testSetup())
			tr.OnPivotCross(tt.bar, 10, tt.volumeRatio)
			mem := tr.Get()
			require.NotNil(t, mem)
			assert.Equal(t, tt.want, mem.Kind)
			assert.Equal(t, int64(10), mem.BreakoutPos)
			assert.Equal(t, tt.bar.Close, mem.BreakoutPrice)
		})
	}
}

func TestOnPivotCross_PullbackAfterInvalidatedStrongBreak(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testSetup())
	tr.OnPivotCross(crossBar(100, 100.5, 5000), 10, 2.5)
	require.Equal(t, KindStrong, tr.Get().Kind)

	tr.Invalidate()
	assert.Nil(t, tr.Get())

	tr.OnPivotCross(crossBar(100, 100.3, 2000), 25, 1.4)
	assert.Equal(t, KindPullback, tr.Get().Kind)
}

func TestReset_ClearsStrongBreakHistory(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testSetup())
	tr.OnPivotCross(crossBar(100, 100.5, 5000), 10, 2.5)
	tr.Invalidate()
	tr.Reset()

	tr.OnPivotCross(crossBar(100, 100.3, 2000), 0, 1.4)
	assert.Equal(t, KindWeak, tr.Get().Kind)
}

func sample(imbalance float64) market.OrderFlowSample {
	return market.OrderFlowSample{
		Symbol:       "ABCD",
		Time:         time.Date(2025, 3, 14, 10, 1, 0, 0, time.UTC),
		ImbalancePct: imbalance,
	}
}

func TestRecordFlowSample_Accumulator(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testSetup())
	tr.OnPivotCross(crossBar(100, 100.3, 2000), 0, 1.0)

	// Negative imbalance = buying pressure = Long direction.
	tr.RecordFlowSample(sample(-60))
	assert.Equal(t, 1, tr.Get().ConsecutiveImbalance)
	assert.Equal(t, market.Long, tr.Get().ImbalanceDirection)

	tr.RecordFlowSample(sample(-70))
	assert.Equal(t, 2, tr.Get().ConsecutiveImbalance)

	// Direction flip resets to 1.
	tr.RecordFlowSample(sample(80))
	assert.Equal(t, 1, tr.Get().ConsecutiveImbalance)
	assert.Equal(t, market.Short, tr.Get().ImbalanceDirection)

	// Below the sustained threshold resets to 0.
	tr.RecordFlowSample(sample(-30))
	assert.Equal(t, 0, tr.Get().ConsecutiveImbalance)
	assert.Equal(t, market.Side(0), tr.Get().ImbalanceDirection)
}

func TestRecordFlowSample_NoMemoryIsNoop(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testSetup())
	tr.RecordFlowSample(sample(-90))
	assert.Nil(t, tr.Get())
}

func TestHoldBarAndCandleClose(t *testing.T) {
	t.Parallel()

	tr := NewTracker(testSetup())
	tr.OnPivotCross(crossBar(100, 100.3, 2000), 5, 1.0)

	tr.HoldBar()
	tr.HoldBar()
	assert.Equal(t, 2, tr.Get().BarsHeldBeyondPivot)

	require.Nil(t, tr.Get().CandleClosePos)
	tr.MarkCandleClose(17)
	require.NotNil(t, tr.Get().CandleClosePos)
	assert.Equal(t, int64(17), *tr.Get().CandleClosePos)
}
