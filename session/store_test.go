package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/position"
)

func samplePosition() position.Position {
	return position.Position{
		Symbol:            "AAPL",
		Side:              market.Long,
		SetupType:         "MOMENTUM",
		PivotPrice:        188.5,
		EntryPrice:        188.8,
		Shares:            50,
		RemainingShares:   50,
		RemainingFraction: 1,
		StopPrice:         188.0,
		InitialStop:       188.0,
		HighWaterMark:     189.1,
		EntryPos:          412,
		EntryTime:         time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC),
		StopOrderID:       "stop-1",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	snap := Snapshot{
		SessionDate: "2026-03-02",
		Positions:   []position.Position{samplePosition()},
		Attempts:    map[string]int{"AAPL": 1, "TSLA": 2},
		LastPos:     map[string]int64{"AAPL": 412, "TSLA": 398},
	}
	require.NoError(t, st.Save(snap))

	got, ok, err := st.Load("2026-03-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.SessionDate, got.SessionDate)
	require.Len(t, got.Positions, 1)
	assert.Equal(t, snap.Positions[0], got.Positions[0])
	assert.Equal(t, snap.Attempts, got.Attempts)
	assert.Equal(t, snap.LastPos, got.LastPos)
	assert.False(t, got.SavedAt.IsZero())
}

func TestSaveReplacesPriorSnapshot(t *testing.T) {
	t.Parallel()
	st, err := NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save(Snapshot{SessionDate: "2026-03-02", Attempts: map[string]int{"AAPL": 1}}))
	require.NoError(t, st.Save(Snapshot{SessionDate: "2026-03-02", Attempts: map[string]int{"AAPL": 2}}))

	got, ok, err := st.Load("2026-03-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Attempts["AAPL"], "latest save wins")
}

func TestLoadMissingDateIsNotAnError(t *testing.T) {
	t.Parallel()
	st, err := NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, ok, err := st.Load("2026-03-02")
	require.NoError(t, err)
	assert.False(t, ok, "cold start is the normal case")
}

func TestSaveRequiresSessionDate(t *testing.T) {
	t.Parallel()
	st, err := NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	assert.Error(t, st.Save(Snapshot{}))
}

func TestPrune(t *testing.T) {
	t.Parallel()
	st, err := NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save(Snapshot{SessionDate: "2026-02-27"}))
	require.NoError(t, st.Save(Snapshot{SessionDate: "2026-03-02"}))
	require.NoError(t, st.Prune("2026-03-01"))

	_, ok, err := st.Load("2026-02-27")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = st.Load("2026-03-02")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconcileMatchingHoldingRestores(t *testing.T) {
	t.Parallel()
	snap := Snapshot{
		SessionDate: "2026-03-02",
		Positions:   []position.Position{samplePosition()},
	}
	rep := Reconcile(snap, []broker.Holding{{Symbol: "AAPL", Shares: 50, AvgPrice: 188.8}})

	require.Len(t, rep.Restorable, 1)
	assert.Empty(t, rep.Mismatches)
	assert.NoError(t, rep.Err())
	assert.Empty(t, rep.HaltedSymbols())
}

func TestReconcilePhantomPositionIsMismatch(t *testing.T) {
	t.Parallel()
	snap := Snapshot{
		SessionDate: "2026-03-02",
		Positions:   []position.Position{samplePosition()},
	}
	// Broker reports no holdings at all: the persisted position is phantom.
	rep := Reconcile(snap, nil)

	assert.Empty(t, rep.Restorable)
	require.Len(t, rep.Mismatches, 1)
	assert.Equal(t, "AAPL", rep.Mismatches[0].Symbol)
	assert.Equal(t, 50, rep.Mismatches[0].LocalShares)
	assert.Equal(t, 0, rep.Mismatches[0].BrokerShares)

	err := rep.Err()
	require.Error(t, err)
	var me *MismatchError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, []string{"AAPL"}, rep.HaltedSymbols())
}

func TestReconcileShareCountDiffers(t *testing.T) {
	t.Parallel()
	p := samplePosition()
	snap := Snapshot{SessionDate: "2026-03-02", Positions: []position.Position{p}}
	rep := Reconcile(snap, []broker.Holding{{Symbol: "AAPL", Shares: 30}})

	assert.Empty(t, rep.Restorable)
	require.Len(t, rep.Mismatches, 1)
	assert.Equal(t, 30, rep.Mismatches[0].BrokerShares)
}

func TestReconcileShortUsesSignedShares(t *testing.T) {
	t.Parallel()
	p := samplePosition()
	p.Symbol = "TSLA"
	p.Side = market.Short
	snap := Snapshot{SessionDate: "2026-03-02", Positions: []position.Position{p}}

	rep := Reconcile(snap, []broker.Holding{{Symbol: "TSLA", Shares: -50}})
	require.Len(t, rep.Restorable, 1)
	assert.Empty(t, rep.Mismatches)

	// A long broker holding against a persisted short is a mismatch.
	rep = Reconcile(snap, []broker.Holding{{Symbol: "TSLA", Shares: 50}})
	require.Len(t, rep.Mismatches, 1)
}

func TestReconcileUnmanagedHoldingIsHaltedNotError(t *testing.T) {
	t.Parallel()
	rep := Reconcile(Snapshot{SessionDate: "2026-03-02"}, []broker.Holding{{Symbol: "NVDA", Shares: 10}})

	assert.NoError(t, rep.Err())
	require.Len(t, rep.Unmanaged, 1)
	assert.Equal(t, []string{"NVDA"}, rep.HaltedSymbols())
}
