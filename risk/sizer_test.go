package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize_ValueCapBinds(t *testing.T) {
	t.Parallel()

	got, err := Size(Inputs{
		AccountSize:      100000,
		RiskFraction:     0.01,
		EntryPrice:       794,
		StopPrice:        793,
		MaxPositionValue: 20000,
		MaxShares:        1000,
	})
	require.NoError(t, err)

	// risk cap is 1000, absolute cap is 1000, value cap is floor(20000/794)=25
	assert.Equal(t, 25, got.Shares)
	assert.Equal(t, CapValue, got.BoundBy)
	assert.InDelta(t, 25.0, got.RiskAmount, 1e-9)
}

func TestSize_RiskCapBinds(t *testing.T) {
	t.Parallel()

	got, err := Size(Inputs{
		AccountSize:      100000,
		RiskFraction:     0.005,
		EntryPrice:       50,
		StopPrice:        48,
		MaxPositionValue: 1000000,
		MaxShares:        100000,
	})
	require.NoError(t, err)

	// floor(100000*0.005/2) = 250
	assert.Equal(t, 250, got.Shares)
	assert.Equal(t, CapRisk, got.BoundBy)
	assert.InDelta(t, 500.0, got.RiskAmount, 1e-9)
}

func TestSize_AbsoluteCapBinds(t *testing.T) {
	t.Parallel()

	got, err := Size(Inputs{
		AccountSize:      1000000,
		RiskFraction:     0.02,
		EntryPrice:       10,
		StopPrice:        9.9,
		MaxPositionValue: 500000,
		MaxShares:        300,
	})
	require.NoError(t, err)

	assert.Equal(t, 300, got.Shares)
	assert.Equal(t, CapAbsolute, got.BoundBy)
}

func TestSize_ShortSideUsesAbsoluteStopDistance(t *testing.T) {
	t.Parallel()

	long, err := Size(Inputs{
		AccountSize: 100000, RiskFraction: 0.01,
		EntryPrice: 100, StopPrice: 99,
		MaxPositionValue: 1000000, MaxShares: 100000,
	})
	require.NoError(t, err)

	short, err := Size(Inputs{
		AccountSize: 100000, RiskFraction: 0.01,
		EntryPrice: 100, StopPrice: 101,
		MaxPositionValue: 1000000, MaxShares: 100000,
	})
	require.NoError(t, err)

	assert.Equal(t, long.Shares, short.Shares)
}

func TestSize_Failures(t *testing.T) {
	t.Parallel()

	_, err := Size(Inputs{
		AccountSize: 100000, RiskFraction: 0.01,
		EntryPrice: 100, StopPrice: 100,
		MaxPositionValue: 20000, MaxShares: 1000,
	})
	assert.ErrorIs(t, err, ErrZeroStopDistance)

	// Entry price above max position value: value cap is zero shares.
	_, err = Size(Inputs{
		AccountSize: 100000, RiskFraction: 0.01,
		EntryPrice: 30000, StopPrice: 29900,
		MaxPositionValue: 20000, MaxShares: 1000,
	})
	assert.ErrorIs(t, err, ErrNoShares)

	_, err = Size(Inputs{EntryPrice: -1, StopPrice: 1})
	assert.Error(t, err)
}

func TestValidate_BufferFraction(t *testing.T) {
	t.Parallel()

	// floor(20000/794)*794 = 19850 <= 21000: fine.
	assert.NoError(t, Validate(Inputs{
		EntryPrice: 794, MaxPositionValue: 20000,
	}, 0.05))

	// Zero buffer and a price dividing evenly still passes (equality allowed).
	assert.NoError(t, Validate(Inputs{
		EntryPrice: 100, MaxPositionValue: 20000,
	}, 0))
}
