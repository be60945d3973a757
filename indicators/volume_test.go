package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/breakout/market"
)

func TestVolumeSMA_WarmupAndValue(t *testing.T) {
	t.Parallel()

	v := NewVolumeSMA(3)
	assert.False(t, v.Ready())
	assert.InDelta(t, 1.0, v.Ratio(500), 1e-12) // neutral before warmup

	v.Update(market.Bar{Volume: 100})
	v.Update(market.Bar{Volume: 200})
	assert.False(t, v.Ready())

	v.Update(market.Bar{Volume: 300})
	assert.True(t, v.Ready())
	assert.InDelta(t, 200.0, v.Value(), 1e-9)
	assert.InDelta(t, 2.0, v.Ratio(400), 1e-9)
}

func TestVolumeSMA_SlidesWindow(t *testing.T) {
	t.Parallel()

	v := NewVolumeSMA(2)
	v.Update(market.Bar{Volume: 100})
	v.Update(market.Bar{Volume: 200})
	v.Update(market.Bar{Volume: 400})

	// Window is now {200, 400}.
	assert.InDelta(t, 300.0, v.Value(), 1e-9)
}

func TestVolumeSMA_Reset(t *testing.T) {
	t.Parallel()

	v := NewVolumeSMA(2)
	v.Update(market.Bar{Volume: 100})
	v.Update(market.Bar{Volume: 200})
	v.Reset()

	assert.False(t, v.Ready())
	assert.Equal(t, 0.0, v.Value())
}
