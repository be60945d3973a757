package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/breakout/feed"
	"github.com/rustyeddy/breakout/position"
)

// memFeed is an in-memory feed for tests.
type memFeed struct {
	ticks []feed.Tick
	i     int
}

func (m *memFeed) Next() (feed.Tick, bool, error) {
	if m.i >= len(m.ticks) {
		return feed.Tick{}, false, nil
	}
	t := m.ticks[m.i]
	m.i++
	return t, true, nil
}

func (m *memFeed) Close() error { return nil }

// errFeed fails after yielding its ticks.
type errFeed struct {
	memFeed
	err error
}

func (e *errFeed) Next() (feed.Tick, bool, error) {
	t, ok, _ := e.memFeed.Next()
	if !ok {
		return feed.Tick{}, false, e.err
	}
	return t, true, nil
}

func TestRunnerClosesAtEndOfFeed(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, nil)
	r := &Runner{
		Engine:  eng,
		Feed:    &memFeed{ticks: longEntryTicks()},
		Options: RunnerOptions{CloseEnd: true},
		Log:     zerolog.Nop(),
	}
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, eng.Manager().HasOpen("AAPL"))
	ledger := eng.Manager().Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, position.EODClose, ledger[0].Reason)

	assert.Equal(t, len(longEntryTicks()), res.Ticks)
	assert.Equal(t, 0, res.BadTicks)
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, sessionBase(), res.Start)
}

func TestRunnerCountsBadTicksAndContinues(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, nil)

	ticks := []feed.Tick{
		barTick("AAPL", 1, 99.90),
		barTick("AAPL", 0, 99.95), // out of order, rejected
		barTick("TSLA", 2, 200.20),
		barTick("AAPL", 2, 99.95),
	}
	r := &Runner{Engine: eng, Feed: &memFeed{ticks: ticks}, Log: zerolog.Nop()}
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Ticks)
	assert.Equal(t, 1, res.BadTicks)
}

func TestRunnerPropagatesFeedError(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, nil)
	boom := errors.New("stream torn down")
	r := &Runner{
		Engine: eng,
		Feed:   &errFeed{memFeed: memFeed{ticks: []feed.Tick{barTick("AAPL", 0, 99.9)}}, err: boom},
		Log:    zerolog.Nop(),
	}
	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunnerRequiresEngineAndFeed(t *testing.T) {
	t.Parallel()
	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)

	eng, _, _ := newTestEngine(t, nil)
	_, err = (&Runner{Engine: eng}).Run(context.Background())
	assert.Error(t, err)
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Engine: eng, Feed: &memFeed{ticks: longEntryTicks()}, Log: zerolog.Nop()}
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
