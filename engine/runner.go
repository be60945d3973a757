package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/breakout/feed"
	"github.com/rustyeddy/breakout/market"
	"github.com/rustyeddy/breakout/position"
)

// RunnerOptions controls the feed-drive loop.
type RunnerOptions struct {
	// CloseEnd closes every open position when the feed ends before the
	// flatten time, with CloseReason (EOD_CLOSE if empty).
	CloseEnd    bool
	CloseReason string
}

// Result summarizes one run from the closed-trade ledger.
type Result struct {
	Ticks      int
	BadTicks   int
	Trades     int
	Wins       int
	Losses     int
	RealizedPL float64
	Start      time.Time
	End        time.Time
}

// Runner drives an engine from a feed to exhaustion. Live and replay runs
// use the same loop; only the feed differs.
type Runner struct {
	Engine  *Engine
	Feed    feed.Feed
	Options RunnerOptions
	Log     zerolog.Logger
}

// Run executes the loop: read tick, hand it to the engine, repeat until
// EOF or a fatal error. A DataError rejects the single tick and keeps the
// session alive; one symbol's bad data never stalls the rest.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("runner: Engine is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("runner: Feed is required")
	}
	defer r.Feed.Close()

	var res Result
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		t, ok, err := r.Feed.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		res.Ticks++
		r.observeTime(&res, t)

		if err := r.Engine.OnTick(ctx, t); err != nil {
			var de *market.DataError
			if errors.As(err, &de) {
				res.BadTicks++
				r.Log.Warn().Err(err).Str("symbol", t.Symbol).Msg("tick rejected")
				continue
			}
			return res, err
		}
	}

	if r.Options.CloseEnd {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = position.EODClose
		}
		if err := r.Engine.Manager().CloseAll(ctx, reason); err != nil {
			r.Log.Error().Err(err).Msg("end-of-feed close")
		}
	}

	for _, t := range r.Engine.Manager().Ledger() {
		res.Trades++
		switch {
		case t.RealizedPL > 0:
			res.Wins++
		case t.RealizedPL < 0:
			res.Losses++
		}
		res.RealizedPL += t.RealizedPL
	}
	return res, nil
}

func (r *Runner) observeTime(res *Result, t feed.Tick) {
	ts := t.Bar.OpenTime
	if t.Kind == feed.FlowEvent {
		ts = t.Flow.Time
	}
	if res.Start.IsZero() || ts.Before(res.Start) {
		res.Start = ts
	}
	if res.End.IsZero() || ts.After(res.End) {
		res.End = ts
	}
}
