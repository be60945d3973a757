package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/breakout/market"
)

// CSV column layout. Bar rows leave imbalance_pct empty; flow rows leave
// the OHLCV columns empty.
//
//	type,time,symbol,open,high,low,close,volume,imbalance_pct
const (
	colType = iota
	colTime
	colSymbol
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	colImbalance
	colCount
)

// CSVFeed replays a recorded session from a CSV file in file order. A
// recorded session replayed twice produces the identical tick sequence.
type CSVFeed struct {
	f    *os.File
	r    *csv.Reader
	line int
}

// OpenCSV opens a recorded session. The first row must be the header.
func OpenCSV(path string) (*CSVFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = colCount
	if _, err := r.Read(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read replay header: %w", err)
	}
	return &CSVFeed{f: f, r: r, line: 1}, nil
}

func (c *CSVFeed) Close() error { return c.f.Close() }

// Next returns the next recorded tick, or ok=false at EOF.
func (c *CSVFeed) Next() (Tick, bool, error) {
	rec, err := c.r.Read()
	if err == io.EOF {
		return Tick{}, false, nil
	}
	if err != nil {
		return Tick{}, false, fmt.Errorf("replay line %d: %w", c.line+1, err)
	}
	c.line++

	ts, err := time.Parse(time.RFC3339, rec[colTime])
	if err != nil {
		return Tick{}, false, fmt.Errorf("replay line %d: bad time %q: %w", c.line, rec[colTime], err)
	}

	switch rec[colType] {
	case "bar":
		bar, err := c.parseBar(rec, ts)
		if err != nil {
			return Tick{}, false, fmt.Errorf("replay line %d: %w", c.line, err)
		}
		return Tick{Kind: BarEvent, Symbol: rec[colSymbol], Bar: bar}, true, nil
	case "flow":
		imb, err := strconv.ParseFloat(rec[colImbalance], 64)
		if err != nil {
			return Tick{}, false, fmt.Errorf("replay line %d: bad imbalance %q: %w", c.line, rec[colImbalance], err)
		}
		return Tick{
			Kind:   FlowEvent,
			Symbol: rec[colSymbol],
			Flow:   market.OrderFlowSample{Symbol: rec[colSymbol], Time: ts, ImbalancePct: imb},
		}, true, nil
	default:
		return Tick{}, false, fmt.Errorf("replay line %d: unknown event type %q", c.line, rec[colType])
	}
}

func (c *CSVFeed) parseBar(rec []string, ts time.Time) (market.Bar, error) {
	var vals [5]float64
	for i, col := range []int{colOpen, colHigh, colLow, colClose, colVolume} {
		v, err := strconv.ParseFloat(rec[col], 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("bad numeric field %d %q: %w", col, rec[col], err)
		}
		vals[i] = v
	}
	return market.Bar{
		OpenTime: ts,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

// Header returns the expected CSV header row, for writers of recorded
// sessions.
func Header() []string {
	return []string{"type", "time", "symbol", "open", "high", "low", "close", "volume", "imbalance_pct"}
}
