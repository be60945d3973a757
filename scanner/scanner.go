// Package scanner loads the premarket watchlist: the pivot levels the
// engine watches for the session. Levels are produced upstream and loaded
// exactly once; the engine never recomputes them intraday.
package scanner

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/breakout/market"
)

// Watchlist is the session's pivot set, one level per symbol.
type Watchlist struct {
	SessionDate string               `yaml:"session_date"`
	Levels      []market.PivotLevel `yaml:"levels"`
}

// Symbols returns the watched symbols in sorted order.
func (w Watchlist) Symbols() []string {
	syms := make([]string, 0, len(w.Levels))
	for _, lv := range w.Levels {
		syms = append(syms, lv.Symbol)
	}
	sort.Strings(syms)
	return syms
}

// Level returns the pivot for the symbol.
func (w Watchlist) Level(symbol string) (market.PivotLevel, bool) {
	for _, lv := range w.Levels {
		if lv.Symbol == symbol {
			return lv, true
		}
	}
	return market.PivotLevel{}, false
}

// LoadFile reads and validates a YAML watchlist. Unknown keys are
// rejected: a typo in a pivot file must fail loudly, not load a half
// configured session.
func LoadFile(path string) (Watchlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return Watchlist{}, fmt.Errorf("open watchlist: %w", err)
	}
	defer f.Close()

	var w Watchlist
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil {
		return Watchlist{}, fmt.Errorf("parse watchlist %s: %w", path, err)
	}
	if err := w.validate(); err != nil {
		return Watchlist{}, fmt.Errorf("watchlist %s: %w", path, err)
	}
	return w, nil
}

func (w *Watchlist) validate() error {
	if w.SessionDate == "" {
		return fmt.Errorf("session_date required")
	}
	if len(w.Levels) == 0 {
		return fmt.Errorf("no levels")
	}
	seen := make(map[string]struct{}, len(w.Levels))
	for i := range w.Levels {
		lv := &w.Levels[i]
		if err := lv.Validate(); err != nil {
			return fmt.Errorf("level %d (%s): %w", i, lv.Symbol, err)
		}
		if _, dup := seen[lv.Symbol]; dup {
			return fmt.Errorf("duplicate symbol %s", lv.Symbol)
		}
		seen[lv.Symbol] = struct{}{}
	}
	return nil
}
