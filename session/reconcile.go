package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/breakout/broker"
	"github.com/rustyeddy/breakout/position"
)

// Mismatch is one disagreement between a persisted position and the
// broker's book.
type Mismatch struct {
	Symbol       string
	LocalShares  int // signed, as the snapshot expects (negative short)
	BrokerShares int // signed, as the broker reports
	Detail       string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: local %d vs broker %d (%s)", m.Symbol, m.LocalShares, m.BrokerShares, m.Detail)
}

// Report is the outcome of startup reconciliation. Restorable positions
// resume normal management; mismatched symbols must be halted for the
// session and surfaced to the operator.
type Report struct {
	Restorable []position.Position
	Mismatches []Mismatch
	// Unmanaged lists broker holdings with no persisted position. They are
	// left untouched but their symbols are halted.
	Unmanaged []broker.Holding
}

// HaltedSymbols returns every symbol the engine must refuse to trade,
// sorted for deterministic iteration.
func (r Report) HaltedSymbols() []string {
	set := make(map[string]struct{})
	for _, m := range r.Mismatches {
		set[m.Symbol] = struct{}{}
	}
	for _, h := range r.Unmanaged {
		set[h.Symbol] = struct{}{}
	}
	syms := make([]string, 0, len(set))
	for s := range set {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// Err returns a MismatchError when the report contains any mismatch, nil
// otherwise. Unmanaged holdings alone do not make the report an error.
func (r Report) Err() error {
	if len(r.Mismatches) == 0 {
		return nil
	}
	return &MismatchError{Mismatches: r.Mismatches}
}

// MismatchError reports persisted positions the broker does not corroborate.
// The engine must not manage those positions as if they were open.
type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	parts := make([]string, len(e.Mismatches))
	for i, m := range e.Mismatches {
		parts[i] = m.String()
	}
	return "reconciliation mismatch: " + strings.Join(parts, "; ")
}

// Reconcile compares a restored snapshot against the broker's holdings.
// A persisted position whose signed share count matches the broker resumes
// management; anything else is flagged. A position the broker has no record
// of is the dangerous case: acting on it would trade shares that do not
// exist.
func Reconcile(snap Snapshot, holdings []broker.Holding) Report {
	book := make(map[string]broker.Holding, len(holdings))
	for _, h := range holdings {
		book[h.Symbol] = h
	}

	var rep Report
	claimed := make(map[string]struct{})
	for _, p := range snap.Positions {
		claimed[p.Symbol] = struct{}{}
		want := int(p.Side.Sign()) * p.RemainingShares
		h, ok := book[p.Symbol]
		switch {
		case !ok || h.Shares == 0:
			rep.Mismatches = append(rep.Mismatches, Mismatch{
				Symbol:       p.Symbol,
				LocalShares:  want,
				BrokerShares: 0,
				Detail:       "no broker holding for persisted position",
			})
		case h.Shares != want:
			rep.Mismatches = append(rep.Mismatches, Mismatch{
				Symbol:       p.Symbol,
				LocalShares:  want,
				BrokerShares: h.Shares,
				Detail:       "share count differs",
			})
		default:
			rep.Restorable = append(rep.Restorable, p)
		}
	}

	for _, h := range holdings {
		if h.Shares == 0 {
			continue
		}
		if _, ok := claimed[h.Symbol]; !ok {
			rep.Unmanaged = append(rep.Unmanaged, h)
		}
	}
	sort.Slice(rep.Restorable, func(i, j int) bool { return rep.Restorable[i].Symbol < rep.Restorable[j].Symbol })
	sort.Slice(rep.Mismatches, func(i, j int) bool { return rep.Mismatches[i].Symbol < rep.Mismatches[j].Symbol })
	sort.Slice(rep.Unmanaged, func(i, j int) bool { return rep.Unmanaged[i].Symbol < rep.Unmanaged[j].Symbol })
	return rep
}
