// Package risk computes share quantities under account risk constraints.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// Sizing errors. A SizingError rejects the entry; no order is submitted.
var (
	ErrZeroStopDistance = errors.New("risk: stop price equals entry price")
	ErrNoShares         = errors.New("risk: computed share count is zero")
)

// CapKind names which limit bound the final share count.
type CapKind string

const (
	CapRisk     CapKind = "risk"
	CapValue    CapKind = "value"
	CapAbsolute CapKind = "absolute"
)

// Inputs are the sizing parameters for one entry.
type Inputs struct {
	AccountSize      float64
	RiskFraction     float64
	EntryPrice       float64
	StopPrice        float64
	MaxPositionValue float64
	MaxShares        int
}

// Result is the computed size and which cap bound it.
type Result struct {
	Shares     int
	BoundBy    CapKind
	RiskAmount float64 // dollars at risk if the stop is hit
}

// Size computes three independent caps and takes the minimum:
//
//	risk cap:  floor(account * risk_fraction / |entry - stop|)
//	value cap: floor(max_position_value / entry)
//	absolute:  max_shares
//
// It fails on a zero stop distance or when any cap computes to zero.
func Size(in Inputs) (Result, error) {
	if in.EntryPrice <= 0 {
		return Result{}, fmt.Errorf("risk: entry price must be positive, got %v", in.EntryPrice)
	}
	stopDist := math.Abs(in.EntryPrice - in.StopPrice)
	if stopDist == 0 {
		return Result{}, ErrZeroStopDistance
	}

	riskCap := int(math.Floor(in.AccountSize * in.RiskFraction / stopDist))
	valueCap := int(math.Floor(in.MaxPositionValue / in.EntryPrice))

	shares := riskCap
	bound := CapRisk
	if valueCap < shares {
		shares = valueCap
		bound = CapValue
	}
	if in.MaxShares < shares {
		shares = in.MaxShares
		bound = CapAbsolute
	}

	if shares <= 0 {
		return Result{}, ErrNoShares
	}

	return Result{
		Shares:     shares,
		BoundBy:    bound,
		RiskAmount: float64(shares) * stopDist,
	}, nil
}

// Validate is the pre-trade check: if the value cap alone would put the
// position over max_position_value * (1 + buffer_fraction), reject before
// any order is submitted.
func Validate(in Inputs, bufferFraction float64) error {
	if in.EntryPrice <= 0 {
		return fmt.Errorf("risk: entry price must be positive, got %v", in.EntryPrice)
	}
	valueCap := math.Floor(in.MaxPositionValue / in.EntryPrice)
	if valueCap*in.EntryPrice > in.MaxPositionValue*(1+bufferFraction) {
		return fmt.Errorf("risk: value-cap position %.2f exceeds limit %.2f with buffer",
			valueCap*in.EntryPrice, in.MaxPositionValue*(1+bufferFraction))
	}
	return nil
}
