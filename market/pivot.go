package market

// PivotLevel is a precomputed support/resistance level supplied by the
// scanner, once per session per symbol. The engine never generates its own
// pivots; it only watches the ones it is handed.
type PivotLevel struct {
	Symbol     string  `yaml:"symbol" json:"symbol"`
	Price      float64 `yaml:"pivot_price" json:"pivot_price"`
	Bias       Side    `yaml:"-" json:"-"`
	SideBias   string  `yaml:"side_bias" json:"side_bias"`
	Score      float64 `yaml:"score" json:"score"`
	RiskReward float64 `yaml:"risk_reward" json:"risk_reward"`
	SetupType  string  `yaml:"setup_type" json:"setup_type"`
}

// Validate checks required fields and resolves SideBias into Bias.
func (p *PivotLevel) Validate() error {
	if p.Symbol == "" {
		return &DataError{Field: "symbol", Reason: "missing"}
	}
	if p.Price <= 0 {
		return &DataError{Field: "pivot_price", Reason: "must be positive"}
	}
	side, err := ParseSide(p.SideBias)
	if err != nil {
		return err
	}
	p.Bias = side
	return nil
}
