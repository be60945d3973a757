// Package config holds the full engine configuration schema.
//
// Every threshold is named and typed; there are no free-form maps. Unknown
// keys in a config file are a load-time error, not silently ignored.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Session SessionConfig `json:"session" yaml:"session"`
	Bars    BarConfig     `json:"bars" yaml:"bars"`
	Risk    RiskConfig    `json:"risk" yaml:"risk"`
	Setups  SetupsConfig  `json:"setups" yaml:"setups"`
	Exits   ExitConfig    `json:"exits" yaml:"exits"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	State   StateConfig   `json:"state" yaml:"state"`
}

// AccountConfig contains account parameters.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Size     float64 `json:"size" yaml:"size"`
}

// SessionConfig bounds the trading day. Times are "HH:MM" in the session
// timezone; the feed driver owns timezone normalization.
type SessionConfig struct {
	EntryOpen   string `json:"entry_open" yaml:"entry_open"`     // earliest entry, e.g. "09:35"
	EntryClose  string `json:"entry_close" yaml:"entry_close"`   // latest entry, e.g. "15:30"
	FlattenTime string `json:"flatten_time" yaml:"flatten_time"` // EOD flatten, e.g. "15:55"
}

// BarConfig describes bar granularity and the confirmation window.
type BarConfig struct {
	BarIntervalSeconds          int `json:"bar_interval_seconds" yaml:"bar_interval_seconds"`
	ConfirmationIntervalSeconds int `json:"confirmation_interval_seconds" yaml:"confirmation_interval_seconds"`
	BufferCapacity              int `json:"buffer_capacity" yaml:"buffer_capacity"`
	VolumeAveragePeriod         int `json:"volume_average_period" yaml:"volume_average_period"`
}

// BarsPerConfirmation returns the number of raw bars composing one
// confirmation candle. It is always derived from the two intervals --
// hardcoding the ratio breaks the moment bar granularity changes, so no
// caller may store it across a config reload.
func (b BarConfig) BarsPerConfirmation() int {
	return b.ConfirmationIntervalSeconds / b.BarIntervalSeconds
}

// RiskConfig contains the sizing limits.
type RiskConfig struct {
	RiskFraction     float64 `json:"risk_fraction" yaml:"risk_fraction"`
	MaxPositionValue float64 `json:"max_position_value" yaml:"max_position_value"`
	MaxShares        int     `json:"max_shares" yaml:"max_shares"`
	BufferFraction   float64 `json:"buffer_fraction" yaml:"buffer_fraction"`
}

// SetupsConfig enumerates the threshold sets, one per setup type. A scanner
// row referencing any other setup type is rejected at load.
type SetupsConfig struct {
	Momentum SetupConfig `json:"momentum" yaml:"momentum"`
	Pullback SetupConfig `json:"pullback" yaml:"pullback"`
	Bounce   SetupConfig `json:"bounce" yaml:"bounce"`
}

// ForType returns the threshold set for a scanner setup type.
func (s SetupsConfig) ForType(setupType string) (SetupConfig, error) {
	switch strings.ToUpper(strings.TrimSpace(setupType)) {
	case "MOMENTUM":
		return s.Momentum, nil
	case "PULLBACK":
		return s.Pullback, nil
	case "BOUNCE":
		return s.Bounce, nil
	default:
		return SetupConfig{}, fmt.Errorf("unknown setup type %q (supported: MOMENTUM, PULLBACK, BOUNCE)", setupType)
	}
}

// SetupConfig is one named, fully-typed threshold set.
type SetupConfig struct {
	// Breakout detection and classification.
	MinClearancePct   float64 `json:"min_clearance_pct" yaml:"min_clearance_pct"`     // min move beyond pivot to start watching
	StrongBodyPct     float64 `json:"strong_body_pct" yaml:"strong_body_pct"`         // candle body fraction for a STRONG break
	StrongVolumeRatio float64 `json:"strong_volume_ratio" yaml:"strong_volume_ratio"` // relative volume for a STRONG break

	// Momentum check at the confirmation candle close.
	ConfirmBodyPct     float64 `json:"confirm_body_pct" yaml:"confirm_body_pct"`
	ConfirmVolumeRatio float64 `json:"confirm_volume_ratio" yaml:"confirm_volume_ratio"`

	// Order-flow confirmation paths.
	SingleSampleThreshold    float64 `json:"single_sample_threshold" yaml:"single_sample_threshold"`       // path A magnitude, pct
	SustainedSampleThreshold float64 `json:"sustained_sample_threshold" yaml:"sustained_sample_threshold"` // per-sample magnitude for path B
	SustainedCountThreshold  int     `json:"sustained_count_threshold" yaml:"sustained_count_threshold"`   // consecutive samples for path B

	MaxAttemptsPerPivot int  `json:"max_attempts_per_pivot" yaml:"max_attempts_per_pivot"`
	MoveStopToBreakeven bool `json:"move_stop_to_breakeven" yaml:"move_stop_to_breakeven"`
}

// PartialRule takes a configured fraction off when unrealized gain crosses
// the threshold. Rules fire at most once each per position.
type PartialRule struct {
	GainPct  float64 `json:"gain_pct" yaml:"gain_pct"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

// ExitConfig contains the exit-rule parameters.
type ExitConfig struct {
	StallWindowStartSeconds int     `json:"stall_window_start_seconds" yaml:"stall_window_start_seconds"`
	StallWindowEndSeconds   int     `json:"stall_window_end_seconds" yaml:"stall_window_end_seconds"`
	StallTolerancePct       float64 `json:"stall_tolerance_pct" yaml:"stall_tolerance_pct"`

	Partials []PartialRule `json:"partials" yaml:"partials"`

	TrailDistancePct float64 `json:"trail_distance_pct" yaml:"trail_distance_pct"`
}

// JournalConfig selects the audit backend.
type JournalConfig struct {
	Type          string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile    string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	DecisionsFile string `json:"decisions_file,omitempty" yaml:"decisions_file,omitempty"`
	DBPath        string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// StateConfig locates the durable session-state store.
type StateConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// LoadFromFile loads configuration from a YAML or JSON file. Unknown keys
// fail the load in either format.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	ydec := yaml.NewDecoder(bytes.NewReader(data))
	ydec.KnownFields(true)
	yerr := ydec.Decode(cfg)
	if yerr != nil {
		jdec := json.NewDecoder(bytes.NewReader(data))
		jdec.DisallowUnknownFields()
		if jerr := jdec.Decode(cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (yaml: %v): %w", yerr, jerr)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Account.Size <= 0 {
		return fmt.Errorf("account.size must be positive")
	}
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}

	for name, v := range map[string]string{
		"session.entry_open":   c.Session.EntryOpen,
		"session.entry_close":  c.Session.EntryClose,
		"session.flatten_time": c.Session.FlattenTime,
	} {
		if _, err := ParseClock(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Bars.BarIntervalSeconds <= 0 {
		return fmt.Errorf("bars.bar_interval_seconds must be positive")
	}
	if c.Bars.ConfirmationIntervalSeconds <= 0 {
		return fmt.Errorf("bars.confirmation_interval_seconds must be positive")
	}
	if c.Bars.ConfirmationIntervalSeconds%c.Bars.BarIntervalSeconds != 0 {
		return fmt.Errorf("bars.confirmation_interval_seconds (%d) must be a multiple of bar_interval_seconds (%d)",
			c.Bars.ConfirmationIntervalSeconds, c.Bars.BarIntervalSeconds)
	}
	if c.Bars.BufferCapacity <= c.Bars.BarsPerConfirmation() {
		return fmt.Errorf("bars.buffer_capacity (%d) must exceed the confirmation window (%d bars)",
			c.Bars.BufferCapacity, c.Bars.BarsPerConfirmation())
	}
	if c.Bars.VolumeAveragePeriod <= 0 {
		return fmt.Errorf("bars.volume_average_period must be positive")
	}

	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction > 1 {
		return fmt.Errorf("risk.risk_fraction must be in (0, 1]")
	}
	if c.Risk.MaxPositionValue <= 0 {
		return fmt.Errorf("risk.max_position_value must be positive")
	}
	if c.Risk.MaxShares <= 0 {
		return fmt.Errorf("risk.max_shares must be positive")
	}
	if c.Risk.BufferFraction < 0 {
		return fmt.Errorf("risk.buffer_fraction must not be negative")
	}

	for name, s := range map[string]SetupConfig{
		"setups.momentum": c.Setups.Momentum,
		"setups.pullback": c.Setups.Pullback,
		"setups.bounce":   c.Setups.Bounce,
	} {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Exits.StallWindowEndSeconds < c.Exits.StallWindowStartSeconds {
		return fmt.Errorf("exits.stall_window_end_seconds before start")
	}
	var total float64
	for i, p := range c.Exits.Partials {
		if p.GainPct <= 0 || p.Fraction <= 0 || p.Fraction >= 1 {
			return fmt.Errorf("exits.partials[%d]: gain_pct must be positive and fraction in (0, 1)", i)
		}
		if i > 0 && p.GainPct <= c.Exits.Partials[i-1].GainPct {
			return fmt.Errorf("exits.partials must be ordered by increasing gain_pct")
		}
		total += p.Fraction
	}
	if total >= 1 {
		return fmt.Errorf("exits.partials fractions must sum below 1")
	}
	if c.Exits.TrailDistancePct <= 0 {
		return fmt.Errorf("exits.trail_distance_pct must be positive")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.DecisionsFile == "" {
			return fmt.Errorf("journal trades_file and decisions_file required for csv type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for sqlite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}

	if c.State.DBPath == "" {
		return fmt.Errorf("state.db_path is required")
	}
	return nil
}

func (s SetupConfig) validate() error {
	if s.MinClearancePct <= 0 {
		return fmt.Errorf("min_clearance_pct must be positive")
	}
	if s.StrongBodyPct <= 0 || s.StrongVolumeRatio <= 0 {
		return fmt.Errorf("strong_body_pct and strong_volume_ratio must be positive")
	}
	if s.ConfirmBodyPct <= 0 || s.ConfirmVolumeRatio <= 0 {
		return fmt.Errorf("confirm_body_pct and confirm_volume_ratio must be positive")
	}
	if s.SingleSampleThreshold <= 0 {
		return fmt.Errorf("single_sample_threshold must be positive")
	}
	if s.SustainedSampleThreshold <= 0 {
		return fmt.Errorf("sustained_sample_threshold must be positive")
	}
	if s.SustainedCountThreshold <= 0 {
		return fmt.Errorf("sustained_count_threshold must be positive")
	}
	if s.MaxAttemptsPerPivot <= 0 {
		return fmt.Errorf("max_attempts_per_pivot must be positive")
	}
	return nil
}

// ParseClock parses an "HH:MM" session time into a minutes-past-midnight
// offset. Clock offsets compare against bar open times, so replay and live
// runs resolve the same way regardless of wall clock.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q (want HH:MM): %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ClockOf returns the time-of-day offset of a timestamp for comparison with
// ParseClock results.
func ClockOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// Default returns a configuration with sensible defaults for 5-second bars
// and a 60-second confirmation window.
func Default() *Config {
	setup := SetupConfig{
		MinClearancePct:          0.0005,
		StrongBodyPct:            0.002,
		StrongVolumeRatio:        2.0,
		ConfirmBodyPct:           0.001,
		ConfirmVolumeRatio:       1.5,
		SingleSampleThreshold:    65,
		SustainedSampleThreshold: 55,
		SustainedCountThreshold:  3,
		MaxAttemptsPerPivot:      2,
		MoveStopToBreakeven:      true,
	}
	return &Config{
		Account: AccountConfig{ID: "SIM-001", Currency: "USD", Size: 100000},
		Session: SessionConfig{EntryOpen: "09:35", EntryClose: "15:30", FlattenTime: "15:55"},
		Bars: BarConfig{
			BarIntervalSeconds:          5,
			ConfirmationIntervalSeconds: 60,
			BufferCapacity:              6000, // full session of 5s bars, with slack
			VolumeAveragePeriod:         20,
		},
		Risk: RiskConfig{
			RiskFraction:     0.01,
			MaxPositionValue: 20000,
			MaxShares:        1000,
			BufferFraction:   0.05,
		},
		Setups: SetupsConfig{Momentum: setup, Pullback: setup, Bounce: setup},
		Exits: ExitConfig{
			StallWindowStartSeconds: 120,
			StallWindowEndSeconds:   300,
			StallTolerancePct:       0.001,
			Partials: []PartialRule{
				{GainPct: 0.005, Fraction: 0.5},
			},
			TrailDistancePct: 0.004,
		},
		Journal: JournalConfig{Type: "sqlite", DBPath: "./breakout.db"},
		State:   StateConfig{DBPath: "./session_state.db"},
	}
}
