package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Default().Validate())
}

func TestBarsPerConfirmation_RecomputedFromIntervals(t *testing.T) {
	t.Parallel()

	b := BarConfig{BarIntervalSeconds: 5, ConfirmationIntervalSeconds: 60}
	assert.Equal(t, 12, b.BarsPerConfirmation())

	// Coarser bars shrink the raw-bar count proportionally.
	b.BarIntervalSeconds = 60
	assert.Equal(t, 1, b.BarsPerConfirmation())

	b.BarIntervalSeconds = 15
	assert.Equal(t, 4, b.BarsPerConfirmation())
}

func TestLoadFromFile_UnknownKeyRejected(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "bad.yaml", `
account:
  id: X
  currency: USD
  size: 100000
  surprise_knob: 42
`)

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromFile_RoundTrip(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "ok.yaml", `
account:
  id: SIM-7
  currency: USD
  size: 50000
session:
  entry_open: "09:35"
  entry_close: "15:30"
  flatten_time: "15:55"
bars:
  bar_interval_seconds: 5
  confirmation_interval_seconds: 60
  buffer_capacity: 6000
  volume_average_period: 20
risk:
  risk_fraction: 0.01
  max_position_value: 20000
  max_shares: 1000
  buffer_fraction: 0.05
setups:
  momentum: &setup
    min_clearance_pct: 0.0005
    strong_body_pct: 0.002
    strong_volume_ratio: 2.0
    confirm_body_pct: 0.001
    confirm_volume_ratio: 1.5
    single_sample_threshold: 65
    sustained_sample_threshold: 55
    sustained_count_threshold: 3
    max_attempts_per_pivot: 2
    move_stop_to_breakeven: true
  pullback: *setup
  bounce: *setup
exits:
  stall_window_start_seconds: 120
  stall_window_end_seconds: 300
  stall_tolerance_pct: 0.001
  partials:
    - gain_pct: 0.005
      fraction: 0.5
  trail_distance_pct: 0.004
journal:
  type: sqlite
  db_path: ./j.db
state:
  db_path: ./s.db
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SIM-7", cfg.Account.ID)
	assert.Equal(t, 12, cfg.Bars.BarsPerConfirmation())
	assert.Equal(t, 2, cfg.Setups.Pullback.MaxAttemptsPerPivot)
}

func TestValidate_ConfirmationNotMultiple(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Bars.BarIntervalSeconds = 7
	assert.Error(t, cfg.Validate())
}

func TestValidate_PartialFractionsMustStayBelowOne(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Exits.Partials = []PartialRule{
		{GainPct: 0.005, Fraction: 0.6},
		{GainPct: 0.010, Fraction: 0.5},
	}
	assert.Error(t, cfg.Validate())
}

func TestForType(t *testing.T) {
	t.Parallel()

	s := SetupsConfig{
		Momentum: SetupConfig{SustainedCountThreshold: 3},
		Pullback: SetupConfig{SustainedCountThreshold: 4},
		Bounce:   SetupConfig{SustainedCountThreshold: 5},
	}

	got, err := s.ForType("pullback")
	require.NoError(t, err)
	assert.Equal(t, 4, got.SustainedCountThreshold)

	_, err = s.ForType("SCALP")
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	d, err := ParseClock("09:35")
	require.NoError(t, err)
	assert.Equal(t, 9*time.Hour+35*time.Minute, d)

	_, err = ParseClock("9:95")
	assert.Error(t, err)

	bar := time.Date(2025, 3, 14, 9, 40, 5, 0, time.UTC)
	assert.Greater(t, ClockOf(bar), d)
}
