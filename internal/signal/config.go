package signal

import (
	"errors"
	"fmt"

	"signalradar/internal/indicator"
	"signalradar/internal/swing"
)

// StopMode selects how the protective stop is placed.
type StopMode string

const (
	// StopATR places the stop ATR x multiple away from entry.
	StopATR StopMode = "atr"
	// StopStructure places the stop at the opposite confirmed swing,
	// falling back to StopATR when that swing is on the wrong side of entry.
	StopStructure StopMode = "structure"
)

// RetestEntry selects the price a deferred (WAIT) entry is pinned to.
type RetestEntry string

const (
	RetestSwing   RetestEntry = "swing"    // the broken swing level
	RetestEMAFast RetestEntry = "ema-fast" // the fast EMA at the decision candle
)

// Config is the full strategy parameter set. Zero fields take defaults.
type Config struct {
	SwingWindow int `toml:"swing_window"`
	SwingSkip   int `toml:"swing_skip"`

	Periods indicator.Periods `toml:"periods"`

	// Gate thresholds are pointers so an explicit zero survives WithDefaults:
	// nil takes the default, 0 is a real threshold. Set them with Threshold.
	ADXThreshold   *float64 `toml:"adx_threshold"`
	VolumeMultiple *float64 `toml:"volume_multiple"`
	RSIOverbought  *float64 `toml:"rsi_overbought"`
	RSIOversold    *float64 `toml:"rsi_oversold"`

	ATRStopMultiple float64 `toml:"atr_stop_multiple"`
	RiskReward      float64 `toml:"risk_reward"`

	// TargetTiers scale RiskReward into several take-profit levels.
	TargetTiers []float64 `toml:"target_tiers"`

	StopMode    StopMode    `toml:"stop_mode"`
	RetestEntry RetestEntry `toml:"retest_entry"`

	// MinBodyATR defers entry when the decision candle body is not larger
	// than MinBodyATR x ATR. Zero disables the filter.
	MinBodyATR float64 `toml:"min_body_atr"`

	// RequireMACD defers entry when the MACD histogram points against the
	// candidate direction.
	RequireMACD bool `toml:"require_macd"`
}

// DefaultConfig returns the canonical parameter set.
func DefaultConfig() Config {
	return Config{
		SwingWindow:     swing.DefaultWindow,
		SwingSkip:       swing.ConfirmSkip,
		Periods:         indicator.DefaultPeriods(),
		ADXThreshold:    Threshold(25),
		VolumeMultiple:  Threshold(1.2),
		RSIOverbought:   Threshold(70),
		RSIOversold:     Threshold(30),
		ATRStopMultiple: 1.5,
		RiskReward:      2.0,
		TargetTiers:     []float64{1, 1.5, 2},
		StopMode:        StopATR,
		RetestEntry:     RetestSwing,
	}
}

// Threshold returns a pointer to v for the gate threshold fields.
func Threshold(v float64) *float64 { return &v }

// WithDefaults fills unset fields from DefaultConfig: zero values, and nil
// gate thresholds.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.SwingWindow <= 0 {
		c.SwingWindow = d.SwingWindow
	}
	if c.SwingSkip <= 0 {
		c.SwingSkip = d.SwingSkip
	}
	c.Periods = c.Periods.WithDefaults()
	if c.ADXThreshold == nil {
		c.ADXThreshold = d.ADXThreshold
	}
	if c.VolumeMultiple == nil {
		c.VolumeMultiple = d.VolumeMultiple
	}
	if c.RSIOverbought == nil {
		c.RSIOverbought = d.RSIOverbought
	}
	if c.RSIOversold == nil {
		c.RSIOversold = d.RSIOversold
	}
	if c.ATRStopMultiple == 0 {
		c.ATRStopMultiple = d.ATRStopMultiple
	}
	if c.RiskReward == 0 {
		c.RiskReward = d.RiskReward
	}
	if len(c.TargetTiers) == 0 {
		c.TargetTiers = d.TargetTiers
	}
	if c.StopMode == "" {
		c.StopMode = d.StopMode
	}
	if c.RetestEntry == "" {
		c.RetestEntry = d.RetestEntry
	}
	return c
}

// Validate rejects parameter sets that cannot produce coherent levels.
// It applies defaults first, so only explicitly bad values fail.
func (c Config) Validate() error {
	c = c.WithDefaults()
	var errs []error
	if *c.ADXThreshold < 0 {
		errs = append(errs, fmt.Errorf("adx_threshold %.2f is negative", *c.ADXThreshold))
	}
	if *c.VolumeMultiple < 0 {
		errs = append(errs, fmt.Errorf("volume_multiple %.2f is negative", *c.VolumeMultiple))
	}
	if *c.RSIOversold < 0 || *c.RSIOverbought > 100 {
		errs = append(errs, fmt.Errorf("rsi bounds %.1f/%.1f outside [0, 100]", *c.RSIOversold, *c.RSIOverbought))
	}
	if *c.RSIOversold >= *c.RSIOverbought {
		errs = append(errs, fmt.Errorf("rsi_oversold %.1f must be below rsi_overbought %.1f", *c.RSIOversold, *c.RSIOverbought))
	}
	if c.ATRStopMultiple < 0 {
		errs = append(errs, fmt.Errorf("atr_stop_multiple %.2f is negative", c.ATRStopMultiple))
	}
	if c.RiskReward < 0 {
		errs = append(errs, fmt.Errorf("risk_reward %.2f is negative", c.RiskReward))
	}
	for _, t := range c.TargetTiers {
		if t <= 0 {
			errs = append(errs, fmt.Errorf("target tier %.2f must be positive", t))
		}
	}
	if c.MinBodyATR < 0 {
		errs = append(errs, fmt.Errorf("min_body_atr %.2f is negative", c.MinBodyATR))
	}
	switch c.StopMode {
	case StopATR, StopStructure:
	default:
		errs = append(errs, fmt.Errorf("unknown stop_mode %q", c.StopMode))
	}
	switch c.RetestEntry {
	case RetestSwing, RetestEMAFast:
	default:
		errs = append(errs, fmt.Errorf("unknown retest_entry %q", c.RetestEntry))
	}
	return errors.Join(errs...)
}
