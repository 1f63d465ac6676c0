// Package signal classifies one candle series into a directional trade
// signal with entry, stop and target levels.
package signal

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"signalradar/internal/indicator"
)

// State is the terminal state of one classification.
type State string

const (
	StateInsufficientData State = "INSUFFICIENT_DATA"
	StateSideways         State = "SIDEWAYS"
	StateLowVolume        State = "LOW_VOLUME"
	StateNeutral          State = "NEUTRAL"
	StateWait             State = "WAIT"
	StateLong             State = "LONG"
	StateShort            State = "SHORT"
)

// Direction is the coarse call exposed to consumers.
type Direction string

const (
	Neutral Direction = "NEUTRAL"
	Wait    Direction = "WAIT"
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
)

// Sub-states qualify WAIT and directional signals.
const (
	SubAggressive       = "aggressive"
	SubOverboughtRetest = "overbought-retest"
	SubOversoldRetest   = "oversold-retest"
	SubWeakMomentum     = "weak-momentum"
	SubWeakBody         = "weak-body"
	SubMACDAgainst      = "macd-against"
)

// Signal is the immutable result of classifying one symbol/timeframe.
// Levels are zero unless State is WAIT, LONG or SHORT.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	State     State     `json:"state"`
	Direction Direction `json:"direction"`
	// Candidate is the side of the structure break (LONG or SHORT) for
	// WAIT and directional signals, empty otherwise.
	Candidate Direction `json:"candidate,omitempty"`
	SubState  string    `json:"sub_state,omitempty"`

	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`
	Targets    []float64 `json:"targets,omitempty"`
	RiskReward float64   `json:"risk_reward"`

	BrokenLevel float64 `json:"broken_level,omitempty"`
	SwingHigh   float64 `json:"swing_high,omitempty"`
	SwingLow    float64 `json:"swing_low,omitempty"`
	LivePrice   float64 `json:"live_price,omitempty"`

	DecisionTS time.Time          `json:"decision_ts"`
	Snapshot   indicator.Snapshot `json:"snapshot"`
	Rationale  []string           `json:"rationale"`
}

// Directional reports whether the signal is an actionable LONG or SHORT.
func (s Signal) Directional() bool {
	return s.State == StateLong || s.State == StateShort
}

// HasLevels reports whether entry/stop/target were computed.
func (s Signal) HasLevels() bool {
	return s.State == StateWait || s.Directional()
}

// Risk returns |entry - stop|.
func (s Signal) Risk() float64 {
	return math.Abs(s.Entry - s.Stop)
}

// RealizedRR reconstructs the reward/risk ratio from the levels. It
// returns 0 when no risk distance exists.
func (s Signal) RealizedRR() float64 {
	risk := s.Risk()
	if risk == 0 {
		return 0
	}
	return math.Abs(s.Target-s.Entry) / risk
}

// Reason joins the rationale tags into one line.
func (s Signal) Reason() string {
	return strings.Join(s.Rationale, "; ")
}

// JSON returns the JSON-encoded signal (ignoring errors for hot-path usage).
func (s Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

func directionOf(st State) Direction {
	switch st {
	case StateLong:
		return Long
	case StateShort:
		return Short
	case StateWait:
		return Wait
	default:
		return Neutral
	}
}
