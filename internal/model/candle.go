package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUnordered is returned when candle timestamps are not strictly increasing.
	ErrUnordered = errors.New("series timestamps not strictly increasing")
	// ErrMalformed is returned for non-finite, negative or inverted OHLCV values.
	ErrMalformed = errors.New("malformed candle")
)

// Candle is one OHLCV bar. TS is the bar open time (UTC).
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Body returns the absolute open-to-close distance.
func (c *Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// Series is an ordered candle list. The last element is the live
// (still-forming) candle; the one before it is the decision candle.
type Series []Candle

// DecisionIndex returns the index of the last closed candle for a series of
// length n, or -1 when no closed candle exists.
func DecisionIndex(n int) int {
	if n < 2 {
		return -1
	}
	return n - 2
}

// LiveIndex returns the index of the still-forming candle, or -1 for an empty series.
func LiveIndex(n int) int {
	return n - 1
}

// Decision returns the last closed candle.
func (s Series) Decision() (Candle, bool) {
	i := DecisionIndex(len(s))
	if i < 0 {
		return Candle{}, false
	}
	return s[i], true
}

// Live returns the still-forming candle.
func (s Series) Live() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Validate reports the first ordering or value problem in the series.
func (s Series) Validate() error {
	for i, c := range s {
		if !finite(c.Open, c.High, c.Low, c.Close, c.Volume) {
			return fmt.Errorf("candle %d: non-finite value: %w", i, ErrMalformed)
		}
		if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 || c.Volume < 0 {
			return fmt.Errorf("candle %d: negative value: %w", i, ErrMalformed)
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high %.8g below low %.8g: %w", i, c.High, c.Low, ErrMalformed)
		}
		if i > 0 && !c.TS.After(s[i-1].TS) {
			return fmt.Errorf("candle %d at %s: %w", i, c.TS.Format(time.RFC3339), ErrUnordered)
		}
	}
	return nil
}

func (s Series) Opens() []float64   { return s.column(func(c Candle) float64 { return c.Open }) }
func (s Series) Highs() []float64   { return s.column(func(c Candle) float64 { return c.High }) }
func (s Series) Lows() []float64    { return s.column(func(c Candle) float64 { return c.Low }) }
func (s Series) Closes() []float64  { return s.column(func(c Candle) float64 { return c.Close }) }
func (s Series) Volumes() []float64 { return s.column(func(c Candle) float64 { return c.Volume }) }

func (s Series) column(f func(Candle) float64) []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = f(c)
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
