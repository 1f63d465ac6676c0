// Package confluence reduces per-timeframe signals for one symbol into a
// single verdict.
package confluence

import (
	"sort"

	"signalradar/internal/model"
	"signalradar/internal/signal"
)

// Verdict is the aggregate label.
type Verdict string

const (
	StrongUptrend   Verdict = "STRONG_UPTREND"
	StrongDowntrend Verdict = "STRONG_DOWNTREND"
	Divergent       Verdict = "DIVERGENT/SCALP-ONLY"
	Momentum        Verdict = "MOMENTUM_PRESENT"
	NoTrade         Verdict = "NO_TRADE"
)

// Result is the confluence of one symbol across timeframes. Signals are
// ordered fastest to slowest.
type Result struct {
	Symbol    string          `json:"symbol"`
	Signals   []signal.Signal `json:"signals"`
	Score     int             `json:"score"`
	Verdict   Verdict         `json:"verdict"`
	Divergent bool            `json:"divergent"`
	Fastest   string          `json:"fastest,omitempty"`
	Slowest   string          `json:"slowest,omitempty"`
}

// Evaluate scores the signals (+1 LONG, -1 SHORT, 0 otherwise) and labels
// them. Precedence: unanimous LONG, unanimous SHORT, fastest opposing
// slowest, |score| at or above a strict majority, otherwise NO_TRADE.
// The input slice is not modified.
func Evaluate(symbol string, signals []signal.Signal) Result {
	ordered := append([]signal.Signal(nil), signals...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Timeframe) < rank(ordered[j].Timeframe)
	})

	r := Result{Symbol: symbol, Signals: ordered, Verdict: NoTrade}
	n := len(ordered)
	if n == 0 {
		return r
	}
	r.Fastest = ordered[0].Timeframe
	r.Slowest = ordered[n-1].Timeframe

	longs, shorts := 0, 0
	for _, s := range ordered {
		switch s.State {
		case signal.StateLong:
			longs++
		case signal.StateShort:
			shorts++
		}
	}
	r.Score = longs - shorts

	fast, slow := ordered[0].State, ordered[n-1].State
	r.Divergent = n > 1 && opposite(fast, slow)

	majority := n/2 + 1
	switch {
	case longs == n:
		r.Verdict = StrongUptrend
	case shorts == n:
		r.Verdict = StrongDowntrend
	case r.Divergent:
		r.Verdict = Divergent
	case abs(r.Score) >= majority:
		r.Verdict = Momentum
	}
	return r
}

// Bias returns the dominant direction implied by the score.
func (r Result) Bias() signal.Direction {
	switch {
	case r.Score > 0:
		return signal.Long
	case r.Score < 0:
		return signal.Short
	default:
		return signal.Neutral
	}
}

// Tradeable reports whether the verdict supports a directional trade on
// the slower timeframes.
func (r Result) Tradeable() bool {
	return r.Verdict == StrongUptrend || r.Verdict == StrongDowntrend || r.Verdict == Momentum
}

func opposite(a, b signal.State) bool {
	return a == signal.StateLong && b == signal.StateShort ||
		a == signal.StateShort && b == signal.StateLong
}

// rank orders known timeframes by duration; unknown ones keep input order
// after the known ones.
func rank(tf string) int64 {
	d, err := model.ParseTimeframe(tf)
	if err != nil {
		return 1<<63 - 1
	}
	return int64(d)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
