package scanner

import (
	"sort"
	"time"

	"signalradar/internal/confluence"
	"signalradar/internal/model"
	"signalradar/internal/signal"
)

// ScanState is the outcome of one full scan. A new state is built for
// every scan; existing states are never modified, so a state handed to an
// HTTP handler stays consistent while the next scan runs.
type ScanState struct {
	ID       string                        `json:"id"`
	At       time.Time                     `json:"at"`
	Results  []confluence.Result           `json:"results"`
	Last     map[string]signal.Signal      `json:"-"`
	Verdicts map[string]confluence.Verdict `json:"-"`
}

// Next builds the successor state from this scan's results. Pairs that
// were not scanned this time keep their previous signal.
func (st ScanState) Next(id string, at time.Time, results []confluence.Result) ScanState {
	next := ScanState{
		ID:       id,
		At:       at,
		Results:  append([]confluence.Result(nil), results...),
		Last:     make(map[string]signal.Signal, len(st.Last)),
		Verdicts: make(map[string]confluence.Verdict, len(st.Verdicts)),
	}
	for k, v := range st.Last {
		next.Last[k] = v
	}
	for k, v := range st.Verdicts {
		next.Verdicts[k] = v
	}
	for _, r := range results {
		next.Verdicts[r.Symbol] = r.Verdict
		for _, s := range r.Signals {
			next.Last[model.SignalKey(s.Symbol, s.Timeframe)] = s
		}
	}
	sort.Slice(next.Results, func(i, j int) bool { return next.Results[i].Symbol < next.Results[j].Symbol })
	return next
}

// Fresh lists the WAIT and directional signals in st that prev had not
// already reported: the pair is new, its decision candle moved on, or its
// state changed. A signal repeated on the same decision candle is not
// fresh. Output is ordered by key.
func (st ScanState) Fresh(prev ScanState) []signal.Signal {
	var out []signal.Signal
	for k, s := range st.Last {
		if !s.HasLevels() {
			continue
		}
		old, seen := prev.Last[k]
		if seen && old.State == s.State && old.DecisionTS.Equal(s.DecisionTS) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return model.SignalKey(out[i].Symbol, out[i].Timeframe) < model.SignalKey(out[j].Symbol, out[j].Timeframe)
	})
	return out
}

// VerdictChanges lists results whose verdict is tradeable and differs
// from the verdict prev recorded for the symbol.
func (st ScanState) VerdictChanges(prev ScanState) []confluence.Result {
	var out []confluence.Result
	for _, r := range st.Results {
		if !r.Tradeable() {
			continue
		}
		if v, ok := prev.Verdicts[r.Symbol]; ok && v == r.Verdict {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Signal returns the last signal seen for symbol/timeframe.
func (st ScanState) Signal(symbol, timeframe string) (signal.Signal, bool) {
	s, ok := st.Last[model.SignalKey(symbol, timeframe)]
	return s, ok
}

// Result returns the symbol's confluence from this scan.
func (st ScanState) Result(symbol string) (confluence.Result, bool) {
	for _, r := range st.Results {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return confluence.Result{}, false
}
