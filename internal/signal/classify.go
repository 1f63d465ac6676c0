package signal

import (
	"fmt"
	"math"
	"strings"

	"signalradar/internal/indicator"
	"signalradar/internal/model"
	"signalradar/internal/swing"
)

// Input is everything Decide needs: the series plus the indicator frame and
// swing points already computed over it.
type Input struct {
	Symbol    string
	Timeframe string
	Series    model.Series
	Frame     indicator.Frame
	Swings    []swing.Point
}

// Classify validates the series, computes its indicator frame and swing
// points, and runs the gate sequence. It never panics on short or
// malformed input; those yield INSUFFICIENT_DATA.
func Classify(symbol, timeframe string, s model.Series, cfg Config) Signal {
	cfg = cfg.WithDefaults()
	if err := s.Validate(); err != nil {
		sig := Signal{Symbol: symbol, Timeframe: timeframe, RiskReward: cfg.RiskReward}
		return sig.terminal(StateInsufficientData, "invalid series: "+err.Error())
	}
	if len(s) < cfg.Periods.MinCandles() {
		sig := Signal{Symbol: symbol, Timeframe: timeframe, RiskReward: cfg.RiskReward}
		return sig.terminal(StateInsufficientData,
			fmt.Sprintf("series has %d candles, need %d", len(s), cfg.Periods.MinCandles()))
	}
	return Decide(Input{
		Symbol:    symbol,
		Timeframe: timeframe,
		Series:    s,
		Frame:     indicator.Compute(s, cfg.Periods),
		Swings:    swing.Detect(s, cfg.SwingWindow),
	}, cfg)
}

// Unavailable is the INSUFFICIENT_DATA signal for a pair whose candles
// could not be obtained at all.
func Unavailable(symbol, timeframe, reason string, cfg Config) Signal {
	sig := Signal{Symbol: symbol, Timeframe: timeframe, RiskReward: cfg.WithDefaults().RiskReward}
	return sig.terminal(StateInsufficientData, reason)
}

// Decide runs the gate sequence over precomputed inputs. Gates short-circuit
// in order: data sufficiency, trend strength, volume, structure break,
// momentum health. Only the entry may use the live candle; every
// comparison reads the decision candle.
func Decide(in Input, cfg Config) Signal {
	cfg = cfg.WithDefaults()
	sig := Signal{Symbol: in.Symbol, Timeframe: in.Timeframe, RiskReward: cfg.RiskReward}

	// ── 1. data sufficiency ──
	n := len(in.Series)
	if need := cfg.Periods.MinCandles(); n < need {
		return sig.terminal(StateInsufficientData, fmt.Sprintf("series has %d candles, need %d", n, need))
	}
	if in.Frame.Len != n {
		return sig.terminal(StateInsufficientData,
			fmt.Sprintf("indicator frame has %d rows for %d candles", in.Frame.Len, n))
	}
	di := model.DecisionIndex(n)
	dec := in.Series[di]
	live := in.Series[model.LiveIndex(n)]
	snap := in.Frame.At(di)
	sig.DecisionTS = dec.TS
	sig.LivePrice = live.Close
	sig.Snapshot = snap

	if missing := snap.Missing(); len(missing) > 0 {
		return sig.terminal(StateInsufficientData, "undefined at decision candle: "+strings.Join(missing, ","))
	}
	if cfg.RequireMACD && !snap.HasMACD() {
		return sig.terminal(StateInsufficientData, "undefined at decision candle: macd_hist")
	}
	if snap.ATR <= 0 {
		return sig.terminal(StateInsufficientData, "atr is zero at decision candle")
	}
	if math.IsNaN(live.Close) || live.Close <= 0 {
		return sig.terminal(StateInsufficientData, "live price unavailable")
	}
	hi, okHi := swing.Confirmed(in.Swings, swing.High, model.LiveIndex(n), cfg.SwingSkip)
	lo, okLo := swing.Confirmed(in.Swings, swing.Low, model.LiveIndex(n), cfg.SwingSkip)
	if !okHi || !okLo {
		return sig.terminal(StateInsufficientData,
			fmt.Sprintf("no confirmed swing structure (highs=%d lows=%d)",
				swing.Count(in.Swings, swing.High), swing.Count(in.Swings, swing.Low)))
	}
	sig.SwingHigh, sig.SwingLow = hi.Price, lo.Price

	// ── 2. trend strength ──
	if !(snap.ADX > *cfg.ADXThreshold) {
		return sig.terminal(StateSideways, fmt.Sprintf("adx %.2f <= %.2f", snap.ADX, *cfg.ADXThreshold))
	}
	sig.tag("adx %.2f > %.2f", snap.ADX, *cfg.ADXThreshold)

	// ── 3. volume ──
	if snap.VolumeAvg == 0 {
		sig.tag("volume average is zero, gate passed")
	} else if need := snap.VolumeAvg * *cfg.VolumeMultiple; !(dec.Volume > need) {
		return sig.terminal(StateLowVolume,
			fmt.Sprintf("volume %.4g <= %.2fx avg %.4g", dec.Volume, *cfg.VolumeMultiple, snap.VolumeAvg))
	} else {
		sig.tag("volume %.2fx avg", dec.Volume/snap.VolumeAvg)
	}

	// ── 4. bias + structure break ──
	var broken float64
	switch {
	case dec.Close > snap.EMASlow && dec.Close > hi.Price:
		sig.Candidate, broken = Long, hi.Price
		sig.tag("close %.6g above ema%d %.6g", dec.Close, cfg.Periods.EMASlow, snap.EMASlow)
		sig.tag("broke swing-high %.6g", hi.Price)
	case dec.Close < snap.EMASlow && dec.Close < lo.Price:
		sig.Candidate, broken = Short, lo.Price
		sig.tag("close %.6g below ema%d %.6g", dec.Close, cfg.Periods.EMASlow, snap.EMASlow)
		sig.tag("broke swing-low %.6g", lo.Price)
	default:
		return sig.terminal(StateNeutral, noBreakReason(dec.Close, snap.EMASlow, hi.Price, lo.Price))
	}
	sig.BrokenLevel = broken

	// ── 5. momentum health ──
	long := sig.Candidate == Long
	var waitSub string
	switch {
	case long && snap.RSI > *cfg.RSIOverbought:
		waitSub = SubOverboughtRetest
		sig.tag("rsi %.2f > %.0f", snap.RSI, *cfg.RSIOverbought)
	case !long && snap.RSI < *cfg.RSIOversold:
		waitSub = SubOversoldRetest
		sig.tag("rsi %.2f < %.0f", snap.RSI, *cfg.RSIOversold)
	case long && snap.RSISlope <= 0, !long && snap.RSISlope >= 0:
		waitSub = SubWeakMomentum
		sig.tag("rsi %.2f not %s", snap.RSI, momentumWord(long))
	case cfg.MinBodyATR > 0 && !(dec.Body() > cfg.MinBodyATR*snap.ATR):
		waitSub = SubWeakBody
		sig.tag("body %.6g <= %.2f atr", dec.Body(), cfg.MinBodyATR)
	case cfg.RequireMACD && (long && snap.MACDHist <= 0 || !long && snap.MACDHist >= 0):
		waitSub = SubMACDAgainst
		sig.tag("macd histogram %.6g against %s", snap.MACDHist, sig.Candidate)
	default:
		sig.tag("rsi %.2f %s", snap.RSI, momentumWord(long))
	}

	var entry float64
	if waitSub != "" {
		sig.State, sig.SubState = StateWait, waitSub
		entry = broken
		if cfg.RetestEntry == RetestEMAFast {
			entry = snap.EMAFast
		}
	} else {
		sig.State, sig.SubState = stateFor(sig.Candidate), SubAggressive
		entry = live.Close
	}
	sig.Direction = directionOf(sig.State)

	// ── 6. levels ──
	if !sig.setLevels(entry, snap.ATR, lo.Price, hi.Price, cfg) {
		return sig.terminal(StateInsufficientData, "no positive risk distance at entry")
	}
	return sig
}

func (s *Signal) tag(format string, args ...any) {
	s.Rationale = append(s.Rationale, fmt.Sprintf(format, args...))
}

// terminal finalizes a gate failure: no candidate, no levels.
func (s *Signal) terminal(st State, reason string) Signal {
	s.State = st
	s.Direction = directionOf(st)
	s.Candidate = ""
	s.SubState = ""
	s.Entry, s.Stop, s.Target, s.Targets = 0, 0, 0, nil
	s.BrokenLevel = 0
	s.Rationale = append(s.Rationale, reason)
	return *s
}

func stateFor(d Direction) State {
	if d == Short {
		return StateShort
	}
	return StateLong
}

func momentumWord(long bool) string {
	if long {
		return "rising"
	}
	return "falling"
}

func noBreakReason(c, ema, hi, lo float64) string {
	switch {
	case c > ema:
		return fmt.Sprintf("bullish bias, close %.6g has not broken swing-high %.6g", c, hi)
	case c < ema:
		return fmt.Sprintf("bearish bias, close %.6g has not broken swing-low %.6g", c, lo)
	default:
		return fmt.Sprintf("close %.6g on trend ema, no bias", c)
	}
}
