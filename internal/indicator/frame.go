package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"signalradar/internal/model"
)

// Frame is the indicator table for one candle series. All slices have
// length Len; an entry is NaN until its indicator has warmed up.
type Frame struct {
	Len int

	EMAFast  []float64
	EMASlow  []float64
	RSI      []float64
	RSISlope []float64 // sign(rsi[t]-rsi[t-1]): -1, 0 or +1
	ATR      []float64
	ADX      []float64

	VolumeAvg   []float64
	VolumeRatio []float64

	MACDHist []float64

	BollUpper []float64
	BollMid   []float64
	BollLower []float64
}

// Compute builds the Frame for a series. Short series never panic: any
// column whose lookback exceeds the series is entirely NaN.
func Compute(s model.Series, p Periods) Frame {
	p = p.WithDefaults()
	n := len(s)
	closes := s.Closes()
	highs := s.Highs()
	lows := s.Lows()
	vols := s.Volumes()

	f := Frame{Len: n}
	f.EMAFast = ema(closes, p.EMAFast)
	f.EMASlow = ema(closes, p.EMASlow)
	f.RSI = rsi(closes, p.RSI)
	f.RSISlope = slope(f.RSI)
	f.ATR = atr(highs, lows, closes, p.ATR)
	f.ADX = adx(highs, lows, closes, p.ADX)
	f.VolumeAvg = sma(vols, p.VolumeAvg)
	f.VolumeRatio = ratio(vols, f.VolumeAvg)
	f.MACDHist = macdHist(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	f.BollUpper, f.BollMid, f.BollLower = bbands(closes, p.BollPeriod, p.BollK)
	return f
}

// talib fills its lookback region with zeros and indexes past the end of
// short inputs, so every wrapper guards the length and masks the prefix.

func ema(in []float64, period int) []float64 {
	if len(in) < period {
		return nanSeries(len(in))
	}
	return mask(talib.Ema(in, period), period-1)
}

func sma(in []float64, period int) []float64 {
	if len(in) < period {
		return nanSeries(len(in))
	}
	return mask(talib.Sma(in, period), period-1)
}

func rsi(in []float64, period int) []float64 {
	if len(in) <= period {
		return nanSeries(len(in))
	}
	return mask(talib.Rsi(in, period), period)
}

func atr(highs, lows, closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nanSeries(len(closes))
	}
	return mask(talib.Atr(highs, lows, closes, period), period)
}

func adx(highs, lows, closes []float64, period int) []float64 {
	if len(closes) <= 2*period {
		return nanSeries(len(closes))
	}
	return mask(talib.Adx(highs, lows, closes, period), 2*period-1)
}

func macdHist(in []float64, fast, slow, signal int) []float64 {
	lookback := slow + signal - 2
	if len(in) <= lookback+1 {
		return nanSeries(len(in))
	}
	_, _, hist := talib.Macd(in, fast, slow, signal)
	return mask(hist, lookback)
}

func bbands(in []float64, period int, k float64) (upper, mid, lower []float64) {
	if len(in) < period {
		return nanSeries(len(in)), nanSeries(len(in)), nanSeries(len(in))
	}
	u, m, l := talib.BBands(in, period, k, k, talib.SMA)
	return mask(u, period-1), mask(m, period-1), mask(l, period-1)
}

// slope returns the sign of the first difference; NaN where either side is undefined.
func slope(in []float64) []float64 {
	out := nanSeries(len(in))
	for i := 1; i < len(in); i++ {
		prev, cur := in[i-1], in[i]
		if math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		switch {
		case cur > prev:
			out[i] = 1
		case cur < prev:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
	return out
}

// ratio divides volume by its average. A zero average substitutes the raw
// volume as its own average, giving a neutral 1.
func ratio(vols, avg []float64) []float64 {
	out := nanSeries(len(vols))
	for i := range vols {
		a := avg[i]
		switch {
		case math.IsNaN(a):
		case a == 0:
			out[i] = 1
		default:
			out[i] = vols[i] / a
		}
	}
	return out
}

func mask(in []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(in); i++ {
		in[i] = math.NaN()
	}
	return in
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
