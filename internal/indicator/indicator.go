// Package indicator computes the batch indicator frame consumed by the
// signal classifier. Every column is aligned 1:1 with the input candle
// series and warm-up entries are NaN, never zero.
package indicator

// Periods holds the lookback lengths for every column of a Frame.
// Zero values fall back to the defaults below.
type Periods struct {
	EMAFast    int     `toml:"ema_fast"`
	EMASlow    int     `toml:"ema_slow"`
	RSI        int     `toml:"rsi"`
	ATR        int     `toml:"atr"`
	ADX        int     `toml:"adx"`
	VolumeAvg  int     `toml:"volume_avg"`
	BollPeriod int     `toml:"boll_period"`
	BollK      float64 `toml:"boll_k"`
	MACDFast   int     `toml:"macd_fast"`
	MACDSlow   int     `toml:"macd_slow"`
	MACDSignal int     `toml:"macd_signal"`
}

// DefaultPeriods returns the canonical lookbacks.
func DefaultPeriods() Periods {
	return Periods{
		EMAFast:    50,
		EMASlow:    200,
		RSI:        14,
		ATR:        14,
		ADX:        14,
		VolumeAvg:  20,
		BollPeriod: 20,
		BollK:      2,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
	}
}

// WithDefaults fills every non-positive field from DefaultPeriods.
func (p Periods) WithDefaults() Periods {
	d := DefaultPeriods()
	if p.EMAFast <= 0 {
		p.EMAFast = d.EMAFast
	}
	if p.EMASlow <= 0 {
		p.EMASlow = d.EMASlow
	}
	if p.RSI <= 1 {
		p.RSI = d.RSI
	}
	if p.ATR <= 1 {
		p.ATR = d.ATR
	}
	if p.ADX <= 1 {
		p.ADX = d.ADX
	}
	if p.VolumeAvg <= 0 {
		p.VolumeAvg = d.VolumeAvg
	}
	if p.BollPeriod <= 1 {
		p.BollPeriod = d.BollPeriod
	}
	if p.BollK <= 0 {
		p.BollK = d.BollK
	}
	if p.MACDFast <= 1 {
		p.MACDFast = d.MACDFast
	}
	if p.MACDSlow <= p.MACDFast {
		p.MACDSlow = d.MACDSlow
		if p.MACDSlow <= p.MACDFast {
			p.MACDSlow = p.MACDFast + 1
		}
	}
	if p.MACDSignal <= 1 {
		p.MACDSignal = d.MACDSignal
	}
	return p
}

// WarmUp returns the index of the first candle at which every gate-relevant
// column (EMAs, RSI slope, ATR, ADX, volume average) is defined.
func (p Periods) WarmUp() int {
	p = p.WithDefaults()
	return maxInt(
		p.EMAFast-1,
		p.EMASlow-1,
		p.RSI+1, // slope needs the previous RSI
		p.ATR,
		2*p.ADX-1,
		p.VolumeAvg-1,
	)
}

// MinCandles is the shortest series that yields a defined decision candle:
// the warm-up prefix, the decision candle itself and the live candle.
func (p Periods) MinCandles() int {
	return p.WarmUp() + 2
}

func maxInt(vs ...int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
