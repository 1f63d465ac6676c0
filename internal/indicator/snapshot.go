package indicator

import (
	"encoding/json"
	"fmt"
	"math"
)

// Snapshot is the Frame read at a single candle index. It is embedded in
// every Signal so a consumer can see the values the gates were judged on.
type Snapshot struct {
	Index       int     `json:"index"`
	EMAFast     float64 `json:"ema_fast"`
	EMASlow     float64 `json:"ema_slow"`
	RSI         float64 `json:"rsi"`
	RSISlope    float64 `json:"rsi_slope"`
	ATR         float64 `json:"atr"`
	ADX         float64 `json:"adx"`
	VolumeAvg   float64 `json:"volume_avg"`
	VolumeRatio float64 `json:"volume_ratio"`
	MACDHist    float64 `json:"macd_hist"`
	BollUpper   float64 `json:"boll_upper"`
	BollMid     float64 `json:"boll_mid"`
	BollLower   float64 `json:"boll_lower"`
}

// At returns the snapshot at index i. Out-of-range indices yield an
// all-NaN snapshot.
func (f Frame) At(i int) Snapshot {
	get := func(col []float64) float64 {
		if i < 0 || i >= len(col) {
			return math.NaN()
		}
		return col[i]
	}
	return Snapshot{
		Index:       i,
		EMAFast:     get(f.EMAFast),
		EMASlow:     get(f.EMASlow),
		RSI:         get(f.RSI),
		RSISlope:    get(f.RSISlope),
		ATR:         get(f.ATR),
		ADX:         get(f.ADX),
		VolumeAvg:   get(f.VolumeAvg),
		VolumeRatio: get(f.VolumeRatio),
		MACDHist:    get(f.MACDHist),
		BollUpper:   get(f.BollUpper),
		BollMid:     get(f.BollMid),
		BollLower:   get(f.BollLower),
	}
}

// Missing lists the gate-relevant fields that are undefined. MACD and
// Bollinger are optional and never reported.
func (s Snapshot) Missing() []string {
	var out []string
	check := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out = append(out, name)
		}
	}
	check("ema_fast", s.EMAFast)
	check("ema_slow", s.EMASlow)
	check("rsi", s.RSI)
	check("rsi_slope", s.RSISlope)
	check("atr", s.ATR)
	check("adx", s.ADX)
	check("volume_avg", s.VolumeAvg)
	return out
}

// Defined reports whether every gate-relevant field is finite.
func (s Snapshot) Defined() bool {
	return len(s.Missing()) == 0
}

// HasMACD reports whether the optional MACD histogram is defined.
func (s Snapshot) HasMACD() bool {
	return !math.IsNaN(s.MACDHist)
}

func (s Snapshot) String() string {
	return fmt.Sprintf("ema_slow=%.4f rsi=%.2f slope=%+.0f atr=%.4f adx=%.2f vol_ratio=%.2f",
		s.EMASlow, s.RSI, s.RSISlope, s.ATR, s.ADX, s.VolumeRatio)
}

// MarshalJSON encodes undefined values as null; encoding/json rejects NaN.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	num := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Index       int      `json:"index"`
		EMAFast     *float64 `json:"ema_fast"`
		EMASlow     *float64 `json:"ema_slow"`
		RSI         *float64 `json:"rsi"`
		RSISlope    *float64 `json:"rsi_slope"`
		ATR         *float64 `json:"atr"`
		ADX         *float64 `json:"adx"`
		VolumeAvg   *float64 `json:"volume_avg"`
		VolumeRatio *float64 `json:"volume_ratio"`
		MACDHist    *float64 `json:"macd_hist"`
		BollUpper   *float64 `json:"boll_upper"`
		BollMid     *float64 `json:"boll_mid"`
		BollLower   *float64 `json:"boll_lower"`
	}{
		s.Index, num(s.EMAFast), num(s.EMASlow), num(s.RSI), num(s.RSISlope), num(s.ATR), num(s.ADX),
		num(s.VolumeAvg), num(s.VolumeRatio), num(s.MACDHist), num(s.BollUpper), num(s.BollMid), num(s.BollLower),
	})
}

// UnmarshalJSON restores null fields as NaN.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Index       int      `json:"index"`
		EMAFast     *float64 `json:"ema_fast"`
		EMASlow     *float64 `json:"ema_slow"`
		RSI         *float64 `json:"rsi"`
		RSISlope    *float64 `json:"rsi_slope"`
		ATR         *float64 `json:"atr"`
		ADX         *float64 `json:"adx"`
		VolumeAvg   *float64 `json:"volume_avg"`
		VolumeRatio *float64 `json:"volume_ratio"`
		MACDHist    *float64 `json:"macd_hist"`
		BollUpper   *float64 `json:"boll_upper"`
		BollMid     *float64 `json:"boll_mid"`
		BollLower   *float64 `json:"boll_lower"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val := func(p *float64) float64 {
		if p == nil {
			return math.NaN()
		}
		return *p
	}
	*s = Snapshot{
		Index:       raw.Index,
		EMAFast:     val(raw.EMAFast),
		EMASlow:     val(raw.EMASlow),
		RSI:         val(raw.RSI),
		RSISlope:    val(raw.RSISlope),
		ATR:         val(raw.ATR),
		ADX:         val(raw.ADX),
		VolumeAvg:   val(raw.VolumeAvg),
		VolumeRatio: val(raw.VolumeRatio),
		MACDHist:    val(raw.MACDHist),
		BollUpper:   val(raw.BollUpper),
		BollMid:     val(raw.BollMid),
		BollLower:   val(raw.BollLower),
	}
	return nil
}
