// Package swing marks local highs and lows (fractal swing points) in a
// candle series.
package swing

import (
	"time"

	"signalradar/internal/model"
)

// DefaultWindow is the half-window used when none is configured.
const DefaultWindow = 3

// Kind distinguishes swing highs from swing lows.
type Kind int

const (
	High Kind = iota
	Low
)

func (k Kind) String() string {
	if k == High {
		return "HIGH"
	}
	return "LOW"
}

// Point is one marked candle. Price is the candle's high for a HIGH and
// its low for a LOW.
type Point struct {
	Index int       `json:"index"`
	Kind  Kind      `json:"kind"`
	Price float64   `json:"price"`
	TS    time.Time `json:"ts"`
}

// Detect returns every swing point in s for half-window w, ordered by
// index (HIGH before LOW on the same candle). A candle is a HIGH when its
// high equals the maximum high over [i-w, i+w]; LOW is symmetric. Only
// interior indices with w candles on both sides are eligible, so the last
// w candles are never marked. Plateaus are not deduplicated.
func Detect(s model.Series, w int) []Point {
	if w < 1 {
		w = DefaultWindow
	}
	n := len(s)
	if n < 2*w+1 {
		return nil
	}

	var out []Point
	for i := w; i <= n-1-w; i++ {
		hi, lo := s[i].High, s[i].Low
		isHigh, isLow := true, true
		for j := i - w; j <= i+w; j++ {
			if s[j].High > hi {
				isHigh = false
			}
			if s[j].Low < lo {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if isHigh {
			out = append(out, Point{Index: i, Kind: High, Price: hi, TS: s[i].TS})
		}
		if isLow {
			out = append(out, Point{Index: i, Kind: Low, Price: lo, TS: s[i].TS})
		}
	}
	return out
}

// Filter returns the points of one kind, preserving order.
func Filter(points []Point, kind Kind) []Point {
	var out []Point
	for _, p := range points {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// ConfirmSkip is the default depth for Confirmed: the most recent marked
// point is still provisional, so the one before it is the reference level.
const ConfirmSkip = 2

// Confirmed walks back from the candle at index before (exclusive) and
// returns the skip-th most recent point of the given kind. skip=1 is the
// nearest preceding marked point; a plateau's later candle counts first.
func Confirmed(points []Point, kind Kind, before, skip int) (Point, bool) {
	if skip < 1 {
		skip = ConfirmSkip
	}
	seen := 0
	for i := len(points) - 1; i >= 0; i-- {
		p := points[i]
		if p.Kind != kind || p.Index >= before {
			continue
		}
		seen++
		if seen == skip {
			return p, true
		}
	}
	return Point{}, false
}

// Count returns the number of points of the given kind.
func Count(points []Point, kind Kind) int {
	n := 0
	for _, p := range points {
		if p.Kind == kind {
			n++
		}
	}
	return n
}
