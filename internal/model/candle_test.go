package model

import (
	"errors"
	"math"
	"testing"
	"time"
)

func mkSeries(n int) Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(Series, n)
	for i := range s {
		p := 100 + float64(i)
		s[i] = Candle{TS: base.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return s
}

func TestDecisionIndex(t *testing.T) {
	cases := []struct{ n, want int }{{0, -1}, {1, -1}, {2, 0}, {250, 248}}
	for _, c := range cases {
		if got := DecisionIndex(c.n); got != c.want {
			t.Errorf("DecisionIndex(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestSeries_DecisionAndLive(t *testing.T) {
	s := mkSeries(5)
	d, ok := s.Decision()
	if !ok || d.Close != 103 {
		t.Errorf("decision = %+v ok=%v, want close 103", d, ok)
	}
	l, ok := s.Live()
	if !ok || l.Close != 104 {
		t.Errorf("live = %+v ok=%v, want close 104", l, ok)
	}

	if _, ok := (Series{}).Live(); ok {
		t.Error("empty series should have no live candle")
	}
	if _, ok := mkSeries(1).Decision(); ok {
		t.Error("single-candle series should have no decision candle")
	}
}

func TestSeries_Validate(t *testing.T) {
	if err := mkSeries(10).Validate(); err != nil {
		t.Fatalf("valid series rejected: %v", err)
	}

	dup := mkSeries(4)
	dup[2].TS = dup[1].TS
	if err := dup.Validate(); !errors.Is(err, ErrUnordered) {
		t.Errorf("duplicate timestamp: got %v, want ErrUnordered", err)
	}

	nan := mkSeries(4)
	nan[3].Close = math.NaN()
	if err := nan.Validate(); !errors.Is(err, ErrMalformed) {
		t.Errorf("NaN close: got %v, want ErrMalformed", err)
	}

	inv := mkSeries(4)
	inv[0].High, inv[0].Low = 90, 110
	if err := inv.Validate(); !errors.Is(err, ErrMalformed) {
		t.Errorf("inverted high/low: got %v, want ErrMalformed", err)
	}
}

func TestSeries_Columns(t *testing.T) {
	s := mkSeries(3)
	closes := s.Closes()
	highs := s.Highs()
	if len(closes) != 3 || closes[2] != 102 {
		t.Errorf("closes = %v", closes)
	}
	if highs[0] != 101 {
		t.Errorf("highs[0] = %v, want 101", highs[0])
	}
}

func TestParseTimeframe(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseTimeframe(in)
		if err != nil || got != want {
			t.Errorf("ParseTimeframe(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "m", "0m", "5x", "-1h"} {
		if _, err := ParseTimeframe(bad); err == nil {
			t.Errorf("ParseTimeframe(%q) expected error", bad)
		}
	}
}

func TestSortTimeframes(t *testing.T) {
	got := SortTimeframes([]string{"4h", "bogus", "15m", "1d", "1h"})
	want := []string{"15m", "1h", "4h", "1d", "bogus"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortTimeframes = %v, want %v", got, want)
		}
	}
}
