package render

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"signalradar/internal/confluence"
	"signalradar/internal/signal"
)

func TestPrice(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{65432.123, "65432.12"},
		{105, "105.0000"},
		{1.23456789, "1.2346"},
		{0.0523, "0.052300"},
		{0.00001234, "0.00001234"},
		{-2.5, "-2.5000"},
		{0, "-"},
		{math.NaN(), "-"},
	}
	for _, c := range cases {
		if got := Price(c.in); got != c.want {
			t.Errorf("Price(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNum(t *testing.T) {
	if got := Num(61.237); got != "61.24" {
		t.Errorf("Num = %q", got)
	}
	if got := Num(math.Inf(1)); got != "-" {
		t.Errorf("Num(inf) = %q", got)
	}
}

func sample() confluence.Result {
	long := signal.Signal{
		Symbol: "BTCUSDT", Timeframe: "15m", State: signal.StateLong, SubState: signal.SubAggressive,
		Entry: 105, Stop: 102, Target: 111, RiskReward: 2, Rationale: []string{"break above 104"},
	}
	side := signal.Signal{Symbol: "BTCUSDT", Timeframe: "4h", State: signal.StateSideways, Rationale: []string{"adx 12.00 <= 25"}}
	return confluence.Evaluate("BTCUSDT", []signal.Signal{side, long})
}

func TestConfluence_Table(t *testing.T) {
	var buf bytes.Buffer
	Confluence(&buf, sample(), Options{Reasons: true})
	out := buf.String()
	for _, want := range []string{"BTCUSDT", "15m", "LONG", "105.0000", "111.0000", "1:2.0", "SIDEWAYS", "break above 104", "score +1"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "15m") > strings.Index(out, "4h") {
		t.Error("rows should run fastest to slowest")
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("color codes written with Color=false")
	}
}

func TestSummary_Table(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, []confluence.Result{sample()}, Options{})
	out := buf.String()
	if !strings.Contains(out, "15m:LONG 4h:SIDEWAYS") {
		t.Errorf("summary row:\n%s", out)
	}
}
