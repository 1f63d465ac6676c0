// Package render formats scan results for terminals.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"signalradar/internal/confluence"
	"signalradar/internal/signal"
)

// Price formats a level with precision scaled to its magnitude, so a
// 0.00001234 altcoin and a 65000 BTC price both stay readable. Zero and
// undefined values render as "-".
func Price(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	d := decimal.NewFromFloat(v)
	abs := math.Abs(v)
	var places int32
	switch {
	case abs >= 1000:
		places = 2
	case abs >= 1:
		places = 4
	case abs >= 0.01:
		places = 6
	default:
		places = 8
	}
	return d.StringFixed(places)
}

// Num formats an indicator value to two places.
func Num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

func stateColor(st signal.State) text.Colors {
	switch st {
	case signal.StateLong:
		return text.Colors{text.FgGreen, text.Bold}
	case signal.StateShort:
		return text.Colors{text.FgRed, text.Bold}
	case signal.StateWait:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func verdictColor(v confluence.Verdict) text.Colors {
	switch v {
	case confluence.StrongUptrend:
		return text.Colors{text.FgGreen, text.Bold}
	case confluence.StrongDowntrend:
		return text.Colors{text.FgRed, text.Bold}
	case confluence.Divergent:
		return text.Colors{text.FgYellow}
	case confluence.Momentum:
		return text.Colors{text.FgCyan}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

// Options controls table output.
type Options struct {
	Color   bool
	Reasons bool // include the rationale column
}

// style is StyleLight with the footer left in its original case.
func style() table.Style {
	s := table.StyleLight
	s.Format.Footer = text.FormatDefault
	return s
}

func paint(on bool, c text.Colors, s string) string {
	if !on {
		return s
	}
	return c.Sprint(s)
}

// Confluence writes one symbol's per-timeframe signals followed by the
// verdict line.
func Confluence(w io.Writer, r confluence.Result, opt Options) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(style())
	t.SetTitle(r.Symbol)

	header := table.Row{"TF", "State", "Sub", "Entry", "Stop", "Target", "R:R", "RSI", "ADX", "Vol x"}
	if opt.Reasons {
		header = append(header, "Reason")
	}
	t.AppendHeader(header)

	for _, s := range r.Signals {
		row := table.Row{
			s.Timeframe,
			paint(opt.Color, stateColor(s.State), string(s.State)),
			s.SubState,
			Price(s.Entry),
			Price(s.Stop),
			Price(s.Target),
			rr(s),
			Num(s.Snapshot.RSI),
			Num(s.Snapshot.ADX),
			Num(s.Snapshot.VolumeRatio),
		}
		if opt.Reasons {
			row = append(row, s.Reason())
		}
		t.AppendRow(row)
	}

	t.AppendFooter(table.Row{
		"", paint(opt.Color, verdictColor(r.Verdict), string(r.Verdict)),
		fmt.Sprintf("score %+d", r.Score),
	})
	t.Render()
}

// Summary writes one row per symbol.
func Summary(w io.Writer, results []confluence.Result, opt Options) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(style())
	t.AppendHeader(table.Row{"Symbol", "Verdict", "Score", "Signals"})
	for _, r := range results {
		parts := make([]string, 0, len(r.Signals))
		for _, s := range r.Signals {
			parts = append(parts, s.Timeframe+":"+shortState(s.State))
		}
		t.AppendRow(table.Row{
			r.Symbol,
			paint(opt.Color, verdictColor(r.Verdict), string(r.Verdict)),
			fmt.Sprintf("%+d", r.Score),
			strings.Join(parts, " "),
		})
	}
	t.Render()
}

func rr(s signal.Signal) string {
	if !s.HasLevels() {
		return "-"
	}
	return "1:" + decimal.NewFromFloat(s.RiskReward).StringFixed(1)
}

func shortState(st signal.State) string {
	switch st {
	case signal.StateInsufficientData:
		return "N/A"
	case signal.StateLowVolume:
		return "LOWVOL"
	default:
		return string(st)
	}
}
