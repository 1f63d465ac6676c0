// Package notification delivers alerts for fresh directional signals and
// confluence changes to external channels (Telegram, webhooks, logs).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"signalradar/internal/confluence"
	"signalradar/internal/metrics"
	"signalradar/internal/signal"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Symbol    string     `json:"symbol,omitempty"`
	Timeframe string     `json:"timeframe,omitempty"`
	TS        time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
	// Name labels the backend in logs and metrics.
	Name() string
}

// AlertFromSignal formats a directional or WAIT signal.
func AlertFromSignal(s signal.Signal) Alert {
	level := AlertInfo
	if s.Directional() {
		level = AlertWarning
	}

	title := fmt.Sprintf("%s %s %s", s.State, s.Symbol, s.Timeframe)
	if s.SubState != "" && s.SubState != signal.SubAggressive {
		title += " (" + s.SubState + ")"
	}

	var b strings.Builder
	if s.HasLevels() {
		fmt.Fprintf(&b, "Entry: %.4f\nStop: %.4f\nTarget: %.4f\nR:R 1:%.2f\n", s.Entry, s.Stop, s.Target, s.RiskReward)
	}
	fmt.Fprintf(&b, "RSI: %.2f  ADX: %.2f\n", s.Snapshot.RSI, s.Snapshot.ADX)
	b.WriteString(s.Reason())

	return Alert{
		Level:     level,
		Title:     title,
		Message:   b.String(),
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		TS:        s.DecisionTS,
	}
}

// AlertFromConfluence formats a multi-timeframe verdict.
func AlertFromConfluence(r confluence.Result) Alert {
	level := AlertInfo
	if r.Tradeable() {
		level = AlertWarning
	}
	parts := make([]string, 0, len(r.Signals))
	for _, s := range r.Signals {
		parts = append(parts, s.Timeframe+"="+string(s.State))
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s", r.Symbol, r.Verdict),
		Message: fmt.Sprintf("score %+d\n%s", r.Score, strings.Join(parts, " ")),
		Symbol:  r.Symbol,
		TS:      time.Now().UTC(),
	}
}

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.InfoContext(ctx, "alert", "level", alert.Level, "title", alert.Title, "message", alert.Message)
	return nil
}

// Multi fans one alert out to every backend. A failing backend does not
// stop the others; their errors are joined.
type Multi struct {
	notifiers []Notifier
	metrics   *metrics.Metrics
}

// NewMulti combines notifiers. m may be nil.
func NewMulti(m *metrics.Metrics, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, metrics: m}
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of backends.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, alert); err != nil {
			slog.Warn("alert delivery failed", "notifier", n.Name(), "title", alert.Title, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		if m.metrics != nil {
			m.metrics.AlertsSent.WithLabelValues(n.Name()).Inc()
		}
	}
	return errors.Join(errs...)
}
