package scanner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"signalradar/internal/confluence"
	"signalradar/internal/metrics"
	"signalradar/internal/model"
	"signalradar/internal/notification"
	"signalradar/internal/signal"
)

func walk(seed int64, n int) model.Series {
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.Series, n)
	price := 100.0
	for i := range s {
		open := price
		price = math.Max(1, price+0.2+rng.NormFloat64())
		s[i] = model.Candle{
			TS:     base.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, price) + rng.Float64(),
			Low:    math.Max(0.5, math.Min(open, price)-rng.Float64()),
			Close:  price,
			Volume: 500 + rng.Float64()*1500,
		}
	}
	return s
}

type fakeSource struct {
	mu    sync.Mutex
	fail  map[string]bool // timeframe -> error
	calls int
}

var errDown = errors.New("exchange down")

func (f *fakeSource) FetchCandles(ctx context.Context, symbol, tf string, limit int) (model.Series, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail[tf]
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, errDown
	}
	return walk(int64(len(symbol)*31+len(tf)), limit), nil
}

type recordingPublisher struct {
	mu          sync.Mutex
	signals     int
	confluences int
}

func (p *recordingPublisher) PublishSignal(context.Context, signal.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals++
	return nil
}

func (p *recordingPublisher) PublishConfluence(context.Context, confluence.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confluences++
	return nil
}

type failingPublisher struct{}

func (failingPublisher) PublishSignal(context.Context, signal.Signal) error { return errDown }
func (failingPublisher) PublishConfluence(context.Context, confluence.Result) error {
	return errDown
}

type recordingNotifier struct {
	alerts []notification.Alert
}

func (n *recordingNotifier) Name() string { return "recording" }
func (n *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{Timeframes: []string{"4h", "15m", "1h"}}.WithDefaults()
	if c.Timeframes[0] != "15m" || c.Timeframes[2] != "4h" {
		t.Errorf("timeframes not ordered: %v", c.Timeframes)
	}
	if c.Limit != DefaultLimit || c.Concurrency != 4 {
		t.Errorf("limit/concurrency = %d/%d", c.Limit, c.Concurrency)
	}
	if *c.Signal.ADXThreshold != 25 {
		t.Errorf("signal defaults not applied: %+v", c.Signal)
	}
}

func TestScanSymbol_JoinsAllTimeframes(t *testing.T) {
	src := &fakeSource{}
	s := New(src, Config{Timeframes: []string{"4h", "1h", "15m"}})

	r, err := s.ScanSymbol(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Signals) != 3 || src.calls != 3 {
		t.Fatalf("signals = %d, calls = %d, want 3/3", len(r.Signals), src.calls)
	}
	want := []string{"15m", "1h", "4h"}
	for i, sig := range r.Signals {
		if sig.Timeframe != want[i] || sig.Symbol != "BTCUSDT" {
			t.Errorf("signal %d = %s %s", i, sig.Symbol, sig.Timeframe)
		}
		if sig.State == "" {
			t.Errorf("signal %d has no state", i)
		}
	}
}

func TestScanSymbol_FetchFailureIsInsufficientData(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	src := &fakeSource{fail: map[string]bool{"1h": true}}
	s := New(src, Config{Timeframes: []string{"15m", "1h", "4h"}}, WithMetrics(m))

	r, err := s.ScanSymbol(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("a failed timeframe must not fail the symbol: %v", err)
	}
	if len(r.Signals) != 3 {
		t.Fatalf("signals = %d, want 3", len(r.Signals))
	}
	if got := r.Signals[1]; got.Timeframe != "1h" || got.State != signal.StateInsufficientData {
		t.Errorf("1h signal = %s %s, want INSUFFICIENT_DATA", got.Timeframe, got.State)
	}
	if v := testutil.ToFloat64(m.SymbolErrors); v != 1 {
		t.Errorf("symbol errors = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("1h", string(signal.StateInsufficientData))); v != 1 {
		t.Errorf("signals_total{1h,INSUFFICIENT_DATA} = %v, want 1", v)
	}
}

func TestScanAll_KeepsOrderAndBuildsState(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := New(&fakeSource{}, Config{Timeframes: []string{"15m", "1h"}, Concurrency: 2}, WithMetrics(m))
	symbols := []string{"SOLUSDT", "BTCUSDT", "ETHUSDT"}

	results, st, err := s.ScanAll(context.Background(), symbols, ScanState{})
	if err != nil {
		t.Fatal(err)
	}
	for i, sym := range symbols {
		if results[i].Symbol != sym {
			t.Errorf("result %d = %s, want %s", i, results[i].Symbol, sym)
		}
	}
	if st.ID == "" || st.At.IsZero() {
		t.Error("state missing id or timestamp")
	}
	if len(st.Last) != 6 || len(st.Verdicts) != 3 {
		t.Errorf("state has %d signals / %d verdicts, want 6/3", len(st.Last), len(st.Verdicts))
	}
	if st.Results[0].Symbol != "BTCUSDT" {
		t.Errorf("state results not sorted by symbol: %s first", st.Results[0].Symbol)
	}
	if _, ok := st.Signal("ETHUSDT", "1h"); !ok {
		t.Error("ETHUSDT:1h missing from state")
	}
	if v := testutil.ToFloat64(m.ScansTotal); v != 1 {
		t.Errorf("scans total = %v", v)
	}
}

func TestScanAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(&fakeSource{}, Config{})
	prev := ScanState{ID: "prev"}
	_, st, err := s.ScanAll(ctx, []string{"BTCUSDT"}, prev)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st.ID != "prev" {
		t.Error("cancelled scan should return the previous state")
	}
}

func sig(sym, tf string, st signal.State, ts time.Time) signal.Signal {
	return signal.Signal{Symbol: sym, Timeframe: tf, State: st, DecisionTS: ts}
}

func TestScanState_Fresh(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	first := ScanState{}.Next("a", t0, []confluence.Result{
		confluence.Evaluate("BTCUSDT", []signal.Signal{
			sig("BTCUSDT", "15m", signal.StateLong, t0),
			sig("BTCUSDT", "1h", signal.StateNeutral, t0),
			sig("BTCUSDT", "4h", signal.StateWait, t0),
		}),
	})
	if got := first.Fresh(ScanState{}); len(got) != 2 {
		t.Fatalf("first scan fresh = %d, want 2 (LONG and WAIT)", len(got))
	}

	// same decision candle, same states: nothing new
	again := first.Next("b", t0, first.Results)
	if got := again.Fresh(first); len(got) != 0 {
		t.Errorf("repeat fresh = %v, want none", got)
	}

	// 15m moved to a new candle, 4h WAIT became SHORT on the same candle
	moved := first.Next("c", t1, []confluence.Result{
		confluence.Evaluate("BTCUSDT", []signal.Signal{
			sig("BTCUSDT", "15m", signal.StateLong, t1),
			sig("BTCUSDT", "1h", signal.StateNeutral, t1),
			sig("BTCUSDT", "4h", signal.StateShort, t0),
		}),
	})
	got := moved.Fresh(first)
	if len(got) != 2 || got[0].Timeframe != "15m" || got[1].Timeframe != "4h" {
		t.Errorf("fresh after move = %v", got)
	}
	if first.Last["BTCUSDT:4h"].State != signal.StateWait {
		t.Error("Next mutated the previous state")
	}
}

func TestScanState_VerdictChanges(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	up := confluence.Evaluate("BTCUSDT", []signal.Signal{
		sig("BTCUSDT", "15m", signal.StateLong, t0), sig("BTCUSDT", "1h", signal.StateLong, t0),
	})
	flat := confluence.Evaluate("ETHUSDT", []signal.Signal{sig("ETHUSDT", "15m", signal.StateNeutral, t0)})

	a := ScanState{}.Next("a", t0, []confluence.Result{up, flat})
	if got := a.VerdictChanges(ScanState{}); len(got) != 1 || got[0].Symbol != "BTCUSDT" {
		t.Errorf("changes = %+v, want BTCUSDT only", got)
	}
	b := a.Next("b", t0, []confluence.Result{up, flat})
	if got := b.VerdictChanges(a); len(got) != 0 {
		t.Errorf("unchanged verdicts reported: %+v", got)
	}
}

func TestDeliver_PublishesAllNotifiesFresh(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	note := &recordingNotifier{}
	s := New(&fakeSource{}, Config{}, WithPublisher(pub), WithNotifier(note))

	next := ScanState{}.Next("a", t0, []confluence.Result{
		confluence.Evaluate("BTCUSDT", []signal.Signal{
			sig("BTCUSDT", "15m", signal.StateLong, t0),
			sig("BTCUSDT", "1h", signal.StateSideways, t0),
		}),
	})
	s.Deliver(context.Background(), ScanState{}, next)

	if pub.signals != 2 || pub.confluences != 1 {
		t.Errorf("published %d signals / %d confluences, want 2/1", pub.signals, pub.confluences)
	}
	if len(note.alerts) != 1 || note.alerts[0].Symbol != "BTCUSDT" {
		t.Errorf("alerts = %+v, want one for the LONG", note.alerts)
	}

	note.alerts = nil
	s.Deliver(context.Background(), next, next.Next("b", t0, next.Results))
	if len(note.alerts) != 0 {
		t.Errorf("repeat delivery alerted %d times", len(note.alerts))
	}
}

func TestDeliver_LogsPublishFailures(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	note := &recordingNotifier{}
	s := New(&fakeSource{}, Config{}, WithPublisher(failingPublisher{}), WithPublisher(pub), WithNotifier(note))

	next := ScanState{}.Next("a", t0, []confluence.Result{
		confluence.Evaluate("ETHUSDT", []signal.Signal{sig("ETHUSDT", "15m", signal.StateShort, t0)}),
	})
	s.Deliver(context.Background(), ScanState{}, next)

	out := buf.String()
	for _, want := range []string{"publish signal failed", "publish confluence failed", `"symbol":"ETHUSDT"`, "exchange down"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if pub.signals != 1 || pub.confluences != 1 {
		t.Errorf("a failing publisher must not block the next: %d/%d", pub.signals, pub.confluences)
	}
	// the fresh SHORT plus the new STRONG_DOWNTREND verdict
	if len(note.alerts) != 2 {
		t.Errorf("alerts = %d, want 2", len(note.alerts))
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scans := 0
	s := New(&fakeSource{}, Config{Timeframes: []string{"1h"}}, WithOnScan(func(st ScanState, err error) {
		scans++
		if err != nil {
			t.Errorf("scan error: %v", err)
		}
		cancel()
	}))

	if err := s.Run(ctx, []string{"BTCUSDT"}, time.Hour); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if scans != 1 {
		t.Errorf("scans = %d, want 1", scans)
	}
	if s.State().ID == "" {
		t.Error("state not stored after run")
	}
	if err := s.Run(context.Background(), nil, time.Second); err == nil {
		t.Error("Run with no symbols should fail")
	}
}
