package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"signalradar/internal/breaker"
	"signalradar/internal/metrics"
	"signalradar/internal/model"
)

var errUpstream = errors.New("upstream 502")

type fakeSource struct {
	mu     sync.Mutex
	calls  int
	failN  int
	series model.Series
}

func (f *fakeSource) FetchCandles(_ context.Context, _, _ string, _ int) (model.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return nil, errUpstream
	}
	return f.series, nil
}

type fakeCache struct {
	puts int
	err  error
}

func (c *fakeCache) PutCandles(context.Context, string, string, model.Series) error {
	c.puts++
	return c.err
}
func (c *fakeCache) Close() error { return nil }

func series(n int) model.Series {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(model.Series, n)
	for i := range s {
		s[i] = model.Candle{TS: base.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	}
	return s
}

// noSleep records requested delays without waiting.
func noSleep(f *Fetcher) *[]time.Duration {
	var waits []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
	p.MaxBackoff = 5 * time.Second
	if got := p.Delay(3); got != 5*time.Second {
		t.Errorf("capped delay = %v, want 5s", got)
	}
}

func TestFetcher_RecoversAfterTransientFailures(t *testing.T) {
	src := &fakeSource{failN: 2, series: series(5)}
	cache := &fakeCache{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	f := New(src, DefaultRetryPolicy(), WithCache(cache), WithMetrics(m))
	waits := noSleep(f)

	got, err := f.FetchCandles(context.Background(), "BTCUSDT", "1h", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 || src.calls != 3 {
		t.Fatalf("got %d candles after %d calls, want 5 after 3", len(got), src.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != 2*time.Second || (*waits)[1] != 4*time.Second {
		t.Errorf("waits = %v, want [2s 4s]", *waits)
	}
	if cache.puts != 1 {
		t.Errorf("cache puts = %d, want 1", cache.puts)
	}
	if v := testutil.ToFloat64(m.FetchAttempts.WithLabelValues("1h")); v != 3 {
		t.Errorf("attempts metric = %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.FetchFailures.WithLabelValues("1h")); v != 0 {
		t.Errorf("failures metric = %v, want 0", v)
	}
	if v := testutil.ToFloat64(m.CacheWrites); v != 1 {
		t.Errorf("cache writes metric = %v, want 1", v)
	}
}

func TestFetcher_ExhaustedReturnsNoData(t *testing.T) {
	src := &fakeSource{failN: 10}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	f := New(src, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Multiplier: 2}, WithMetrics(m))
	noSleep(f)

	_, err := f.FetchCandles(context.Background(), "BTCUSDT", "4h", 100)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if src.calls != 3 {
		t.Errorf("calls = %d, want 3", src.calls)
	}
	if v := testutil.ToFloat64(m.FetchFailures.WithLabelValues("4h")); v != 1 {
		t.Errorf("failures metric = %v, want 1", v)
	}
}

func TestFetcher_OpenBreakerStopsRetrying(t *testing.T) {
	src := &fakeSource{failN: 100}
	b := breaker.New("binance", 2, time.Hour)
	f := New(src, RetryPolicy{MaxAttempts: 5}, WithBreaker(b))
	noSleep(f)

	_, err := f.FetchCandles(context.Background(), "ETHUSDT", "15m", 10)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	// two real failures trip the breaker, the third attempt is rejected
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2", src.calls)
	}
	if b.State() != breaker.Open {
		t.Errorf("breaker state = %v, want open", b.State())
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	src := &fakeSource{failN: 100}
	f := New(src, DefaultRetryPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := f.FetchCandles(ctx, "BTCUSDT", "1h", 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1", src.calls)
	}
}

func TestFetcher_CacheFailureDoesNotFailFetch(t *testing.T) {
	src := &fakeSource{series: series(3)}
	cache := &fakeCache{err: errors.New("disk full")}
	f := New(src, DefaultRetryPolicy(), WithCache(cache))

	got, err := f.FetchCandles(context.Background(), "BTCUSDT", "1d", 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("got %d candles, err %v", len(got), err)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx on cancelled ctx = %v", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepCtx = %v", err)
	}
}
