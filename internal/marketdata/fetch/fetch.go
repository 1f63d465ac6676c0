// Package fetch wraps a model.CandleSource with a bounded retry policy,
// a circuit breaker and an optional write-through cache. Callers see
// either a series or ErrNoData; they never retry themselves.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalradar/internal/breaker"
	"signalradar/internal/logger"
	"signalradar/internal/metrics"
	"signalradar/internal/model"
)

// ErrNoData is returned once every attempt failed or the breaker is open.
var ErrNoData = errors.New("no data")

// RetryPolicy bounds the attempts and backoff for one fetch.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is three attempts, 2s then 4s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second, Multiplier: 2, MaxBackoff: 30 * time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	return p
}

// Delay returns the wait before attempt n (1-based retries: n=1 is the
// wait after the first failure).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.Backoff)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
	}
	if time.Duration(d) > p.MaxBackoff {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Fetcher is a model.CandleSource with retry, breaker and cache.
type Fetcher struct {
	src     model.CandleSource
	policy  RetryPolicy
	breaker *breaker.Breaker
	cache   model.CandleCache
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBreaker guards every attempt with b.
func WithBreaker(b *breaker.Breaker) Option { return func(f *Fetcher) { f.breaker = b } }

// WithCache writes every successful fetch through to c.
func WithCache(c model.CandleCache) Option { return func(f *Fetcher) { f.cache = c } }

// WithMetrics records attempts, failures and latency.
func WithMetrics(m *metrics.Metrics) Option { return func(f *Fetcher) { f.metrics = m } }

// New wraps src.
func New(src model.CandleSource, policy RetryPolicy, opts ...Option) *Fetcher {
	f := &Fetcher{src: src, policy: policy.withDefaults(), sleep: sleepCtx}
	for _, o := range opts {
		o(f)
	}
	return f
}

// FetchCandles tries the source up to MaxAttempts times. It returns
// ctx.Err() on cancellation and an error wrapping ErrNoData otherwise.
func (f *Fetcher) FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	var lastErr error
	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.policy.Delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		series, err := f.attempt(ctx, symbol, interval, limit)
		if err == nil {
			f.writeThrough(ctx, symbol, interval, series)
			return series, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		slog.Warn("fetch attempt failed",
			append(logger.Attrs(ctx), "symbol", symbol, "interval", interval,
				"attempt", attempt, "max", f.policy.MaxAttempts, "error", err)...)
		if errors.Is(err, breaker.ErrCircuitOpen) {
			break
		}
	}

	if f.metrics != nil {
		f.metrics.FetchFailures.WithLabelValues(interval).Inc()
	}
	return nil, fmt.Errorf("fetch %s %s: %w: %v", symbol, interval, ErrNoData, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	if f.metrics != nil {
		f.metrics.FetchAttempts.WithLabelValues(interval).Inc()
		start := time.Now()
		defer func() { f.metrics.FetchDur.Observe(time.Since(start).Seconds()) }()
	}

	var series model.Series
	call := func(ctx context.Context) error {
		s, err := f.src.FetchCandles(ctx, symbol, interval, limit)
		series = s
		return err
	}
	if f.breaker == nil {
		return series, call(ctx)
	}
	err := f.breaker.Execute(ctx, call)
	return series, err
}

func (f *Fetcher) writeThrough(ctx context.Context, symbol, interval string, series model.Series) {
	if f.cache == nil || len(series) == 0 {
		return
	}
	if err := f.cache.PutCandles(ctx, symbol, interval, series); err != nil {
		slog.Warn("candle cache write failed", append(logger.Attrs(ctx), "symbol", symbol, "interval", interval, "error", err)...)
		return
	}
	if f.metrics != nil {
		f.metrics.CacheWrites.Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
