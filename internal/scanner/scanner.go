// Package scanner runs the classifier over a universe of symbols and
// timeframes, reduces each symbol to a confluence verdict and hands the
// results to publishers and notifiers.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"signalradar/internal/confluence"
	"signalradar/internal/logger"
	"signalradar/internal/metrics"
	"signalradar/internal/model"
	"signalradar/internal/notification"
	"signalradar/internal/signal"
)

// DefaultLimit is the number of candles fetched per pair.
const DefaultLimit = 300

// Publisher receives every signal and confluence result after a scan.
type Publisher interface {
	PublishSignal(ctx context.Context, sig signal.Signal) error
	PublishConfluence(ctx context.Context, r confluence.Result) error
}

// Config controls what is scanned and how.
type Config struct {
	Timeframes  []string
	Limit       int // candles per fetch
	Concurrency int // symbols scanned in parallel
	Signal      signal.Config
}

// WithDefaults fills unset fields. Timeframes are ordered fastest first.
func (c Config) WithDefaults() Config {
	c.Signal = c.Signal.WithDefaults()
	if len(c.Timeframes) == 0 {
		c.Timeframes = []string{"15m", "1h", "4h"}
	}
	c.Timeframes = model.SortTimeframes(c.Timeframes)
	if c.Limit <= 0 {
		c.Limit = max(DefaultLimit, c.Signal.Periods.MinCandles())
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Scanner is safe for concurrent use. Run owns the scan loop; ScanSymbol
// may be called from HTTP handlers at the same time.
type Scanner struct {
	src        model.CandleSource
	cfg        Config
	publishers []Publisher
	notifier   notification.Notifier
	metrics    *metrics.Metrics
	onScan     func(ScanState, error)
	now        func() time.Time

	mu    sync.RWMutex
	state ScanState
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPublisher adds a publisher; several may be registered.
func WithPublisher(p Publisher) Option {
	return func(s *Scanner) { s.publishers = append(s.publishers, p) }
}

// WithNotifier sets the alert sink for fresh signals.
func WithNotifier(n notification.Notifier) Option { return func(s *Scanner) { s.notifier = n } }

// WithMetrics records scan counters and latencies.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scanner) { s.metrics = m } }

// WithOnScan registers a callback invoked after every Run iteration.
func WithOnScan(fn func(ScanState, error)) Option { return func(s *Scanner) { s.onScan = fn } }

// New builds a Scanner over src.
func New(src model.CandleSource, cfg Config, opts ...Option) *Scanner {
	cfg = cfg.WithDefaults()
	if need := cfg.Signal.Periods.MinCandles(); cfg.Limit < need {
		slog.Warn("fetch limit below warm-up, every pair will be INSUFFICIENT_DATA",
			"limit", cfg.Limit, "need", need)
	}
	s := &Scanner{src: src, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Scanner) Config() Config { return s.cfg }

// State returns the most recent completed scan.
func (s *Scanner) State() ScanState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ScanSymbol classifies every configured timeframe of symbol in parallel
// and waits for all of them before scoring confluence. A timeframe whose
// candles cannot be fetched becomes INSUFFICIENT_DATA; only cancellation
// of ctx is returned as an error.
func (s *Scanner) ScanSymbol(ctx context.Context, symbol string) (confluence.Result, error) {
	tfs := s.cfg.Timeframes
	sigs := make([]signal.Signal, len(tfs))
	failed := make([]bool, len(tfs))

	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range tfs {
		i, tf := i, tf
		g.Go(func() error {
			sigs[i], failed[i] = s.classify(gctx, symbol, tf)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return confluence.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return confluence.Result{}, err
	}

	for _, f := range failed {
		if f && s.metrics != nil {
			s.metrics.SymbolErrors.Inc()
			break
		}
	}

	r := confluence.Evaluate(symbol, sigs)
	if s.metrics != nil {
		s.metrics.Verdicts.WithLabelValues(string(r.Verdict)).Inc()
	}
	return r, nil
}

func (s *Scanner) classify(ctx context.Context, symbol, tf string) (signal.Signal, bool) {
	series, err := s.src.FetchCandles(ctx, symbol, tf, s.cfg.Limit)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("pair unavailable", append(logger.Attrs(ctx), "symbol", symbol, "timeframe", tf, "error", err)...)
		}
		sig := signal.Unavailable(symbol, tf, fmt.Sprintf("fetch failed: %v", err), s.cfg.Signal)
		s.count(sig)
		return sig, true
	}

	start := time.Now()
	sig := signal.Classify(symbol, tf, series, s.cfg.Signal)
	if s.metrics != nil {
		s.metrics.ClassifyDur.Observe(time.Since(start).Seconds())
	}
	s.count(sig)
	slog.Debug("classified", append(logger.Attrs(ctx),
		"symbol", symbol, "timeframe", tf, "state", sig.State, "reason", sig.Reason())...)
	return sig, false
}

func (s *Scanner) count(sig signal.Signal) {
	if s.metrics != nil {
		s.metrics.SignalsTotal.WithLabelValues(sig.Timeframe, string(sig.State)).Inc()
	}
}

// ScanAll scans symbols with bounded concurrency and returns the results
// in input order together with the successor of prev.
func (s *Scanner) ScanAll(ctx context.Context, symbols []string, prev ScanState) ([]confluence.Result, ScanState, error) {
	id := logger.NewScanID()
	ctx = logger.WithScanID(ctx, id)
	start := s.now()

	results := make([]confluence.Result, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			r, err := s.ScanSymbol(gctx, sym)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, prev, err
	}

	if s.metrics != nil {
		s.metrics.ScansTotal.Inc()
		s.metrics.ScanDur.Observe(s.now().Sub(start).Seconds())
	}
	slog.Info("scan complete", append(logger.Attrs(ctx), "symbols", len(symbols),
		"timeframes", len(s.cfg.Timeframes), "elapsed", s.now().Sub(start))...)
	return results, prev.Next(id, start.UTC(), results), nil
}

// Deliver publishes every result of next and alerts on what is new
// relative to prev. Delivery failures are logged, never returned.
func (s *Scanner) Deliver(ctx context.Context, prev, next ScanState) {
	for _, p := range s.publishers {
		for _, r := range next.Results {
			for _, sig := range r.Signals {
				if err := p.PublishSignal(ctx, sig); err != nil {
					slog.Warn("publish signal failed", append(logger.Attrs(ctx), "symbol", sig.Symbol, "timeframe", sig.Timeframe, "error", err)...)
				}
			}
			if err := p.PublishConfluence(ctx, r); err != nil {
				slog.Warn("publish confluence failed", append(logger.Attrs(ctx), "symbol", r.Symbol, "error", err)...)
			}
		}
	}

	if s.notifier == nil {
		return
	}
	for _, sig := range next.Fresh(prev) {
		if err := s.notifier.Send(ctx, notification.AlertFromSignal(sig)); err != nil {
			slog.Warn("signal alert failed", append(logger.Attrs(ctx), "symbol", sig.Symbol, "timeframe", sig.Timeframe, "error", err)...)
		}
	}
	for _, r := range next.VerdictChanges(prev) {
		if err := s.notifier.Send(ctx, notification.AlertFromConfluence(r)); err != nil {
			slog.Warn("confluence alert failed", append(logger.Attrs(ctx), "symbol", r.Symbol, "error", err)...)
		}
	}
}

// RunOnce performs one scan, stores and delivers it.
func (s *Scanner) RunOnce(ctx context.Context, symbols []string) (ScanState, error) {
	prev := s.State()
	_, next, err := s.ScanAll(ctx, symbols, prev)
	if err != nil {
		return prev, err
	}

	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	s.Deliver(logger.WithScanID(ctx, next.ID), prev, next)
	return next, nil
}

// Run scans immediately and then every interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, symbols []string, interval time.Duration) error {
	if len(symbols) == 0 {
		return fmt.Errorf("scanner: no symbols")
	}
	slog.Info("scanner started", "symbols", symbols, "timeframes", s.cfg.Timeframes, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := s.RunOnce(ctx, symbols)
		if ctx.Err() != nil {
			slog.Info("scanner stopped")
			return nil
		}
		if err != nil {
			slog.Error("scan failed", "error", err)
		}
		if s.onScan != nil {
			s.onScan(st, err)
		}

		select {
		case <-ctx.Done():
			slog.Info("scanner stopped")
			return nil
		case <-ticker.C:
		}
	}
}
