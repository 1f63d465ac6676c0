package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signalradar/internal/breaker"
)

// Metrics holds all Prometheus metrics for the scanner.
type Metrics struct {
	ScansTotal   prometheus.Counter
	ScanDur      prometheus.Histogram
	SymbolErrors prometheus.Counter

	// Classifier
	SignalsTotal *prometheus.CounterVec // labels: timeframe, state
	ClassifyDur  prometheus.Histogram
	Verdicts     *prometheus.CounterVec // labels: verdict

	// Market data fetch
	FetchAttempts *prometheus.CounterVec // labels: timeframe
	FetchFailures *prometheus.CounterVec // labels: timeframe
	FetchDur      prometheus.Histogram
	CacheWrites   prometheus.Counter

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name

	// Delivery
	PublishDrops  prometheus.Counter
	AlertsSent    *prometheus.CounterVec // labels: notifier
	StreamClients prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_scans_total",
			Help: "Completed scan cycles",
		}),
		ScanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_scan_duration_seconds",
			Help:    "Wall time of one scan cycle across all symbols",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SymbolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_symbol_errors_total",
			Help: "Symbols whose scan was abandoned (cancellation or internal error)",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_signals_total",
			Help: "Classified signals by timeframe and terminal state",
		}, []string{"timeframe", "state"}),
		ClassifyDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_classify_duration_seconds",
			Help:    "Indicator + swing + gate latency per series",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_confluence_verdicts_total",
			Help: "Confluence verdicts by label",
		}, []string{"verdict"}),

		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_fetch_attempts_total",
			Help: "Candle fetch attempts including retries",
		}, []string{"timeframe"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_fetch_failures_total",
			Help: "Candle fetches that exhausted the retry policy",
		}, []string{"timeframe"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radar_fetch_duration_seconds",
			Help:    "Latency of a single candle fetch attempt",
			Buckets: prometheus.DefBuckets,
		}),
		CacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_cache_writes_total",
			Help: "Candle batches written to the local cache",
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radar_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),

		PublishDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_publish_drops_total",
			Help: "Signals not published because Redis was unavailable",
		}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radar_alerts_sent_total",
			Help: "Alerts delivered per notifier",
		}, []string{"notifier"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_stream_clients",
			Help: "Connected WebSocket stream clients",
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDur,
		m.SymbolErrors,
		m.SignalsTotal,
		m.ClassifyDur,
		m.Verdicts,
		m.FetchAttempts,
		m.FetchFailures,
		m.FetchDur,
		m.CacheWrites,
		m.BreakerState,
		m.BreakerTrips,
		m.PublishDrops,
		m.AlertsSent,
		m.StreamClients,
	)

	return m
}

// BreakerHook returns a callback for breaker.Breaker.OnStateChange that
// mirrors transitions into the state gauge and trip counter.
func (m *Metrics) BreakerHook() func(name string, from, to breaker.State) {
	return func(name string, _, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.Open {
			m.BreakerTrips.WithLabelValues(name).Inc()
		}
	}
}

// HealthStatus represents the scanner health.
type HealthStatus struct {
	mu sync.RWMutex

	LastScanAt     time.Time `json:"last_scan_at"`
	LastScanErr    string    `json:"last_scan_err"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`
	Timeframes     []string  `json:"timeframes"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// staleAfter marks the scanner degraded when no scan completed in time.
	staleAfter time.Duration
}

// NewHealthStatus returns a health status that reports degraded when no
// scan has completed within staleAfter (zero disables the check).
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:      time.Now(),
		staleAfter:     staleAfter,
		RedisConnected: true,
		SQLiteOK:       true,
	}
}

// SetScanned records a completed scan.
func (h *HealthStatus) SetScanned(at time.Time, err error) {
	h.mu.Lock()
	h.LastScanAt = at
	h.LastScanErr = ""
	if err != nil {
		h.LastScanErr = err.Error()
	}
	h.mu.Unlock()
}

// SetUniverse records what the scanner is watching.
func (h *HealthStatus) SetUniverse(symbols, timeframes []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.Timeframes = timeframes
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the cache database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Status is the /healthz payload.
type Status struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	LastScanAt      string   `json:"last_scan_at"`
	ScanAge         string   `json:"scan_age"`
	LastScanErr     string   `json:"last_scan_err,omitempty"`
	RedisConnected  bool     `json:"redis_connected"`
	RedisLatencyMs  float64  `json:"redis_latency_ms"`
	SQLiteOK        bool     `json:"sqlite_ok"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
	Symbols         []string `json:"symbols"`
	Timeframes      []string `json:"timeframes"`
}

// Snapshot evaluates the overall status.
func (h *HealthStatus) Snapshot() (Status, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK

	stale := h.staleAfter > 0 && time.Since(h.lastScanOrStart()) > h.staleAfter
	if stale || !h.RedisConnected || !h.SQLiteOK {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}
	if stale && !h.RedisConnected {
		overall = "unhealthy"
	}

	scanAge := ""
	lastScan := ""
	if !h.LastScanAt.IsZero() {
		scanAge = time.Since(h.LastScanAt).Round(time.Millisecond).String()
		lastScan = h.LastScanAt.Format(time.RFC3339)
	}

	return Status{
		Status:          overall,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastScanAt:      lastScan,
		ScanAge:         scanAge,
		LastScanErr:     h.LastScanErr,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		Timeframes:      h.Timeframes,
	}, code
}

func (h *HealthStatus) lastScanOrStart() time.Time {
	if h.LastScanAt.IsZero() {
		return h.StartedAt
	}
	return h.LastScanAt
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, code := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server backed by gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
