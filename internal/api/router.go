// Package api serves scan results over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signalradar/internal/confluence"
	"signalradar/internal/gateway"
	"signalradar/internal/marketdata/binance"
	"signalradar/internal/metrics"
	"signalradar/internal/scanner"
	"signalradar/internal/signal"
)

// Scanner is the part of scanner.Scanner the API needs.
type Scanner interface {
	ScanSymbol(ctx context.Context, symbol string) (confluence.Result, error)
	State() scanner.ScanState
}

// Config wires the server. Hub and Health are optional.
type Config struct {
	Addr        string
	Scanner     Scanner
	Hub         *gateway.Hub
	Health      *metrics.HealthStatus
	ScanTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	router *gin.Engine
	srv    *http.Server
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Scanner == nil {
		return nil, errors.New("api: scanner is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 30 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, router: router}
	s.registerRoutes()
	s.srv = &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

func (s *Server) registerRoutes() {
	v1 := s.router.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/scan/:symbol", s.handleScan)
	v1.GET("/signals", s.handleSignals)
	v1.GET("/signals/:symbol", s.handleSymbol)
	if s.cfg.Hub != nil {
		v1.GET("/stream", func(c *gin.Context) { s.cfg.Hub.ServeWS(c.Writer, c.Request) })
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.cfg.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	status, code := s.cfg.Health.Snapshot()
	c.JSON(code, status)
}

// handleScan runs an on-demand scan of one symbol across the configured
// timeframes. It does not touch the scan loop's state.
func (s *Server) handleScan(c *gin.Context) {
	symbol := binance.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.ScanTimeout)
	defer cancel()

	r, err := s.cfg.Scanner.ScanSymbol(ctx, symbol)
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

// handleSignals returns the last scan. Optional filters:
// ?state=LONG,SHORT keeps only matching signals; ?tradeable=true keeps
// only symbols with a tradeable verdict.
func (s *Server) handleSignals(c *gin.Context) {
	st := s.cfg.Scanner.State()
	states := map[signal.State]bool{}
	for _, v := range strings.Split(c.Query("state"), ",") {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			states[signal.State(v)] = true
		}
	}
	tradeable := c.Query("tradeable") == "true"

	results := make([]confluence.Result, 0, len(st.Results))
	for _, r := range st.Results {
		if tradeable && !r.Tradeable() {
			continue
		}
		if len(states) > 0 {
			kept := r.Signals[:0:0]
			for _, sig := range r.Signals {
				if states[sig.State] {
					kept = append(kept, sig)
				}
			}
			if len(kept) == 0 {
				continue
			}
			r.Signals = kept
		}
		results = append(results, r)
	}

	c.JSON(http.StatusOK, gin.H{"id": st.ID, "at": st.At, "results": results})
}

func (s *Server) handleSymbol(c *gin.Context) {
	symbol := binance.NormalizeSymbol(c.Param("symbol"))
	r, ok := s.cfg.Scanner.State().Result(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no scan result for " + symbol})
		return
	}
	c.JSON(http.StatusOK, r)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}
