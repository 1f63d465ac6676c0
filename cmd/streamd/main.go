// Command streamd relays the scanner's redis pubsub channels to websocket
// clients, so the stream can be served from a different host than radard.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"signalradar/config"
	"signalradar/internal/gateway"
	"signalradar/internal/logger"
	"signalradar/internal/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}
	cfg := config.Load()
	logger.Init("streamd", logger.ParseLevel(cfg.LogLevel))

	if cfg.RedisAddr == "" {
		slog.Error("REDIS_ADDR is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("redis connected", "addr", cfg.RedisAddr)

	reg := prometheus.NewRegistry()
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(0)
	health.StartLivenessChecker(ctx, rdb, nil, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	hub := gateway.NewHub(prom)
	go hub.RelayRedis(ctx, rdb)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stream", hub.ServeWS)
	mux.HandleFunc("/api/v1/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.Latest())
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("stream relay listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	hub.Close()

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	srv.Shutdown(shCtx)
	metricsSrv.Stop(shCtx)
}
