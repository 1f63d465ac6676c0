package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"signalradar/config"
	"signalradar/internal/api"
	"signalradar/internal/breaker"
	"signalradar/internal/gateway"
	"signalradar/internal/logger"
	"signalradar/internal/marketdata/binance"
	"signalradar/internal/marketdata/fetch"
	"signalradar/internal/metrics"
	"signalradar/internal/notification"
	"signalradar/internal/scanner"
	redisstore "signalradar/internal/store/redis"
	sqlitestore "signalradar/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg := config.Load()
	logger.Init("radard", logger.ParseLevel(cfg.LogLevel))

	symbols := cfg.ParseSymbols()
	timeframes := cfg.ParseTimeframes()
	strategy, err := config.LoadStrategy(cfg.StrategyFile)
	if err != nil {
		slog.Error("strategy profile invalid", "error", err)
		os.Exit(1)
	}
	slog.Info("starting", "symbols", symbols, "timeframes", timeframes, "interval", cfg.ScanInterval)

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		slog.Info("shutdown requested", "signal", s.String())
		cancel()
	}()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus(3 * cfg.ScanInterval)
	health.SetUniverse(symbols, timeframes)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	// ---- SQLite candle cache ----
	var cache *sqlitestore.Cache
	if cfg.SQLitePath != "" {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		cache, err = sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			slog.Warn("sqlite cache unavailable, continuing without it", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// ---- Market data: binance -> retry/breaker -> cache ----
	fetchBreaker := breaker.New("binance", 5, 30*time.Second)
	fetchBreaker.OnStateChange = prom.BreakerHook()
	fetchOpts := []fetch.Option{fetch.WithBreaker(fetchBreaker), fetch.WithMetrics(prom)}
	if cache != nil {
		fetchOpts = append(fetchOpts, fetch.WithCache(cache))
	}
	source := fetch.New(
		binance.New(binance.Config{BaseURL: cfg.BinanceBaseURL}),
		fetch.RetryPolicy{MaxAttempts: cfg.FetchMaxAttempts, Backoff: cfg.FetchBackoff, Multiplier: 2},
		fetchOpts...,
	)

	// ---- Delivery ----
	hub := gateway.NewHub(prom)
	defer hub.Close()
	scanOpts := []scanner.Option{scanner.WithMetrics(prom), scanner.WithPublisher(hub)}

	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		redisBreaker := breaker.New("redis", 3, 15*time.Second)
		redisBreaker.OnStateChange = prom.BreakerHook()
		publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, redisBreaker, prom)
		if err != nil {
			slog.Warn("redis unavailable, continuing without it", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
			scanOpts = append(scanOpts, scanner.WithPublisher(publisher))
		}
	}

	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	scanOpts = append(scanOpts,
		scanner.WithNotifier(notification.NewMulti(prom, notifiers...)),
		scanner.WithOnScan(func(st scanner.ScanState, err error) { health.SetScanned(time.Now(), err) }),
	)

	// ---- Liveness checks ----
	health.StartLivenessChecker(ctx, redisClient(publisher), cacheDB(cache), 10*time.Second)

	// ---- Scanner + API ----
	sc := scanner.New(source, scanner.Config{
		Timeframes:  timeframes,
		Limit:       cfg.Limit,
		Concurrency: cfg.Concurrency,
		Signal:      strategy,
	}, scanOpts...)

	apiSrv, err := api.NewServer(api.Config{Addr: cfg.HTTPAddr, Scanner: sc, Hub: hub, Health: health})
	if err != nil {
		slog.Error("api init failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Run(gctx, symbols, cfg.ScanInterval) })
	g.Go(func() error { return apiSrv.Run(gctx) })
	if err := g.Wait(); err != nil {
		slog.Error("fatal", "error", err)
	}

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	metricsSrv.Stop(shCtx)
	slog.Info("stopped")
}
