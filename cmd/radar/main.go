// Command radar scans symbols once (or on an interval with -watch) and
// prints the per-timeframe signals and confluence verdicts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signalradar/config"
	"signalradar/internal/breaker"
	"signalradar/internal/confluence"
	"signalradar/internal/logger"
	"signalradar/internal/marketdata/binance"
	"signalradar/internal/marketdata/fetch"
	"signalradar/internal/model"
	"signalradar/internal/notification"
	"signalradar/internal/render"
	"signalradar/internal/scanner"
	sqlitestore "signalradar/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}
	env := config.Load()

	symbols := flag.String("symbols", env.Symbols, "comma-separated symbols")
	timeframes := flag.String("tf", env.Timeframes, "comma-separated timeframes, e.g. 15m,1h,4h")
	limit := flag.Int("limit", env.Limit, "candles fetched per timeframe")
	strategyFile := flag.String("strategy", env.StrategyFile, "TOML strategy profile")
	cachePath := flag.String("cache", "", "SQLite candle cache to write through to")
	offline := flag.Bool("offline", false, "scan candles from -cache instead of the exchange")
	asJSON := flag.Bool("json", false, "print results as JSON")
	reasons := flag.Bool("reasons", true, "show the rationale column")
	noColor := flag.Bool("no-color", false, "disable colored output")
	watch := flag.Duration("watch", 0, "rescan on this interval instead of exiting")
	printStrategy := flag.Bool("print-strategy", false, "print the effective strategy profile and exit")
	flag.Parse()

	logger.Init("radar", logger.ParseLevel(env.LogLevel))

	strategy, err := config.LoadStrategy(*strategyFile)
	if err != nil {
		fatal("strategy profile invalid", err)
	}
	if *printStrategy {
		out, err := config.EncodeStrategy(strategy)
		if err != nil {
			fatal("encode strategy", err)
		}
		os.Stdout.Write(out)
		return
	}

	env.Symbols, env.Timeframes = *symbols, *timeframes
	syms, tfs := env.ParseSymbols(), env.ParseTimeframes()
	if len(syms) == 0 || len(tfs) == 0 {
		fatal("nothing to scan", fmt.Errorf("symbols=%q timeframes=%q", *symbols, *timeframes))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, closeSrc, err := buildSource(env, *cachePath, *offline)
	if err != nil {
		fatal("market data", err)
	}
	defer closeSrc()

	opt := render.Options{Color: !*noColor && isTerminal(), Reasons: *reasons}
	cfg := scanner.Config{Timeframes: tfs, Limit: *limit, Signal: strategy}

	if *watch <= 0 {
		st, err := scanner.New(src, cfg).RunOnce(ctx, syms)
		if err != nil {
			fatal("scan", err)
		}
		printResults(st.Results, *asJSON, opt)
		return
	}

	sc := scanner.New(src, cfg,
		scanner.WithNotifier(notification.NewLogNotifier()),
		scanner.WithOnScan(func(st scanner.ScanState, err error) {
			if err == nil {
				printResults(st.Results, *asJSON, opt)
			}
		}),
	)
	if err := sc.Run(ctx, syms, *watch); err != nil {
		fatal("scan", err)
	}
}

func buildSource(env *config.Config, cachePath string, offline bool) (model.CandleSource, func(), error) {
	if cachePath == "" && offline {
		cachePath = env.SQLitePath
	}
	var cache *sqlitestore.Cache
	if cachePath != "" {
		c, err := sqlitestore.New(sqlitestore.Config{DBPath: cachePath})
		if err != nil {
			return nil, nil, err
		}
		cache = c
	}
	closeFn := func() {
		if cache != nil {
			cache.Close()
		}
	}
	if offline {
		if cache == nil {
			return nil, nil, fmt.Errorf("-offline needs a cache path")
		}
		return cache, closeFn, nil
	}

	opts := []fetch.Option{fetch.WithBreaker(breaker.New("binance", 5, 30*time.Second))}
	if cache != nil {
		opts = append(opts, fetch.WithCache(cache))
	}
	f := fetch.New(
		binance.New(binance.Config{BaseURL: env.BinanceBaseURL}),
		fetch.RetryPolicy{MaxAttempts: env.FetchMaxAttempts, Backoff: env.FetchBackoff, Multiplier: 2},
		opts...,
	)
	return f, closeFn, nil
}

func printResults(results []confluence.Result, asJSON bool, opt render.Options) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(results)
		return
	}
	for _, r := range results {
		render.Confluence(os.Stdout, r, opt)
	}
	if len(results) > 1 {
		render.Summary(os.Stdout, results, opt)
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
