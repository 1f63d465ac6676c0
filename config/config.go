// Package config loads service settings from the environment and the
// strategy profile from TOML.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"signalradar/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Universe
	Symbols      string // comma-separated, e.g. "BTCUSDT,ETHUSDT"
	Timeframes   string // comma-separated, e.g. "15m,1h,4h"
	Limit        int    // candles per fetch
	ScanInterval time.Duration
	Concurrency  int
	StrategyFile string

	// Market data
	BinanceBaseURL   string
	FetchMaxAttempts int
	FetchBackoff     time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	MetricsAddr   string
	HTTPAddr      string

	// Alerts
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols:      getEnv("RADAR_SYMBOLS", "BTCUSDT"),
		Timeframes:   getEnv("RADAR_TIMEFRAMES", "15m,1h,4h"),
		Limit:        getInt("RADAR_LIMIT", 300),
		ScanInterval: time.Duration(getInt("RADAR_SCAN_INTERVAL_SEC", 60)) * time.Second,
		Concurrency:  getInt("RADAR_CONCURRENCY", 4),
		StrategyFile: getEnv("RADAR_STRATEGY_FILE", ""),

		BinanceBaseURL:   getEnv("BINANCE_BASE_URL", ""),
		FetchMaxAttempts: getInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBackoff:     time.Duration(getInt("FETCH_BACKOFF_MS", 2000)) * time.Millisecond,

		// empty disables the component
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSymbols splits Symbols, upper-cases and de-duplicates it.
func (c *Config) ParseSymbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(c.Symbols, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ParseTimeframes splits Timeframes, drops invalid entries and orders the
// rest fastest to slowest.
func (c *Config) ParseTimeframes() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(c.Timeframes, ",") {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if _, err := model.ParseTimeframe(p); err != nil {
			slog.Warn("config: skipping invalid timeframe", "value", p, "error", err)
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return model.SortTimeframes(out)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		slog.Warn("config: invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}
