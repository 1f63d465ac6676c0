// Package binance adapts the public Binance USDT-M futures klines endpoint
// to model.CandleSource.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"signalradar/internal/model"
)

// Source fetches closed and forming candles from Binance futures.
type Source struct {
	cfg    Config
	client *futures.Client
}

// New builds a keyless futures client.
func New(cfg Config) *Source {
	cfg = cfg.withDefaults()
	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Source{cfg: cfg, client: client}
}

// FetchCandles returns up to limit candles, oldest first. The last one is
// the still-forming candle. Rows with unparseable numbers are dropped.
func (s *Source) FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("binance: symbol is required")
	}
	interval, err := apiInterval(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 300
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", symbol, interval, err)
	}

	out := make(model.Series, 0, len(klines))
	for _, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			slog.Warn("binance: skipping malformed kline", "symbol", symbol, "interval", interval, "open_time", k.OpenTime, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// apiInterval validates tf and returns the lower-case form the API
// expects. The monthly "1M" differs from "1m" only by case, so it is
// rejected instead of being folded into one minute.
func apiInterval(tf string) (string, error) {
	tf = strings.TrimSpace(tf)
	if strings.HasSuffix(tf, "M") {
		return "", fmt.Errorf("binance: monthly interval %q is not supported", tf)
	}
	tf = strings.ToLower(tf)
	if _, err := model.ParseTimeframe(tf); err != nil {
		return "", fmt.Errorf("binance: %w", err)
	}
	return tf, nil
}

func toCandle(k *futures.Kline) (model.Candle, error) {
	var (
		c   model.Candle
		err error
	)
	c.TS = time.UnixMilli(k.OpenTime).UTC()
	fields := []struct {
		raw string
		dst *float64
	}{
		{k.Open, &c.Open}, {k.High, &c.High}, {k.Low, &c.Low}, {k.Close, &c.Close}, {k.Volume, &c.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return model.Candle{}, err
		}
	}
	return c, nil
}

// NormalizeSymbol turns "btc/usdt", "BTC/USDT:USDT" or "btcusdt" into "BTCUSDT".
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}
