// Package redis fans classified signals out over Redis: the latest value
// per key with a TTL for late readers, and a PUBLISH for live subscribers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"signalradar/internal/breaker"
	"signalradar/internal/confluence"
	"signalradar/internal/logger"
	"signalradar/internal/metrics"
	"signalradar/internal/signal"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// Config configures the Redis publisher.
type Config struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration
}

// Publisher writes signals and confluence results to Redis. Every write
// goes through the breaker; while it is open, results are dropped and
// counted rather than queued, since the next scan supersedes them.
type Publisher struct {
	client  *goredis.Client
	breaker *breaker.Breaker
	metrics *metrics.Metrics
	ttl     time.Duration
}

// New connects, pings and returns a Publisher.
func New(cfg Config, b *breaker.Breaker, m *metrics.Metrics) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return NewWithClient(client, cfg, b, m), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, b *breaker.Breaker, m *metrics.Metrics) *Publisher {
	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	return &Publisher{client: client, breaker: b, metrics: m, ttl: ttl}
}

// Client returns the underlying Redis client for health checks and
// subscribers.
func (p *Publisher) Client() *goredis.Client { return p.client }

// SignalChannel is the pubsub channel for one symbol/timeframe.
func SignalChannel(symbol, timeframe string) string {
	return "pub:signal:" + symbol + ":" + timeframe
}

// ConfluenceChannel is the pubsub channel for a symbol's confluence.
func ConfluenceChannel(symbol string) string {
	return "pub:confluence:" + symbol
}

// LatestSignalKey holds the most recent signal for one symbol/timeframe.
func LatestSignalKey(symbol, timeframe string) string {
	return "signal:latest:" + symbol + ":" + timeframe
}

// LatestConfluenceKey holds the most recent confluence for a symbol.
func LatestConfluenceKey(symbol string) string {
	return "confluence:latest:" + symbol
}

// SubscribePatterns match every channel this package publishes on.
var SubscribePatterns = []string{"pub:signal:*", "pub:confluence:*"}

// PublishSignal stores and publishes sig in one pipeline.
func (p *Publisher) PublishSignal(ctx context.Context, sig signal.Signal) error {
	data := string(sig.JSON())
	return p.write(ctx, LatestSignalKey(sig.Symbol, sig.Timeframe), SignalChannel(sig.Symbol, sig.Timeframe), data)
}

// PublishConfluence stores and publishes r in one pipeline.
func (p *Publisher) PublishConfluence(ctx context.Context, r confluence.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal confluence %s: %w", r.Symbol, err)
	}
	return p.write(ctx, LatestConfluenceKey(r.Symbol), ConfluenceChannel(r.Symbol), string(b))
}

// LatestSignal reads back the stored signal. ok is false when the key is
// missing or expired.
func (p *Publisher) LatestSignal(ctx context.Context, symbol, timeframe string) (sig signal.Signal, ok bool, err error) {
	data, err := p.client.Get(ctx, LatestSignalKey(symbol, timeframe)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return sig, false, nil
	}
	if err != nil {
		return sig, false, fmt.Errorf("redis GET %s: %w", LatestSignalKey(symbol, timeframe), err)
	}
	if err := json.Unmarshal(data, &sig); err != nil {
		return sig, false, fmt.Errorf("decode signal %s:%s: %w", symbol, timeframe, err)
	}
	return sig, true, nil
}

func (p *Publisher) write(ctx context.Context, key, channel, data string) error {
	exec := func(ctx context.Context) error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, key, data, p.ttl)
		pipe.Publish(ctx, channel, data)
		_, err := pipe.Exec(ctx)
		return err
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, exec)
	} else {
		err = exec(ctx)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, breaker.ErrCircuitOpen) && p.metrics != nil {
		p.metrics.PublishDrops.Inc()
	}
	slog.Warn("redis publish failed", append(logger.Attrs(ctx), "channel", channel, "error", err)...)
	return fmt.Errorf("redis publish %s: %w", channel, err)
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
