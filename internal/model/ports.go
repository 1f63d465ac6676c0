package model

import (
	"context"
)

// ── Port Interfaces ──
// Adapters (exchange REST, SQLite, Redis) satisfy these; the scanner only
// sees the interfaces.

// CandleSource supplies an ordered candle series for a symbol and interval.
// Implementations may fail transiently; retries are the caller's policy.
type CandleSource interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) (Series, error)
}

// CandleCache persists fetched candles so scans can be replayed offline.
type CandleCache interface {
	// PutCandles upserts candles for symbol/interval in one batch.
	PutCandles(ctx context.Context, symbol, interval string, candles Series) error

	// Close releases underlying resources.
	Close() error
}

// CandleReader reads cached candles back, oldest first.
type CandleReader interface {
	// ReadCandles returns at most limit of the most recent candles.
	ReadCandles(ctx context.Context, symbol, interval string, limit int) (Series, error)

	// Close releases underlying resources.
	Close() error
}
