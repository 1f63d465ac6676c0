package sqlite

import (
	"context"
	"fmt"
	"time"

	"signalradar/internal/model"
)

var (
	_ model.CandleCache  = (*Cache)(nil)
	_ model.CandleReader = (*Cache)(nil)
	_ model.CandleSource = (*Cache)(nil)
)

// ReadCandles returns the most recent limit candles for symbol and
// interval, oldest first. limit <= 0 returns everything stored.
func (c *Cache) ReadCandles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var s model.Series
	for rows.Next() {
		var k model.Candle
		var tsMilli int64
		if err := rows.Scan(&tsMilli, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		k.TS = time.UnixMilli(tsMilli).UTC()
		s = append(s, k)
	}
	return s, rows.Err()
}

// FetchCandles serves reads through the model.CandleSource port so an
// offline scan can run against the cache.
func (c *Cache) FetchCandles(ctx context.Context, symbol, interval string, limit int) (model.Series, error) {
	return c.ReadCandles(ctx, symbol, interval, limit)
}

// Intervals lists the intervals stored for symbol.
func (c *Cache) Intervals(ctx context.Context, symbol string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT tf FROM candles WHERE symbol = ?
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query intervals: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var iv string
		if err := rows.Scan(&iv); err != nil {
			return nil, fmt.Errorf("sqlite scan interval: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model.SortTimeframes(out), nil
}
