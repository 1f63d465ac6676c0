// Package sqlite persists fetched candles so scans can be replayed
// offline and a restarted service has history before the first fetch.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"signalradar/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the candle cache.
type Config struct {
	DBPath string // e.g. "data/candles.db"
}

// Cache is a SQLite candle store keyed by (symbol, interval, ts). It
// satisfies model.CandleCache and model.CandleReader.
type Cache struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (c *Cache) DB() *sql.DB { return c.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Cache, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite cache opened", "path", cfg.DBPath)
	return &Cache{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT    NOT NULL,
			tf       TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL    NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);
	`)
	return err
}

// PutCandles upserts the series in one transaction. Re-fetched candles
// replace earlier rows, so a candle that was live on the previous scan is
// overwritten with its closed values.
func (c *Cache) PutCandles(ctx context.Context, symbol, interval string, s model.Series) error {
	if len(s) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, k := range s {
		if _, err := stmt.ExecContext(ctx, symbol, interval, k.TS.UnixMilli(),
			k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
			return fmt.Errorf("sqlite insert %s %s: %w", symbol, interval, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	slog.Debug("sqlite committed candles", "symbol", symbol, "interval", interval, "count", len(s))
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
