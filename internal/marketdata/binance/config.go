package binance

import "time"

// Config configures the public USDT-M futures klines adapter. No API key
// is needed for market data.
type Config struct {
	// BaseURL overrides the futures REST endpoint (tests, testnet).
	BaseURL     string
	HTTPTimeout time.Duration
	// MaxLimit caps a single klines request.
	MaxLimit int
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxLimit <= 0 || c.MaxLimit > 1500 {
		c.MaxLimit = 1500
	}
	return c
}
