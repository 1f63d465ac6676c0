package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signalradar/internal/signal"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"RADAR_SYMBOLS", "RADAR_TIMEFRAMES", "RADAR_LIMIT", "RADAR_SCAN_INTERVAL_SEC", "REDIS_ADDR", "FETCH_BACKOFF_MS"} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.Symbols != "BTCUSDT" || c.Limit != 300 || c.ScanInterval != time.Minute {
		t.Errorf("defaults = %+v", c)
	}
	if c.RedisAddr != "" {
		t.Errorf("redis should be disabled by default, got %q", c.RedisAddr)
	}
	if c.FetchBackoff != 2*time.Second || c.FetchMaxAttempts != 3 {
		t.Errorf("fetch policy = %v x%d", c.FetchBackoff, c.FetchMaxAttempts)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("RADAR_SYMBOLS", "ethusdt, btcusdt,ETHUSDT")
	t.Setenv("RADAR_TIMEFRAMES", "4h,15m,bogus,1h")
	t.Setenv("RADAR_LIMIT", "500")
	t.Setenv("RADAR_SCAN_INTERVAL_SEC", "not-a-number")

	c := Load()
	if got := c.ParseSymbols(); strings.Join(got, ",") != "ETHUSDT,BTCUSDT" {
		t.Errorf("symbols = %v", got)
	}
	if got := c.ParseTimeframes(); strings.Join(got, ",") != "15m,1h,4h" {
		t.Errorf("timeframes = %v", got)
	}
	if c.Limit != 500 {
		t.Errorf("limit = %d", c.Limit)
	}
	if c.ScanInterval != time.Minute {
		t.Errorf("invalid interval should fall back to 60s, got %v", c.ScanInterval)
	}
}

func TestParseStrategy_PartialProfile(t *testing.T) {
	cfg, err := ParseStrategy([]byte(`
adx_threshold = 20.0
risk_reward = 2.5
stop_mode = "structure"

[periods]
ema_slow = 100
`))
	if err != nil {
		t.Fatal(err)
	}
	if *cfg.ADXThreshold != 20 || cfg.RiskReward != 2.5 || cfg.StopMode != signal.StopStructure {
		t.Errorf("explicit values lost: %+v", cfg)
	}
	if cfg.Periods.EMASlow != 100 || cfg.Periods.EMAFast != 50 || *cfg.VolumeMultiple != 1.2 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestParseStrategy_ExplicitZeroGate(t *testing.T) {
	cfg, err := ParseStrategy([]byte("adx_threshold = 0.0\nvolume_multiple = 0.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if *cfg.ADXThreshold != 0 || *cfg.VolumeMultiple != 0 {
		t.Errorf("zero gates reset to defaults: adx %v vol %v", *cfg.ADXThreshold, *cfg.VolumeMultiple)
	}
	if *cfg.RSIOverbought != 70 {
		t.Errorf("omitted key = %v, want default 70", *cfg.RSIOverbought)
	}
}

func TestParseStrategy_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "adx_treshold = 20.0\n",
		"invalid value": "stop_mode = \"trailing\"\n",
		"bad toml":      "adx_threshold = \n",
	}
	for name, doc := range cases {
		if _, err := ParseStrategy([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadStrategy_Files(t *testing.T) {
	cfg, err := LoadStrategy("")
	if err != nil || *cfg.ADXThreshold != 25 {
		t.Fatalf("empty path: %+v, %v", cfg, err)
	}

	missing := filepath.Join(t.TempDir(), "nope.toml")
	if cfg, err := LoadStrategy(missing); err != nil || cfg.RiskReward != 2 {
		t.Fatalf("missing file: %+v, %v", cfg, err)
	}

	example, err := LoadStrategy("strategy.example.toml")
	if err != nil {
		t.Fatalf("example profile: %v", err)
	}
	def := signal.DefaultConfig()
	if *example.ADXThreshold != *def.ADXThreshold || example.Periods != def.Periods || len(example.TargetTiers) != 3 {
		t.Errorf("example profile differs from defaults: %+v", example)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("rsi_oversold = 90.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStrategy(bad); err == nil || !strings.Contains(err.Error(), "bad.toml") {
		t.Errorf("invalid profile error = %v", err)
	}
}

func TestEncodeStrategy_RoundTrip(t *testing.T) {
	data, err := EncodeStrategy(signal.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseStrategy(data)
	if err != nil {
		t.Fatalf("re-parse: %v\n%s", err, data)
	}
	if back.RiskReward != 2 || back.StopMode != signal.StopATR {
		t.Errorf("round trip = %+v", back)
	}
}
