package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"signalradar/internal/signal"
)

// LoadStrategy reads a TOML strategy profile. An empty path or a missing
// file yields the default parameters; unknown keys are rejected so a typo
// cannot silently fall back to a default.
func LoadStrategy(path string) (signal.Config, error) {
	if path == "" {
		return signal.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("strategy file not found, using defaults", "path", path)
		return signal.DefaultConfig(), nil
	}
	if err != nil {
		return signal.Config{}, fmt.Errorf("config: read strategy: %w", err)
	}
	cfg, err := ParseStrategy(data)
	if err != nil {
		return signal.Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseStrategy decodes a profile, applies defaults to omitted fields and
// validates the result.
func ParseStrategy(data []byte) (signal.Config, error) {
	var cfg signal.Config
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return signal.Config{}, fmt.Errorf("unknown strategy keys:\n%s", strict.String())
		}
		return signal.Config{}, fmt.Errorf("decode strategy: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return signal.Config{}, err
	}
	return cfg, nil
}

// EncodeStrategy renders cfg as TOML, e.g. to print the effective profile.
func EncodeStrategy(cfg signal.Config) ([]byte, error) {
	return toml.Marshal(cfg)
}
