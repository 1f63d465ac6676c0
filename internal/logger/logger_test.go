package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew_WritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "radar", slog.LevelInfo)
	log.Debug("hidden")
	log.Info("scan done", "symbols", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "radar" || rec["msg"] != "scan done" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestScanID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := ScanID(ctx); id != "" {
		t.Errorf("expected empty scan id, got %q", id)
	}
	if attrs := Attrs(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no scan id, got %v", attrs)
	}

	id := NewScanID()
	if len(id) != 36 {
		t.Errorf("expected uuid string, got %q", id)
	}
	ctx = WithScanID(ctx, id)
	if got := ScanID(ctx); got != id {
		t.Errorf("ScanID = %q, want %q", got, id)
	}
	if attrs := Attrs(ctx); len(attrs) != 1 {
		t.Errorf("expected one attr, got %v", attrs)
	}
}
