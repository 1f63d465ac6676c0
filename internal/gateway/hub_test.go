package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"signalradar/internal/confluence"
	"signalradar/internal/signal"
)

func dial(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	want := h.ClientCount() + 1
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return env
}

func testSignal(sym, tf string) signal.Signal {
	return signal.Signal{Symbol: sym, Timeframe: tf, State: signal.StateLong}
}

func TestHub_FiltersBySymbol(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "symbols=btcusdt")
	ctx := context.Background()

	_ = h.PublishSignal(ctx, testSignal("ETHUSDT", "1h"))
	_ = h.PublishSignal(ctx, testSignal("BTCUSDT", "15m"))

	env := read(t, conn)
	if env.Channel != "pub:signal:BTCUSDT:15m" {
		t.Fatalf("first message on %q, want the BTCUSDT signal", env.Channel)
	}
	if env.Seq != 2 {
		t.Errorf("seq = %d, want 2", env.Seq)
	}
	var sig signal.Signal
	if err := json.Unmarshal(env.Data, &sig); err != nil || sig.State != signal.StateLong {
		t.Errorf("payload = %s (%v)", env.Data, err)
	}
}

func TestHub_NewClientGetsLatest(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()
	_ = h.PublishSignal(ctx, testSignal("BTCUSDT", "15m"))
	_ = h.PublishSignal(ctx, testSignal("BTCUSDT", "15m"))
	_ = h.PublishConfluence(ctx, confluence.Evaluate("BTCUSDT", []signal.Signal{testSignal("BTCUSDT", "15m")}))

	conn := dial(t, h, "")
	// latest per channel, ordered by channel name
	first, second := read(t, conn), read(t, conn)
	if first.Channel != "pub:confluence:BTCUSDT" || second.Channel != "pub:signal:BTCUSDT:15m" {
		t.Errorf("initial channels = %q, %q", first.Channel, second.Channel)
	}
	if second.Seq != 2 {
		t.Errorf("latest signal seq = %d, want 2", second.Seq)
	}
	if got := h.Latest(); len(got) != 2 {
		t.Errorf("Latest() has %d channels, want 2", len(got))
	}
}

func TestHub_ReplaySince(t *testing.T) {
	h := NewHub(nil)
	ctx := context.Background()
	for _, tf := range []string{"15m", "1h", "4h"} {
		_ = h.PublishSignal(ctx, testSignal("SOLUSDT", tf))
	}

	conn := dial(t, h, "since=1")
	if a, b := read(t, conn), read(t, conn); a.Seq != 2 || b.Seq != 3 {
		t.Errorf("replayed seqs %d, %d, want 2, 3", a.Seq, b.Seq)
	}
}

func TestHub_SubscribeMessageNarrowsFilter(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "")
	if err := conn.WriteJSON(controlMsg{Type: "SUBSCRIBE", Symbols: []string{"ETHUSDT"}}); err != nil {
		t.Fatal(err)
	}
	// ping round trip guarantees the SUBSCRIBE was processed
	if err := conn.WriteJSON(controlMsg{Ping: 7}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil || !strings.Contains(string(raw), `"pong"`) {
		t.Fatalf("expected pong, got %s (%v)", raw, err)
	}

	ctx := context.Background()
	_ = h.PublishSignal(ctx, testSignal("BTCUSDT", "1h"))
	_ = h.PublishSignal(ctx, testSignal("ETHUSDT", "1h"))
	if env := read(t, conn); env.Channel != "pub:signal:ETHUSDT:1h" {
		t.Errorf("got %q, want only ETHUSDT", env.Channel)
	}
}

func TestHub_CloseDisconnects(t *testing.T) {
	h := NewHub(nil)
	dial(t, h, "")
	h.Close()
	if h.ClientCount() != 0 {
		t.Errorf("clients = %d after Close", h.ClientCount())
	}
}
