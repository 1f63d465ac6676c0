// Package gateway streams scan results to WebSocket clients. Results come
// either straight from an in-process scanner (the Hub is a scanner
// Publisher) or from Redis pubsub when the scanner runs elsewhere.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalradar/internal/confluence"
	"signalradar/internal/metrics"
	"signalradar/internal/signal"
	"signalradar/internal/store/redis"
)

type latestEntry struct {
	Envelope []byte
	Payload  json.RawMessage
}

// Hub manages WebSocket clients and fans envelopes out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry // channel -> last envelope
	seq     int64

	replay   *ReplayBuffer
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(1000),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Broadcast assigns the next seq, remembers the envelope as the channel's
// latest and sends it to every client whose filter matches. Slow clients
// whose buffer is full miss the message; they can recover via ?since=.
func (h *Hub) Broadcast(channel string, data []byte) {
	h.mu.Lock()
	h.seq++
	env := buildEnvelope(channel, data, h.now().UTC(), h.seq)
	h.latest[channel] = latestEntry{Envelope: env, Payload: json.RawMessage(data)}
	h.replay.Push(h.seq, env)

	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
	h.mu.Unlock()
}

// PublishSignal streams one classified signal.
func (h *Hub) PublishSignal(_ context.Context, sig signal.Signal) error {
	h.Broadcast(redis.SignalChannel(sig.Symbol, sig.Timeframe), sig.JSON())
	return nil
}

// PublishConfluence streams a symbol's confluence result.
func (h *Hub) PublishConfluence(_ context.Context, r confluence.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.Broadcast(redis.ConfluenceChannel(r.Symbol), data)
	return nil
}

// ServeWS upgrades the request. Query parameters:
//
//	symbols=BTCUSDT,ETHUSDT  only stream these symbols
//	since=N                  replay buffered envelopes after seq N
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(h, conn, splitSymbols(r.URL.Query().Get("symbols")))
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	c.queueInitial(h.initialLocked(c, since))
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(count))
	}
	slog.Info("ws client connected", "remote", r.RemoteAddr, "clients", count)

	go c.writePump()
	go c.readPump()
}

// initialLocked returns what a new client gets before live traffic: the
// replay after since, or the latest envelope of every matching channel.
func (h *Hub) initialLocked(c *Client, since int64) [][]byte {
	if since > 0 {
		return h.replay.Since(since)
	}
	channels := make([]string, 0, len(h.latest))
	for ch := range h.latest {
		if c.wants(ch) {
			channels = append(channels, ch)
		}
	}
	sort.Strings(channels)
	out := make([][]byte, 0, len(channels))
	for _, ch := range channels {
		out = append(out, h.latest[ch].Envelope)
	}
	return out
}

// RemoveClient unregisters c and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(count))
	}
}

// Latest returns the last payload per channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		out[k] = v.Payload
	}
	return out
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
