package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.RWMutex
	symbols map[string]bool // empty: everything
}

// controlMsg is what a client may send: a symbol filter change or a ping.
type controlMsg struct {
	Type    string   `json:"type"` // SUBSCRIBE, UNSUBSCRIBE
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{conn: conn, send: make(chan []byte, 256), hub: h, symbols: make(map[string]bool)}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	return c
}

func (c *Client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	sym := channelSymbol(channel)
	return sym == "" || c.symbols[sym]
}

func (c *Client) queueInitial(envs [][]byte) {
	for _, env := range envs {
		select {
		case c.send <- env:
		default:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		slog.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "SUBSCRIBE":
			c.mu.Lock()
			for _, s := range msg.Symbols {
				c.symbols[s] = true
			}
			c.mu.Unlock()
		case "UNSUBSCRIBE":
			c.mu.Lock()
			for _, s := range msg.Symbols {
				delete(c.symbols, s)
			}
			c.mu.Unlock()
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.hub.mu.RLock()
				if c.hub.clients[c] {
					select {
					case c.send <- pong:
					default:
					}
				}
				c.hub.mu.RUnlock()
			}
		}
	}
}
