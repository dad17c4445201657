package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Followed symbols; empty means every symbol.
	subMu   sync.RWMutex
	symbols map[string]bool
}

// controlMsg is what clients send: SUBSCRIBE / UNSUBSCRIBE with a symbol
// list, or a bare {"ping": <ms>}.
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(conn *websocket.Conn, hub *Hub, symbols []string) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		hub:     hub,
		symbols: make(map[string]bool),
	}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	return c
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
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
		c.hub.log.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var m controlMsg
		if json.Unmarshal(msg, &m) != nil {
			continue
		}

		switch strings.ToUpper(m.Type) {
		case "SUBSCRIBE":
			c.subMu.Lock()
			for _, s := range m.Symbols {
				c.symbols[s] = true
			}
			c.subMu.Unlock()
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.Symbols()})

		case "UNSUBSCRIBE":
			c.subMu.Lock()
			for _, s := range m.Symbols {
				delete(c.symbols, s)
			}
			c.subMu.Unlock()
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.Symbols()})

		default:
			if m.Ping > 0 {
				c.reply(map[string]interface{}{
					"type":      "pong",
					"ping":      m.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}

// Symbols returns the followed symbols.
func (c *Client) Symbols() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	// The hub lock keeps RemoveClient from closing send underneath us.
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// matchesChannel reports whether the client should receive channel.
// Non-trade channels are always delivered.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.symbols) == 0 {
		return true
	}
	sym, ok := channelSymbol(channel)
	if !ok {
		return true
	}
	return c.symbols[sym]
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
