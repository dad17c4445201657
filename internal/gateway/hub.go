// Package gateway streams trade events to WebSocket clients.
//
// The Hub is a journal sink: every recorded trade is wrapped in an envelope
// carrying a global and a per-channel sequence number, kept in a replay
// buffer and fanned out to the connected clients that follow its symbol.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-enginev1/internal/markethours"
	"trading-enginev1/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and trade fan-out.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	seq         int64
	channelSeqs map[string]int64

	replay *ReplayBuffer
	log    *slog.Logger
	now    func() time.Time
}

// NewHub creates a hub keeping the last replaySize envelopes for backfill.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		channelSeqs: make(map[string]int64),
		replay:      NewReplayBuffer(replaySize),
		log:         slog.Default().With("component", "gateway"),
		now:         time.Now,
	}
}

func (h *Hub) Name() string { return "stream" }

// Append broadcasts rec on its symbol channel. It never fails.
func (h *Hub) Append(_ context.Context, rec model.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", rec.ID, err)
	}
	h.Broadcast(TradeChannel(rec.Symbol), data)
	return nil
}

// Broadcast sends a JSON payload on channel to every interested client.
// Slow clients whose send queue is full miss the message and can backfill
// from the replay buffer.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	h.replay.Push(seq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket. A since=<seq> query
// parameter replays buffered envelopes newer than seq before live ones;
// symbols=A,B restricts the stream up front.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	var since int64 = -1
	if v := r.URL.Query().Get("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = n
		}
	}
	h.register(conn, since, splitSymbols(r.URL.Query().Get("symbols")))
}

func (h *Hub) register(conn *websocket.Conn, since int64, symbols []string) *Client {
	client := newClient(conn, h, symbols)
	conn.EnableWriteCompression(true)

	// Replay under the write lock so no live envelope can overtake it.
	h.mu.Lock()
	if since >= 0 {
		if oldest, ok := h.replay.Oldest(); ok && oldest > since+1 {
			h.log.Warn("replay gap, client missed envelopes", "since", since, "oldest_buffered", oldest)
		}
		for _, e := range h.replay.Since(since) {
			if client.matchesChannel(channelOf(e.Data)) {
				select {
				case client.send <- e.Data:
				default:
				}
			}
		}
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count)

	go client.writePump()
	go client.readPump()
	return client
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Replay returns buffered envelopes with seq in [fromSeq, toSeq].
func (h *Hub) Replay(fromSeq, toSeq int64) [][]byte {
	entries := h.replay.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// Seq returns the last global sequence number.
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

// StartStatusBroadcast sends the market status and process stats to all
// clients every interval. Blocks until ctx is cancelled.
func (h *Hub) StartStatusBroadcast(ctx context.Context, session markethours.Session, interval time.Duration, start time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sendAll(statusEnvelope(session, h.now(), start))
		}
	}
}

func (h *Hub) sendAll(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

// channelOf reads the channel of a built envelope.
func channelOf(envelope []byte) string {
	var e struct {
		Channel string `json:"channel"`
	}
	_ = json.Unmarshal(envelope, &e)
	return e.Channel
}
