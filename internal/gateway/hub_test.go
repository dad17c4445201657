package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-enginev1/internal/markethours"
	"trading-enginev1/internal/model"
)

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func trade(id, symbol string) model.TradeRecord {
	return model.TradeRecord{
		ID:        id,
		Action:    model.ActionOpen,
		Direction: model.Long,
		Symbol:    symbol,
		Price:     100,
		Shares:    20,
		Timestamp: time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
	}
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	data := []byte(`{"symbol":"AAPL","price":100}`)

	var env envelope
	require.NoError(t, json.Unmarshal(buildEnvelope("trades:AAPL", data, now, 42, 7), &env))
	assert.Equal(t, "trades:AAPL", env.Channel)
	assert.EqualValues(t, 42, env.Seq)
	assert.EqualValues(t, 7, env.ChannelSeq)
	assert.Equal(t, "2026-02-25T10:00:01Z", env.TS)
	assert.JSONEq(t, string(data), string(env.Data))

	sym, ok := channelSymbol("trades:AAPL")
	assert.True(t, ok)
	assert.Equal(t, "AAPL", sym)
	_, ok = channelSymbol("status")
	assert.False(t, ok)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads one frame and splits coalesced messages.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var out []envelope
	for _, line := range strings.Split(string(msg), "\n") {
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(line), &env))
		out = append(out, env)
	}
	return out
}

func TestHub_StreamsFollowedSymbols(t *testing.T) {
	hub := NewHub(100)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "symbols=AAPL")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Append(ctx, trade("01B", "MSFT")))
	require.NoError(t, hub.Append(ctx, trade("01A", "AAPL")))

	got := readEnvelopes(t, conn)
	require.Len(t, got, 1)
	assert.Equal(t, "trades:AAPL", got[0].Channel)
	assert.EqualValues(t, 2, got[0].Seq)
	assert.EqualValues(t, 1, got[0].ChannelSeq)

	var rec model.TradeRecord
	require.NoError(t, json.Unmarshal(got[0].Data, &rec))
	assert.Equal(t, "01A", rec.ID)
}

func TestHub_ReplaysSinceOnConnect(t *testing.T) {
	hub := NewHub(100)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx := context.Background()
	for _, id := range []string{"01A", "01B", "01C"} {
		require.NoError(t, hub.Append(ctx, trade(id, "AAPL")))
	}
	assert.EqualValues(t, 3, hub.Seq())
	assert.Len(t, hub.Replay(2, 3), 2)

	conn := dial(t, srv, "since=1")

	var seqs []int64
	for len(seqs) < 2 {
		for _, env := range readEnvelopes(t, conn) {
			seqs = append(seqs, env.Seq)
		}
	}
	assert.Equal(t, []int64{2, 3}, seqs)
}

func TestHub_SubscribeAndPing(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"ping": 5}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var pong map[string]interface{}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
	assert.EqualValues(t, 5, pong["ping"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "SUBSCRIBE", "symbols": []string{"TCS"}}))
	var ack map[string]interface{}
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])

	require.NoError(t, hub.Append(context.Background(), trade("01A", "INFY")))
	require.NoError(t, hub.Append(context.Background(), trade("01B", "TCS")))
	got := readEnvelopes(t, conn)
	require.Len(t, got, 1)
	assert.Equal(t, "trades:TCS", got[0].Channel)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub := NewHub(10)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Broadcasting with no clients is fine.
	require.NoError(t, hub.Append(context.Background(), trade("01A", "AAPL")))
}

func TestHub_Relay(t *testing.T) {
	hub := NewHub(10)
	msgs := make(chan *goredis.Message, 3)

	payload, err := json.Marshal(trade("01A", "AAPL"))
	require.NoError(t, err)
	msgs <- &goredis.Message{Channel: "pub:trades", Payload: string(payload)}
	msgs <- &goredis.Message{Channel: "pub:trades", Payload: "not json"}
	msgs <- &goredis.Message{Channel: "pub:trades", Payload: `{"id":"x"}`}
	close(msgs)

	hub.Relay(context.Background(), msgs)

	assert.EqualValues(t, 1, hub.Seq())
	got := hub.Replay(1, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "trades:AAPL", channelOf(got[0]))
}

func TestStatusEnvelope(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(statusEnvelope(markethours.Always(), time.Now(), start), &msg))
	assert.Equal(t, "status", msg["type"])
	assert.Equal(t, true, msg["marketOpen"])
	stats := msg["stats"].(map[string]interface{})
	assert.GreaterOrEqual(t, stats["uptime_sec"].(float64), 59.0)
}
