package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-enginev1/internal/logger"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42").WithBaseURL(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "halt", Message: "store write failed.", Symbol: "SBIN"})
	require.NoError(t, err)

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Contains(t, got["text"], `store write failed\.`)
	assert.Contains(t, got["text"], "SBIN")
}

func TestTelegramNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewTelegramNotifier("T", "1").WithBaseURL(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "unexpected status 429")
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Warnf("skip", "need %d", 120))
	require.NoError(t, err)
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "need 120", got["message"])
	assert.NotEmpty(t, got["ts"])
}

func TestWebhookNotifier_CarriesTickID(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	ctx := logger.WithTickID(context.Background(), "AAPL-1")
	require.NoError(t, NewWebhookNotifier(srv.URL).Send(ctx, Alert{Level: AlertInfo, Title: "t", Symbol: "AAPL"}))
	assert.Equal(t, "AAPL-1", got["tick_id"])
	assert.Equal(t, "AAPL", got["symbol"])
}

func TestFormatTelegram(t *testing.T) {
	text := formatTelegram(Alert{Level: AlertWarning, Title: "Insufficient capital", Message: "need 2020.00", Symbol: "M&M"}, "M&M-17")
	assert.True(t, strings.HasPrefix(text, "⚠️ *M&M · Insufficient capital*"))
	assert.Contains(t, text, `need 2020\.00`)
	assert.Contains(t, text, "`M&M\\-17`")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, escapeMarkdown("a_b.c!"))
	assert.Equal(t, `\\\(x\)`, escapeMarkdown(`\(x)`))
}

func TestMulti_JoinsErrors(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("down")}
	c := &recordingNotifier{}

	err := Multi{a, b, c}.Send(context.Background(), Infof("t", "m"))

	assert.EqualError(t, err, "down")
	assert.Len(t, a.alerts, 1)
	assert.Len(t, c.alerts, 1)
}

func TestLevelFilter(t *testing.T) {
	next := &recordingNotifier{}
	f := LevelFilter{Min: AlertWarning, Next: next}

	require.NoError(t, f.Send(context.Background(), Infof("t", "m")))
	require.NoError(t, f.Send(context.Background(), Criticalf("t", "m")))
	require.Len(t, next.alerts, 1)
	assert.Equal(t, AlertCritical, next.alerts[0].Level)
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), Warnf("skip", "capital")))
	line := buf.String()
	assert.True(t, strings.Contains(line, `"level":"WARN"`), line)
	assert.Contains(t, line, `"title":"skip"`)
}
