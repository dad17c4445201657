// Package api provides the HTTP surface of the trading engine: health,
// positions, trade history, summary, Prometheus metrics and the live trade
// stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"trading-enginev1/internal/journal"
	"trading-enginev1/internal/model"
	"trading-enginev1/internal/portfolio"
)

const defaultTradeLimit = 100

// PositionSource lists the open positions.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]model.Position, error)
}

// AccountSource reports the engine's capital and halt state. It is only
// available in the process that owns the ledger.
type AccountSource interface {
	Capital() decimal.Decimal
	Halted() bool
}

// Replayer returns the stream envelopes with sequence numbers in
// [from, to].
type Replayer interface {
	Replay(fromSeq, toSeq int64) [][]byte
}

// Deps holds the route handlers' collaborators. Nil members disable their
// routes.
type Deps struct {
	Health    http.Handler
	Metrics   http.Handler
	Stream    http.Handler
	Positions PositionSource
	Account   AccountSource
	History   journal.Reader
	Replay    Replayer
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("/api/v1/health", d.Health)
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
	if d.Stream != nil {
		mux.Handle("/api/v1/stream", d.Stream)
	}
	if d.Replay != nil {
		mux.HandleFunc("/api/v1/replay", replayHandler(d.Replay))
	}
	if d.Positions != nil {
		mux.HandleFunc("/api/v1/positions", positionsHandler(d.Positions, d.Account))
	}
	if d.History != nil {
		mux.HandleFunc("/api/v1/trades", tradesHandler(d.History))
		mux.HandleFunc("/api/v1/summary", summaryHandler(d.History))
	}
	return mux
}

type positionsResponse struct {
	Capital   string           `json:"capital,omitempty"`
	Halted    bool             `json:"trading_halted"`
	Positions []model.Position `json:"positions"`
}

func positionsHandler(src PositionSource, acct AccountSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		positions, err := src.OpenPositions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if positions == nil {
			positions = []model.Position{}
		}
		resp := positionsResponse{Positions: positions}
		if acct != nil {
			resp.Capital = acct.Capital().StringFixed(2)
			resp.Halted = acct.Halted()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func tradesHandler(history journal.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		limit := defaultTradeLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		recs, err := listTrades(r.Context(), history, r.URL.Query().Get("symbol"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if recs == nil {
			recs = []model.TradeRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func summaryHandler(history journal.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		recs, err := listTrades(r.Context(), history, r.URL.Query().Get("symbol"), 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, journal.Summarize(recs))
	}
}

func replayHandler(rp Replayer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowGet(w, r) {
			return
		}
		from, err := seqParam(r, "from", 1)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to, err := seqParam(r, "to", math.MaxInt64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		msgs := rp.Replay(from, to)
		out := make([]json.RawMessage, len(msgs))
		for i, m := range msgs {
			out[i] = m
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func seqParam(r *http.Request, name string, def int64) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative sequence number", name)
	}
	return n, nil
}

func listTrades(ctx context.Context, history journal.Reader, symbol string, limit int) ([]model.TradeRecord, error) {
	if symbol != "" {
		return history.ListBySymbol(ctx, symbol, limit)
	}
	return history.List(ctx, limit)
}

// LedgerPositions serves positions from the live ledger.
func LedgerPositions(l *portfolio.Ledger) PositionSource {
	return ledgerPositions{l}
}

type ledgerPositions struct{ l *portfolio.Ledger }

func (p ledgerPositions) OpenPositions(context.Context) ([]model.Position, error) {
	return p.l.Positions(), nil
}

// StoredPositions serves positions from a durable store, for processes that
// do not own the ledger.
func StoredPositions(repo portfolio.Repository) PositionSource {
	return storedPositions{repo}
}

type storedPositions struct{ repo portfolio.Repository }

func (p storedPositions) OpenPositions(ctx context.Context) ([]model.Position, error) {
	m, err := p.repo.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(m))
	for sym, pos := range m {
		if pos.Symbol == "" {
			pos.Symbol = sym
		}
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	SetCORS(w)
	switch r.Method {
	case http.MethodGet:
		return true
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
