// Package httpapi adapts the replication core to HTTP. Handlers decode,
// call into the core, and encode; no replication logic lives here
// (SPEC_FULL.md §4.8).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/coordinator"
	"github.com/elgrassa/replicated-log/internal/dispatcher"
	"github.com/elgrassa/replicated-log/internal/health"
	"github.com/elgrassa/replicated-log/internal/ledger"
	"github.com/elgrassa/replicated-log/internal/metrics"
)

// PrimaryDeps are the core collaborators a primary's router adapts.
type PrimaryDeps struct {
	Ledger      *ledger.Ledger
	Coordinator *coordinator.Coordinator
	Probe       *health.Probe
	Dispatcher  *dispatcher.Dispatcher
	Replicas    []string
	Log         *zap.Logger
	Metrics     *metrics.Client
}

// NewPrimaryRouter builds the primary's chi.Router: POST/GET /messages,
// GET /health.
func NewPrimaryRouter(d PrimaryDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.RequestID, withLogging(d.Log, d.Metrics))

	r.Get("/messages", d.handleListMessages)
	r.Post("/messages", d.handleAppend)
	r.Get("/health", d.handleHealth)
	return r
}

type appendRequest struct {
	Msg string `json:"msg"`
	W   *int   `json:"w"`
}

type ackEntry struct {
	Secondary string `json:"secondary"`
	Ack       string `json:"ack"`
}

type appendResponse struct {
	Messages   []string   `json:"messages"`
	Acks       []ackEntry `json:"acks"`
	W          int        `json:"w"`
	DurationMs int64      `json:"duration_ms"`
	Seq        int64      `json:"seq"`
}

func (d PrimaryDeps) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Msg == "" {
		writeError(w, http.StatusBadRequest, "MalformedRequest", "expected JSON body with non-empty string field 'msg'")
		return
	}

	wConcern := len(d.Replicas) + 1
	if req.W != nil {
		wConcern = *req.W
	}

	res, err := d.Coordinator.Append(r.Context(), req.Msg, wConcern)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrInvalidWriteConcern):
			writeError(w, http.StatusBadRequest, "InvalidWriteConcern", err.Error())
		case errors.Is(err, coordinator.ErrNoQuorum):
			writeError(w, http.StatusServiceUnavailable, "NoQuorum", "not enough healthy replicas to admit a write")
		case errors.Is(err, coordinator.ErrWaitAbandoned), errors.Is(err, context.Canceled):
			// Client disconnected; the append already committed and
			// replication continues. There is no one left to answer.
		default:
			writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
		}
		return
	}

	acks := make([]ackEntry, len(res.Acks))
	for i, addr := range res.Acks {
		acks[i] = ackEntry{Secondary: addr, Ack: "ok"}
	}
	writeJSON(w, http.StatusCreated, appendResponse{
		Messages:   res.Messages,
		Acks:       acks,
		W:          res.W,
		DurationMs: res.DurationMs,
		Seq:        res.Seq,
	})
}

func (d PrimaryDeps) handleListMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": d.Ledger.Snapshot()})
}

type secondaryStatus struct {
	Addr       string `json:"addr"`
	Healthy    bool   `json:"healthy"`
	LastSeenMs int64  `json:"last_seen_ms"`
	QueueDepth int    `json:"queue_depth"`
}

func (d PrimaryDeps) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := make([]secondaryStatus, 0, len(d.Replicas))
	if d.Probe != nil {
		for _, s := range d.Probe.Statuses() {
			depth := 0
			if d.Dispatcher != nil {
				depth = d.Dispatcher.QueueDepth(s.Addr)
			}
			statuses = append(statuses, secondaryStatus{
				Addr:       s.Addr,
				Healthy:    s.Healthy,
				LastSeenMs: s.LastSeen.UnixMilli(),
				QueueDepth: depth,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"count":              d.Ledger.Size(),
		"secondaries":        d.Replicas,
		"secondary_statuses": statuses,
	})
}
