package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/metrics"
	"github.com/elgrassa/replicated-log/internal/replicastore"
)

// ReplicaDeps are the core collaborators a replica's router adapts.
type ReplicaDeps struct {
	Store   *replicastore.Store
	Log     *zap.Logger
	Metrics *metrics.Client
}

// NewReplicaRouter builds the replica's chi.Router: POST /replicate,
// GET /messages, GET /health.
func NewReplicaRouter(d ReplicaDeps) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.RequestID, withLogging(d.Log, d.Metrics))

	r.Post("/replicate", d.handleReplicate)
	r.Get("/messages", d.handleListMessages)
	r.Get("/health", d.handleHealth)
	return r
}

type replicateRequest struct {
	Msg string `json:"msg"`
	Seq int64  `json:"seq"`
}

type replicateResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

func (d ReplicaDeps) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var req replicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seq < 1 {
		writeError(w, http.StatusBadRequest, "MalformedRequest", "expected JSON body with string field 'msg' and positive integer field 'seq'")
		return
	}

	dup := d.Store.Replicate(req.Seq, req.Msg)
	writeJSON(w, http.StatusOK, replicateResponse{Status: "ok", Duplicate: dup})
}

func (d ReplicaDeps) handleListMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": d.Store.Snapshot()})
}

func (d ReplicaDeps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"delay_ms": d.Store.Delay().Milliseconds(),
		"count":    d.Store.AppliedLen(),
	})
}
