package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// probeTimeout bounds a single readiness probe so a hung backend
// cannot wedge the health endpoint.
const probeTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the server ready to accept events?
type HealthHandler struct {
	db      Pinger
	replay  Pinger
	started time.Time
}

// NewHealthHandler creates a new health handler.
//
// db is the event store and must be reachable for the service to be
// ready. replay is the idempotency store and may be nil; because
// ingestion fails open without it, an unreachable replay store
// degrades the probe but does not fail it.
func NewHealthHandler(db, replay Pinger) *HealthHandler {
	return &HealthHandler{db: db, replay: replay, started: time.Now()}
}

// statusResponse is the health probe document. Probes predate any
// authenticated session, so they use a plain status shape instead of
// the success envelope.
type statusResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func writeStatus(w http.ResponseWriter, code int, resp statusResponse) {
	resp.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	encodeBody(w, resp)
}

// componentHealth reports one dependency inside the readiness probe.
type componentHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// livenessData is the liveness probe payload. StartedAt and Uptime let
// the status command report how long the server has been running.
type livenessData struct {
	Service   string `json:"service"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_sec"`
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. This endpoint is
// designed for Kubernetes liveness probes and should always succeed as
// long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.started)
	writeStatus(w, http.StatusOK, statusResponse{
		Status: "healthy",
		Data: livenessData{
			Service:   "eldcore",
			StartedAt: h.started.UTC().Format(time.RFC3339),
			Uptime:    uptime.String(),
			UptimeSec: int64(uptime.Seconds()),
		},
	})
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK when the service can accept events: the database must
// answer a ping. The idempotency store is probed too but only reported;
// ingestion proceeds without replay protection when it is down, so an
// unreachable replay store leaves the service ready with a degraded
// component.
//
// Returns 503 Service Unavailable when the database is unreachable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	if h.db == nil {
		writeStatus(w, http.StatusServiceUnavailable, statusResponse{
			Status: "unhealthy",
			Error:  "database not configured",
		})
		return
	}

	components := map[string]componentHealth{}

	dbHealth := probe(ctx, h.db)
	components["database"] = dbHealth
	if dbHealth.Status != "healthy" {
		writeStatus(w, http.StatusServiceUnavailable, statusResponse{
			Status: "unhealthy",
			Data:   components,
			Error:  "database unreachable",
		})
		return
	}

	if h.replay != nil {
		replayHealth := probe(ctx, h.replay)
		if replayHealth.Status != "healthy" {
			replayHealth.Status = "degraded"
		}
		components["idempotency"] = replayHealth
	}

	writeStatus(w, http.StatusOK, statusResponse{
		Status: "healthy",
		Data:   components,
	})
}

func probe(ctx context.Context, p Pinger) componentHealth {
	start := time.Now()
	err := p.Ping(ctx)
	health := componentHealth{
		Status:  "healthy",
		Latency: time.Since(start).String(),
	}
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
	}
	return health
}
