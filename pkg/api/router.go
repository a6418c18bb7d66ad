package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/api/auth"
	"github.com/fleetyard/eldcore/pkg/api/handlers"
	apimw "github.com/fleetyard/eldcore/pkg/api/middleware"
	"github.com/fleetyard/eldcore/pkg/dlq"
	"github.com/fleetyard/eldcore/pkg/idempotency"
	"github.com/fleetyard/eldcore/pkg/ingest"
	"github.com/fleetyard/eldcore/pkg/sequence"
	"github.com/fleetyard/eldcore/pkg/store"
	"github.com/fleetyard/eldcore/pkg/syncproto"
	"github.com/fleetyard/eldcore/pkg/unidentified"
)

// Deps carries the services the router exposes. JWT must be set; the
// server refuses to start without a signing secret. Metrics and
// Idempotency are optional.
type Deps struct {
	Store        *store.Store
	Pipeline     *ingest.Pipeline
	Allocator    *sequence.Allocator
	Sync         *syncproto.Service
	DLQ          *dlq.Service
	Unidentified *unidentified.Service
	Idempotency  idempotency.Store
	JWT          *auth.JWTService
	Metrics      http.Handler
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Health probes and metrics are unauthenticated; everything else sits
// behind bearer JWT. The admin dead-letter surface additionally
// requires the admin role, and the unidentified-driving review surface
// requires an operator.
func NewRouter(config APIConfig, deps Deps) http.Handler {
	config.applyDefaults()
	maxBody := config.MaxBodySize.Int64()

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(apimw.BodyLimit(maxBody))

	healthHandler := handlers.NewHealthHandler(pinger(deps.Store), deps.Idempotency)
	eventsHandler := handlers.NewEventsHandler(deps.Pipeline, deps.Store)
	sequenceHandler := handlers.NewSequenceHandler(deps.Allocator)
	syncHandler := handlers.NewSyncHandler(deps.Sync)
	dlqHandler := handlers.NewDLQHandler(deps.DLQ)
	reviewHandler := handlers.NewUnidentifiedHandler(deps.Unidentified)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	// Everything below requires a valid access token.
	r.Group(func(r chi.Router) {
		r.Use(apimw.JWTAuth(deps.JWT))

		r.Route("/events", func(r chi.Router) {
			// Devices gzip their buffers; replay protection wraps the
			// write paths that carry an idempotency key.
			r.Group(func(r chi.Router) {
				r.Use(apimw.GunzipRequest(maxBody))
				r.Use(apimw.Idempotency(deps.Idempotency))
				r.Post("/", eventsHandler.Submit)
				r.Post("/batch", eventsHandler.SubmitBatch)
			})
			r.Post("/sequence-ids/reserve", sequenceHandler.Reserve)

			r.Get("/", eventsHandler.Query)
			r.Get("/{deviceID}/{logDate}", eventsHandler.Scope)
			r.Get("/{deviceID}/{logDate}/gaps", eventsHandler.Gaps)
			r.Get("/{deviceID}/{logDate}/verify", eventsHandler.Verify)
		})

		r.Route("/sync", func(r chi.Router) {
			r.With(apimw.GunzipRequest(maxBody)).Post("/events", syncHandler.Events)
			r.Get("/status", sequenceHandler.Status)
		})

		r.Route("/unidentified-driving", func(r chi.Router) {
			r.Use(apimw.RequireOperator())
			r.Get("/", reviewHandler.List)
			r.Get("/{recordID}", reviewHandler.Get)
			r.Post("/{recordID}/claim", reviewHandler.Claim)
			r.Post("/{recordID}/reject", reviewHandler.Reject)
		})

		r.Route("/admin/dlq", func(r chi.Router) {
			r.Use(apimw.RequireAdmin())
			r.Get("/", dlqHandler.List)
			r.Get("/stats", dlqHandler.Stats)
			r.Post("/retry", dlqHandler.Redrive)
			r.Get("/{entryID}", dlqHandler.Get)
			r.Post("/{entryID}/retry", dlqHandler.Retry)
			r.Post("/{entryID}/discard", dlqHandler.Discard)
		})
	})

	return r
}

// pinger keeps a nil *store.Store from reaching the health handler as
// a non-nil interface.
func pinger(st *store.Store) handlers.Pinger {
	if st == nil {
		return nil
	}
	return st
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimw.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
