package middleware

import (
	"bytes"
	"context"
	"net/http"

	"github.com/fleetyard/eldcore/internal/logger"
	"github.com/fleetyard/eldcore/pkg/eld"
	"github.com/fleetyard/eldcore/pkg/idempotency"
)

// Idempotency headers.
const (
	HeaderIdempotencyKey      = "X-Idempotency-Key"
	HeaderIdempotencyReplayed = "Idempotency-Replayed"
)

// responseRecorder tees the response into a buffer while writing it
// through, so a committed outcome can be cached byte-for-byte.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency makes submissions carrying X-Idempotency-Key safe to
// retry. The first request claims the key and executes; a concurrent
// duplicate conflicts with 409; a later duplicate replays the cached
// response verbatim with Idempotency-Replayed: true. Requests without
// the header pass through untouched.
//
// The store is auxiliary: if it cannot be reached the request proceeds
// without replay protection rather than failing, and the event store's
// own uniqueness check remains the backstop.
//
// Must be used after JWTAuth middleware: keys are scoped to the
// authenticated account so one carrier's key cannot replay another's
// response.
func Idempotency(store idempotency.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(HeaderIdempotencyKey)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, eld.CodeUnauthorized, "authentication required")
				return
			}

			key := idempotency.Key(claims.AccountID, clientKey)
			prior, err := store.SetInFlight(r.Context(), key)
			if err != nil {
				logger.WarnCtx(r.Context(), "idempotency store unavailable, proceeding without replay protection",
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			switch prior.Status {
			case idempotency.StatusInFlight:
				writeError(w, eld.CodeIdempotencyConflict,
					"a request with this idempotency key is still executing")
				return
			case idempotency.StatusCompleted:
				w.Header().Set(HeaderIdempotencyReplayed, "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(prior.Record.StatusCode)
				_, _ = w.Write(prior.Record.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The client may disconnect the moment the response lands;
			// the bookkeeping still has to finish.
			ctx := context.WithoutCancel(r.Context())
			if rec.status >= 200 && rec.status < 300 {
				if err := store.SetCompleted(ctx, key, rec.status, rec.body.Bytes()); err != nil {
					logger.WarnCtx(ctx, "failed to cache idempotent response", "error", err)
				}
				return
			}
			if err := store.Clear(ctx, key); err != nil {
				logger.WarnCtx(ctx, "failed to release idempotency key", "error", err)
			}
		})
	}
}
