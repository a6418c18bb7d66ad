package middleware

import (
	"fmt"
	"net/http"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// BodyLimit caps request bodies at max bytes. Reads past the cap fail
// with http.MaxBytesError, which the handlers' JSON decoding translates
// into a PAYLOAD_TOO_LARGE response. Requests that declare an oversized
// Content-Length up front are refused without reading the body.
func BodyLimit(max int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				writeError(w, eld.CodePayloadTooLarge,
					fmt.Sprintf("request body exceeds the %d byte limit", max))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}
