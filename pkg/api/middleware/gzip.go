package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"

	"github.com/fleetyard/eldcore/pkg/eld"
)

// GunzipRequest transparently decompresses request bodies sent with
// Content-Encoding: gzip. ELD units on metered cellular links compress
// their batch uploads; handlers downstream always see plain JSON. The
// decompressed stream is capped at maxBody so a small compressed bomb
// cannot bypass the body limit.
func GunzipRequest(maxBody int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
				next.ServeHTTP(w, r)
				return
			}

			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				writeError(w, eld.CodeValidation, "request body is not valid gzip")
				return
			}
			defer gz.Close()

			r.Body = http.MaxBytesReader(w, gz, maxBody)
			r.Header.Del("Content-Encoding")
			// Decompressed size is unknown; the original header would
			// mislead anything downstream that trusts it.
			r.ContentLength = -1
			r.Header.Del("Content-Length")

			next.ServeHTTP(w, r)
		})
	}
}
