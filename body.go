package authgate

import "net/http"

// DefaultMaxBodyBytes fits any auth form with room to spare.
const DefaultMaxBodyBytes = 16 << 10

// MaxBodySize returns middleware that limits request body size.
//
// Requests whose Content-Length exceeds the limit are rejected with 413 before
// the handler runs. All other bodies are wrapped with http.MaxBytesReader, so
// chunked or mislabelled bodies fail inside JSON with the same 413.
//
//	r.Use(authgate.MaxBodySize(authgate.DefaultMaxBodyBytes))
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				fail(w, r, ErrPayloadTooLarge.With("Request body too large"))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
