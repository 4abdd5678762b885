package authgate

import (
	"context"
	"crypto/subtle"
	"net/http"
)

type authContextKey string

const apiKeyKey authContextKey = "api_key"

// APIKeyValidator validates an API key and returns true if valid.
// Validators are called concurrently and must be safe for concurrent use.
type APIKeyValidator func(key string) bool

type apiKeyConfig struct {
	header string
}

// APIKeyOption configures APIKey middleware.
type APIKeyOption func(*apiKeyConfig)

// WithAPIKeyHeader sets the header to read the API key from.
// Default is "X-API-Key".
func WithAPIKeyHeader(header string) APIKeyOption {
	return func(c *apiKeyConfig) {
		c.header = header
	}
}

// StaticAPIKey returns a validator accepting exactly want, compared in
// constant time. An empty want accepts nothing.
func StaticAPIKey(want string) APIKeyValidator {
	return func(key string) bool {
		if want == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
	}
}

// APIKey returns middleware that validates API keys from a header.
// Returns 401 (Unauthorized) if the key is missing or invalid. The validated
// key is stored in the request context; see APIKeyFromContext.
//
//	r.Use(authgate.APIKey(authgate.StaticAPIKey(cfg.AdminAPIKey)))
func APIKey(validator APIKeyValidator, opts ...APIKeyOption) func(http.Handler) http.Handler {
	cfg := apiKeyConfig{header: "X-API-Key"}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(cfg.header)
			if key == "" {
				fail(w, r, ErrUnauthorized.With("Missing API key"))
				return
			}
			if !validator(key) {
				fail(w, r, ErrUnauthorized.With("Invalid API key"))
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyFromContext retrieves the validated API key from the request context.
func APIKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(apiKeyKey).(string)
	return key, ok
}
