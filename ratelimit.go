// Rate limiting middleware for IP-only endpoints.
//
// Endpoints that carry an email address go through gate, which checks the IP
// and the address together. Everything else is limited per client IP under one
// ratelimit.Operation profile:
//
//	r.With(authgate.RateLimit(limiter, ratelimit.OpGeneral)).Post("/auth/validate-email", h)

package authgate

import (
	"net/http"
	"strconv"

	"github.com/nhalm/authgate/ratelimit"
)

// RateLimitHeaderMode controls when rate limit headers are included in responses.
type RateLimitHeaderMode int

const (
	// RateLimitHeadersAlways includes rate limit headers on all responses (default).
	// Headers: RateLimit-Limit, RateLimit-Remaining, RateLimit-Reset
	// On 429: Also includes Retry-After
	RateLimitHeadersAlways RateLimitHeaderMode = iota

	// RateLimitHeadersOnLimitExceeded includes rate limit headers only on 429 responses.
	RateLimitHeadersOnLimitExceeded

	// RateLimitHeadersNever never includes rate limit headers in any response.
	// Retry-After is still sent on 429.
	RateLimitHeadersNever
)

type rateLimitConfig struct {
	headerMode RateLimitHeaderMode
	key        func(*http.Request) string
}

// RateLimitOption configures RateLimit.
type RateLimitOption func(*rateLimitConfig)

// RateLimitWithHeaderMode configures when rate limit headers are included in responses.
func RateLimitWithHeaderMode(mode RateLimitHeaderMode) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.headerMode = mode
	}
}

// RateLimitWithKey replaces ClientIP as the source of the limited address.
func RateLimitWithKey(fn func(*http.Request) string) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.key = fn
	}
}

// RateLimit returns middleware that counts each request against the per-IP
// limit of op. Returns 429 with Retry-After when the limit is exceeded and 500
// when the store fails.
func RateLimit(l *ratelimit.Limiter, op ratelimit.Operation, opts ...RateLimitOption) func(http.Handler) http.Handler {
	cfg := &rateLimitConfig{
		headerMode: RateLimitHeadersAlways,
		key:        ClientIP,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.CheckIP(r.Context(), cfg.key(r), op)
			if err != nil {
				fail(w, r, ErrInternal.With("Rate limit check failed"))
				return
			}

			if cfg.headerMode == RateLimitHeadersAlways || (cfg.headerMode == RateLimitHeadersOnLimitExceeded && !res.Allowed) {
				SetRateLimitHeaders(w, r, res)
			}

			if !res.Allowed {
				setOrWriteHeader(w, r, "Retry-After", strconv.Itoa(res.RetryAfterSeconds))
				fail(w, r, ErrRateLimited.With(ratelimit.Message(res.RetryAfterSeconds)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetRateLimitHeaders writes RateLimit-Limit, RateLimit-Remaining and
// RateLimit-Reset (unix seconds) for res.
func SetRateLimitHeaders(w http.ResponseWriter, r *http.Request, res ratelimit.Result) {
	setOrWriteHeader(w, r, "RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	setOrWriteHeader(w, r, "RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	setOrWriteHeader(w, r, "RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
