package gate

import (
	"errors"

	"github.com/nhalm/authgate/ratelimit"
)

// Stage failures. Result.Err wraps exactly one of these.
var (
	ErrInvalidEmail  = errors.New("invalid email")
	ErrRateLimited   = errors.New("rate limited")
	ErrCaptchaFailed = errors.New("captcha verification failed")
	ErrWeakPassword  = errors.New("weak password")
	ErrProvider      = errors.New("identity provider rejected request")
	ErrUnexpected    = errors.New("unexpected error")
)

// User-facing messages for failures that carry no message of their own.
const (
	msgCaptchaFailed = "CAPTCHA verification failed. Please try again."
	msgUnexpected    = "An unexpected error occurred. Please try again later."
)

// RateLimitError reports a denial and how long to wait. It matches ErrRateLimited.
type RateLimitError struct {
	RetryAfter int
	Scope      ratelimit.Scope
}

func (e *RateLimitError) Error() string {
	return ratelimit.Message(e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Reason is the short failure code recorded in events.
type Reason string

const (
	ReasonInvalidEmail      Reason = "invalid_email"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonCaptchaFailed     Reason = "captcha_failed"
	ReasonWeakPassword      Reason = "weak_password"
	ReasonProviderError     Reason = "provider_error"
	ReasonUnexpected        Reason = "unexpected"
	ReasonAlreadyRegistered Reason = "already_registered"
)
