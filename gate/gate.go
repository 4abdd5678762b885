// Package gate runs the abuse checks in front of the identity provider.
//
// Every action follows the same pipeline and stops at the first failing stage:
//
//	normalize email → validate → rate limit (IP, then email) → CAPTCHA →
//	password rule (sign-up only) → identity provider → event
//
// The rate limit is charged before CAPTCHA so repeated CAPTCHA failures still
// consume attempts. Failures become Result values; nothing is returned as an
// error or panics out of a Service method.
//
// Responses never reveal whether an account exists: a sign-up for a registered
// address and every password reset past CAPTCHA report success. The event log
// keeps the real outcome.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nhalm/authgate"
	"github.com/nhalm/authgate/email"
	"github.com/nhalm/authgate/identity"
	"github.com/nhalm/authgate/ratelimit"
)

// DefaultMinPasswordLength is the shortest password accepted at sign-up.
const DefaultMinPasswordLength = 6

// Redirect paths appended to the site URL.
const (
	CallbackPath      = "/auth/callback"
	ResetPasswordPath = "/auth/reset-password"
)

// Action names an auth operation in events.
type Action string

const (
	ActionSignUp             Action = "signup"
	ActionForgotPassword     Action = "forgot_password"
	ActionResendConfirmation Action = "resend_confirmation"
)

// Limiter is the composite rate limit consulted before CAPTCHA.
type Limiter interface {
	CheckAuth(ctx context.Context, ip, email string, op ratelimit.Operation) (ratelimit.Result, error)
}

// CaptchaVerifier checks a challenge token for a client.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, clientIP string) bool
}

// Result is what an action reports to the caller. Err carries the stage
// failure for errors.Is and is never serialized.
type Result struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	RateLimited bool   `json:"rateLimited,omitempty"`
	RetryAfter  int    `json:"retryAfter,omitempty"`
	Err         error  `json:"-"`
}

// Service orchestrates auth actions. It is safe for concurrent use.
type Service struct {
	limiter     Limiter
	captcha     CaptchaVerifier
	provider    identity.Provider
	emailPolicy *email.Policy
	siteURL     string
	minPassword int
	sink        EventSink
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSiteURL sets the base URL redirect links are built from.
func WithSiteURL(u string) Option {
	return func(s *Service) {
		s.siteURL = strings.TrimRight(u, "/")
	}
}

// WithEventSink sets where events are delivered. Defaults to NoOpSink; nil is ignored.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithMinPasswordLength sets the sign-up password minimum in characters.
func WithMinPasswordLength(n int) Option {
	return func(s *Service) {
		s.minPassword = n
	}
}

// WithEmailPolicy replaces the default email domain tables.
func WithEmailPolicy(p *email.Policy) Option {
	return func(s *Service) {
		s.emailPolicy = p
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. All three dependencies are required.
func New(limiter Limiter, verifier CaptchaVerifier, provider identity.Provider, opts ...Option) (*Service, error) {
	if limiter == nil || verifier == nil || provider == nil {
		return nil, errors.New("gate: limiter, captcha verifier and identity provider are required")
	}

	s := &Service{
		limiter:     limiter,
		captcha:     verifier,
		provider:    provider,
		emailPolicy: email.DefaultPolicy(),
		minPassword: DefaultMinPasswordLength,
		sink:        NoOpSink{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.minPassword < 1 {
		return nil, fmt.Errorf("gate: minimum password length must be positive, got %d", s.minPassword)
	}
	return s, nil
}

// ValidateEmail runs the same validation the actions use, without side effects.
func (s *Service) ValidateEmail(address string, blockDisposable bool) error {
	return s.emailPolicy.Validate(address, email.Options{BlockDisposable: blockDisposable})
}

// SignUp creates an account. A registered address reports success.
func (s *Service) SignUp(ctx context.Context, clientIP, address, password, captchaToken string) Result {
	return s.run(ctx, action{
		name:            ActionSignUp,
		op:              ratelimit.OpSignup,
		blockDisposable: true,
		clientIP:        clientIP,
		address:         address,
		captchaToken:    captchaToken,
		precheck: func() *stageError {
			if utf8.RuneCountInString(password) < s.minPassword {
				msg := fmt.Sprintf("Password must be at least %d characters.", s.minPassword)
				return &stageError{reason: ReasonWeakPassword, err: ErrWeakPassword, message: msg}
			}
			return nil
		},
		call: func(ctx context.Context, normalized string) error {
			return s.provider.SignUp(ctx, normalized, password, s.siteURL+CallbackPath)
		},
		hide: func(err error) (Reason, bool) {
			return ReasonAlreadyRegistered, identity.IsAlreadyRegistered(err)
		},
	})
}

// ForgotPassword sends a reset link. Once past CAPTCHA it always reports
// success, whatever the provider says.
func (s *Service) ForgotPassword(ctx context.Context, clientIP, address, captchaToken string) Result {
	return s.run(ctx, action{
		name:         ActionForgotPassword,
		op:           ratelimit.OpReset,
		clientIP:     clientIP,
		address:      address,
		captchaToken: captchaToken,
		call: func(ctx context.Context, normalized string) error {
			return s.provider.SendPasswordReset(ctx, normalized, s.siteURL+ResetPasswordPath)
		},
		hide: func(error) (Reason, bool) {
			return ReasonProviderError, true
		},
	})
}

// ResendConfirmation mails the sign-up confirmation link again.
func (s *Service) ResendConfirmation(ctx context.Context, clientIP, address, captchaToken string) Result {
	return s.run(ctx, action{
		name:         ActionResendConfirmation,
		op:           ratelimit.OpResend,
		clientIP:     clientIP,
		address:      address,
		captchaToken: captchaToken,
		call: func(ctx context.Context, normalized string) error {
			return s.provider.ResendConfirmation(ctx, normalized, s.siteURL+CallbackPath)
		},
	})
}

type action struct {
	name            Action
	op              ratelimit.Operation
	blockDisposable bool
	clientIP        string
	address         string
	captchaToken    string
	precheck        func() *stageError
	call            func(ctx context.Context, normalized string) error
	// hide reports whether a provider error is reported to the caller as
	// success, and the reason recorded for it.
	hide func(error) (Reason, bool)
}

type stageError struct {
	reason     Reason
	err        error
	message    string
	retryAfter int
	detail     string
}

func (s *Service) run(ctx context.Context, a action) (res Result) {
	if a.clientIP == "" {
		a.clientIP = authgate.UnknownClientIP
	}
	normalized := email.Normalize(a.address)
	ev := Event{
		Action: a.name,
		Email:  maskEmail(normalized),
		IP:     maskIP(a.clientIP),
	}

	defer func() {
		if rec := recover(); rec != nil {
			res = s.fail(ctx, ev, &stageError{
				reason:  ReasonUnexpected,
				err:     ErrUnexpected,
				message: msgUnexpected,
				detail:  fmt.Sprintf("panic: %v", rec),
			})
		}
	}()

	if se := s.check(ctx, a, normalized); se != nil {
		return s.fail(ctx, ev, se)
	}

	err := a.call(ctx, normalized)
	if err == nil {
		ev.Success = true
		s.record(ctx, ev)
		return Result{Success: true}
	}

	if a.hide != nil {
		if reason, ok := a.hide(err); ok {
			ev.Reason = reason
			ev.Detail = err.Error()
			s.record(ctx, ev)
			return Result{Success: true}
		}
	}

	if pe, ok := identity.AsError(err); ok {
		return s.fail(ctx, ev, &stageError{
			reason:  ReasonProviderError,
			err:     fmt.Errorf("%w: %w", ErrProvider, err),
			message: pe.Message,
			detail:  err.Error(),
		})
	}
	return s.fail(ctx, ev, &stageError{
		reason:  ReasonUnexpected,
		err:     fmt.Errorf("%w: %w", ErrUnexpected, err),
		message: msgUnexpected,
		detail:  err.Error(),
	})
}

// check runs every stage before the provider call.
func (s *Service) check(ctx context.Context, a action, normalized string) *stageError {
	if err := s.emailPolicy.Validate(normalized, email.Options{BlockDisposable: a.blockDisposable}); err != nil {
		return &stageError{
			reason:  ReasonInvalidEmail,
			err:     fmt.Errorf("%w: %w", ErrInvalidEmail, err),
			message: err.Error(),
		}
	}

	rl, err := s.limiter.CheckAuth(ctx, a.clientIP, normalized, a.op)
	if err != nil {
		return &stageError{
			reason:  ReasonUnexpected,
			err:     fmt.Errorf("%w: %w", ErrUnexpected, err),
			message: msgUnexpected,
			detail:  err.Error(),
		}
	}
	if !rl.Allowed {
		rle := &RateLimitError{RetryAfter: rl.RetryAfterSeconds, Scope: rl.Scope}
		return &stageError{
			reason:     ReasonRateLimited,
			err:        rle,
			message:    rle.Error(),
			retryAfter: rl.RetryAfterSeconds,
			detail:     "scope=" + string(rl.Scope),
		}
	}

	if !s.captcha.Verify(ctx, a.captchaToken, a.clientIP) {
		return &stageError{reason: ReasonCaptchaFailed, err: ErrCaptchaFailed, message: msgCaptchaFailed}
	}

	if a.precheck != nil {
		return a.precheck()
	}
	return nil
}

func (s *Service) fail(ctx context.Context, ev Event, se *stageError) Result {
	ev.Success = false
	ev.Reason = se.reason
	ev.RetryAfter = se.retryAfter
	ev.Detail = se.detail
	s.record(ctx, ev)

	return Result{
		Success:     false,
		Error:       se.message,
		RateLimited: errors.Is(se.err, ErrRateLimited),
		RetryAfter:  se.retryAfter,
		Err:         se.err,
	}
}
