package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/nhalm/authgate/store"
)

// Limiter checks auth actions against the IP and email stores.
// It is safe for concurrent use when its stores are.
type Limiter struct {
	ipStore    store.Store
	emailStore store.Store
	profiles   map[Operation]Profile
	now        func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithProfile overrides the limits of one operation.
func WithProfile(op Operation, p Profile) Option {
	return func(l *Limiter) {
		l.profiles[op] = p
	}
}

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter over two independent stores.
// Returns an error if any profile has a non-positive limit or window.
func New(ipStore, emailStore store.Store, opts ...Option) (*Limiter, error) {
	if ipStore == nil || emailStore == nil {
		return nil, fmt.Errorf("ratelimit: both ip and email stores are required")
	}

	l := &Limiter{
		ipStore:    ipStore,
		emailStore: emailStore,
		profiles:   DefaultProfiles(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	for op, p := range l.profiles {
		if err := p.IP.validate(); err != nil {
			return nil, fmt.Errorf("ratelimit: %s ip profile: %w", op, err)
		}
		if err := p.Email.validate(); err != nil {
			return nil, fmt.Errorf("ratelimit: %s email profile: %w", op, err)
		}
	}
	return l, nil
}

// Profile returns the limits for op, falling back to OpGeneral for unknown operations.
func (l *Limiter) Profile(op Operation) Profile {
	if p, ok := l.profiles[op]; ok {
		return p
	}
	return l.profiles[OpGeneral]
}

// CheckLimit records an attempt for key in st and reports whether it is allowed.
func (l *Limiter) CheckLimit(ctx context.Context, st store.Store, key string, cfg Config) (Result, error) {
	now := l.now()

	entry, counted, err := st.Hit(ctx, key, cfg.MaxRequests, cfg.Window, now)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	resetAt := entry.ResetAt(cfg.Window)
	if !counted {
		return Result{
			Allowed:           false,
			Limit:             cfg.MaxRequests,
			Remaining:         0,
			ResetAt:           resetAt,
			RetryAfterSeconds: retryAfterSeconds(resetAt, now),
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     cfg.MaxRequests,
		Remaining: max(0, cfg.MaxRequests-entry.Count),
		ResetAt:   resetAt,
	}, nil
}

// CheckIP checks only the per-IP limit of op.
func (l *Limiter) CheckIP(ctx context.Context, ip string, op Operation) (Result, error) {
	res, err := l.CheckLimit(ctx, l.ipStore, IPKey(ip), l.Profile(op).IP)
	res.Scope = ScopeIP
	return res, err
}

// CheckAuth checks the per-IP limit and then the per-email limit of op.
// A denial at the IP level returns before the email store is touched.
// When both pass, Remaining is the smaller of the two and ResetAt the later.
func (l *Limiter) CheckAuth(ctx context.Context, ip, email string, op Operation) (Result, error) {
	p := l.Profile(op)

	ipRes, err := l.CheckLimit(ctx, l.ipStore, IPKey(ip), p.IP)
	if err != nil {
		return Result{}, err
	}
	ipRes.Scope = ScopeIP
	if !ipRes.Allowed {
		return ipRes, nil
	}

	emailRes, err := l.CheckLimit(ctx, l.emailStore, EmailKey(email), p.Email)
	if err != nil {
		return Result{}, err
	}
	emailRes.Scope = ScopeEmail
	if !emailRes.Allowed {
		return emailRes, nil
	}

	combined := Result{
		Allowed:   true,
		Limit:     ipRes.Limit,
		Remaining: ipRes.Remaining,
		ResetAt:   ipRes.ResetAt,
		Scope:     ScopeIP,
	}
	if emailRes.Remaining < combined.Remaining {
		combined.Limit = emailRes.Limit
		combined.Remaining = emailRes.Remaining
		combined.Scope = ScopeEmail
	}
	if emailRes.ResetAt.After(combined.ResetAt) {
		combined.ResetAt = emailRes.ResetAt
	}
	return combined, nil
}

// Inspect returns the stored entry for value under scope without counting an attempt.
func (l *Limiter) Inspect(ctx context.Context, scope Scope, value string) (store.Entry, bool, error) {
	st, key, err := l.resolve(scope, value)
	if err != nil {
		return store.Entry{}, false, err
	}
	return st.Get(ctx, key)
}

// Reset clears the stored entry for value under scope.
func (l *Limiter) Reset(ctx context.Context, scope Scope, value string) error {
	st, key, err := l.resolve(scope, value)
	if err != nil {
		return err
	}
	return st.Reset(ctx, key)
}

func (l *Limiter) resolve(scope Scope, value string) (store.Store, string, error) {
	switch scope {
	case ScopeIP:
		return l.ipStore, IPKey(value), nil
	case ScopeEmail:
		return l.emailStore, EmailKey(value), nil
	default:
		return nil, "", fmt.Errorf("ratelimit: unknown scope %q", scope)
	}
}

// retryAfterSeconds rounds the time left until resetAt up to whole seconds, never below zero.
func retryAfterSeconds(resetAt, now time.Time) int {
	left := resetAt.Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}
