// Package ratelimit decides whether auth actions may proceed, using fixed windows
// counted per client IP and per normalized email address.
//
// Two stores back a Limiter: one keyed by "ip:<address>", one keyed by
// "email:<address>". Each operation (signup, reset, resend, general) has a
// Profile holding one Config per key type. CheckAuth consults the IP store first
// and returns immediately on denial, so an IP flood never grows the email store.
//
// A window starts at the first attempt and lasts Config.Window. Once it has fully
// elapsed the next attempt starts a new window; this allows a burst of up to
// 2×MaxRequests around a boundary, which is accepted.
package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Operation identifies an auth action with its own limits.
type Operation string

const (
	OpSignup  Operation = "signup"
	OpReset   Operation = "reset"
	OpResend  Operation = "resend"
	OpGeneral Operation = "general"
)

// Scope names the key type a result was decided on.
type Scope string

const (
	ScopeIP    Scope = "ip"
	ScopeEmail Scope = "email"
)

// Config is an immutable (MaxRequests, Window) pair.
type Config struct {
	MaxRequests int64
	Window      time.Duration
}

func (c Config) validate() error {
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	return nil
}

// Profile holds the per-IP and per-email limits of one operation.
type Profile struct {
	IP    Config
	Email Config
}

// DefaultProfiles returns the built-in limits for every operation.
func DefaultProfiles() map[Operation]Profile {
	return map[Operation]Profile{
		OpSignup: {
			IP:    Config{MaxRequests: 5, Window: time.Hour},
			Email: Config{MaxRequests: 3, Window: time.Hour},
		},
		OpReset: {
			IP:    Config{MaxRequests: 10, Window: time.Hour},
			Email: Config{MaxRequests: 3, Window: time.Hour},
		},
		OpResend: {
			IP:    Config{MaxRequests: 10, Window: time.Hour},
			Email: Config{MaxRequests: 3, Window: time.Hour},
		},
		OpGeneral: {
			IP:    Config{MaxRequests: 60, Window: 15 * time.Minute},
			Email: Config{MaxRequests: 20, Window: 15 * time.Minute},
		},
	}
}

// Result is the outcome of a limit check. It is computed fresh per check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	ResetAt           time.Time
	RetryAfterSeconds int
	// Scope is the key type that decided a denial, or the tighter one on success.
	Scope Scope
}

// IPKey returns the IP store key for address.
func IPKey(address string) string {
	return "ip:" + address
}

// EmailKey returns the email store key for an address. The address is
// normalized so case variants collide.
func EmailKey(address string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(address))
}

// Message formats a user-facing denial for a wait of retryAfterSeconds,
// rounded up to whole minutes or hours once it exceeds a minute.
func Message(retryAfterSeconds int) string {
	switch {
	case retryAfterSeconds <= 60:
		return fmt.Sprintf("Too many attempts. Please try again in %s.", plural(max(retryAfterSeconds, 1), "second"))
	case retryAfterSeconds <= 3600:
		return fmt.Sprintf("Too many attempts. Please try again in %s.", plural(ceilDiv(retryAfterSeconds, 60), "minute"))
	default:
		return fmt.Sprintf("Too many attempts. Please try again in %s.", plural(ceilDiv(retryAfterSeconds, 3600), "hour"))
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
