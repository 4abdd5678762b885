// Package email normalizes and validates email addresses for account actions.
//
// Validation is pure: it reads only the address and a static Policy. The
// server-side result is authoritative even if an interactive check passed.
package email

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxLength is the longest address accepted (RFC 5321 path limit minus brackets).
const MaxLength = 254

var (
	// ErrInvalidFormat is returned for addresses that are not shaped like an email.
	ErrInvalidFormat = errors.New("Please enter a valid email address.")
	// ErrBlockedDomain is returned for reserved or non-routable top-level domains.
	ErrBlockedDomain = errors.New("This email domain is not allowed. Please use a different email address.")
	// ErrDisposableDomain is returned for throwaway mailbox providers when they are blocked.
	ErrDisposableDomain = errors.New("Disposable email addresses are not allowed. Please use a permanent email address.")
)

var validate = validator.New()

// Options controls per-call policy.
type Options struct {
	// BlockDisposable rejects addresses at known disposable-mail domains.
	BlockDisposable bool
}

// Normalize trims surrounding whitespace and lowercases the address.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Domain returns the part after the last '@', or "" when there is none.
func Domain(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return ""
	}
	return address[at+1:]
}

// Validate checks address against the default policy. It returns nil for a valid
// address, or one of ErrInvalidFormat, ErrBlockedDomain, ErrDisposableDomain.
func Validate(address string, opts Options) error {
	return defaultPolicy.Validate(address, opts)
}

// Validate checks address against p.
func (p *Policy) Validate(address string, opts Options) error {
	address = Normalize(address)

	if address == "" || len(address) > MaxLength {
		return ErrInvalidFormat
	}
	if err := validate.Var(address, "email"); err != nil {
		return ErrInvalidFormat
	}

	domain := Domain(address)
	tld, ok := topLevelDomain(domain)
	if !ok {
		return ErrInvalidFormat
	}

	if _, blocked := p.blockedTLDs[tld]; blocked {
		return ErrBlockedDomain
	}
	if opts.BlockDisposable && p.IsDisposable(domain) {
		return ErrDisposableDomain
	}
	return nil
}

// topLevelDomain returns the last label of a dotted domain when it is at least two
// ASCII letters long.
func topLevelDomain(domain string) (string, bool) {
	dot := strings.LastIndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return "", false
	}
	tld := domain[dot+1:]
	if len(tld) < 2 {
		return "", false
	}
	for i := 0; i < len(tld); i++ {
		if tld[i] < 'a' || tld[i] > 'z' {
			return "", false
		}
	}
	return tld, true
}
