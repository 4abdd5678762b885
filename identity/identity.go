// Package identity talks to the hosted identity provider that owns accounts.
//
// The gate never stores credentials. It forwards account creation, password
// reset and confirmation resend to a Provider and interprets the error it gets
// back.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is the identity backend consumed by the gate.
type Provider interface {
	// SignUp creates an account and sends a confirmation link to redirectURL.
	SignUp(ctx context.Context, email, password, redirectURL string) error
	// SendPasswordReset mails a reset link pointing at redirectURL.
	SendPasswordReset(ctx context.Context, email, redirectURL string) error
	// ResendConfirmation mails the signup confirmation link again.
	ResendConfirmation(ctx context.Context, email, redirectURL string) error
}

// Error is a rejection reported by the provider. Transport failures are not
// Errors; they are wrapped plain errors.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider %d: %s", e.Status, e.Message)
}

// ErrUserNotFound is returned by Memory for operations on unknown addresses.
var ErrUserNotFound = &Error{Status: 404, Code: "user_not_found", Message: "User not found"}

// ErrAlreadyRegistered is returned by Memory when signing up an existing address.
var ErrAlreadyRegistered = &Error{Status: 422, Code: "user_already_exists", Message: "User already registered"}

// AsError returns the provider rejection inside err, if any.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsAlreadyRegistered reports whether err says the address already has an account.
func IsAlreadyRegistered(err error) bool {
	pe, ok := AsError(err)
	if !ok {
		return false
	}
	switch pe.Code {
	case "user_already_exists", "email_exists":
		return true
	}
	msg := strings.ToLower(pe.Message)
	return strings.Contains(msg, "already registered") || strings.Contains(msg, "already exists")
}
