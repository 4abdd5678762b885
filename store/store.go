// Package store provides storage backends for fixed-window rate limiting.
package store

import (
	"context"
	"time"
)

// Entry is the per-key accounting record of a rate limit window.
type Entry struct {
	Count        int64
	FirstAttempt time.Time
	LastAttempt  time.Time
}

// ResetAt returns the instant the window that started at FirstAttempt ends.
func (e Entry) ResetAt(window time.Duration) time.Time {
	return e.FirstAttempt.Add(window)
}

// Expired reports whether the window has fully elapsed at now.
// A window is still active at exactly FirstAttempt+window.
func (e Entry) Expired(window time.Duration, now time.Time) bool {
	return now.Sub(e.FirstAttempt) > window
}

// Store defines the interface for rate limit storage backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Hit records an attempt for key at now.
	//
	// When the key is unknown or its window has expired the entry is reset to a count of 1.
	// When the window is active and the count is below limit, the count is incremented.
	// When the count already equals limit the entry is returned unchanged and counted is false;
	// denied attempts never extend the window.
	Hit(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (entry Entry, counted bool, err error)

	// Get returns the entry for key without modifying it.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Reset removes the entry for key.
	Reset(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
