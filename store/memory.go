package store

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultSweepProbability is the share of Hit calls that also sweep expired entries.
const DefaultSweepProbability = 0.1

type memoryEntry struct {
	Entry
	window time.Duration
}

// Memory is an in-memory implementation of Store using a map with mutex protection.
//
// WARNING: This implementation is NOT suitable for multi-instance deployments.
// Every process keeps its own counters, so a client spreading requests across
// instances gets a separate budget on each one.
//
// Expired entries are removed opportunistically: a random share of Hit calls
// (DefaultSweepProbability unless configured) sweeps the whole map. The sweep only
// bounds memory; expiry itself is decided on every Hit. WithJanitor replaces the
// opportunistic sweep with a periodic background goroutine.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	sweepP   float64
	randFn   func() float64
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithSweepProbability sets the chance (0..1) that a Hit call sweeps expired entries.
func WithSweepProbability(p float64) MemoryOption {
	return func(m *Memory) {
		m.sweepP = min(max(p, 0), 1)
	}
}

// WithRand overrides the random source used to decide when to sweep.
// The function must return values in [0, 1).
func WithRand(fn func() float64) MemoryOption {
	return func(m *Memory) {
		m.randFn = fn
	}
}

// WithJanitor starts a background goroutine that sweeps expired entries every interval
// and disables the opportunistic sweep. Close must be called to stop it.
func WithJanitor(interval time.Duration) MemoryOption {
	return func(m *Memory) {
		m.interval = interval
	}
}

// NewMemory creates a new in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		sweepP:  DefaultSweepProbability,
		randFn:  rand.Float64,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.interval > 0 {
		m.sweepP = 0
		go m.janitor()
	}
	return m
}

// Hit records an attempt for key. See Store.Hit for the window rules.
//
// Note: The context parameter is accepted for interface compatibility but is not used.
func (m *Memory) Hit(_ context.Context, key string, limit int64, window time.Duration, now time.Time) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sweepP > 0 && m.randFn() < m.sweepP {
		m.sweepLocked(now)
	}

	entry, exists := m.entries[key]
	if !exists || entry.Expired(window, now) {
		entry = &memoryEntry{
			Entry: Entry{
				Count:        1,
				FirstAttempt: now,
				LastAttempt:  now,
			},
			window: window,
		}
		m.entries[key] = entry
		return entry.Entry, true, nil
	}

	if entry.Count >= limit {
		return entry.Entry, false, nil
	}

	entry.Count++
	entry.LastAttempt = now
	entry.window = window
	return entry.Entry, true, nil
}

// Get returns the entry for key without modifying it.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return Entry{}, false, nil
	}
	return entry.Entry, true, nil
}

// Reset removes the entry for key.
func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Len returns the number of tracked keys, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes every entry whose window has fully elapsed at now.
func (m *Memory) Sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(now)
}

// Close stops the janitor goroutine, if any, and drops all entries.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.mu.Lock()
	m.entries = make(map[string]*memoryEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) sweepLocked(now time.Time) {
	for key, entry := range m.entries {
		if entry.Expired(entry.window, now) {
			delete(m.entries, key)
		}
	}
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(time.Now())
		case <-m.stopCh:
			return
		}
	}
}
