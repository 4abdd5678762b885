package ratelimit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nhalm/authgate/ratelimit"
	"github.com/nhalm/authgate/store"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(t *testing.T, opts ...ratelimit.Option) (*ratelimit.Limiter, *store.Memory, *store.Memory, *clock) {
	t.Helper()

	clk := &clock{now: time.UnixMilli(1_700_000_000_000)}
	ipStore := store.NewMemory(store.WithSweepProbability(0))
	emailStore := store.NewMemory(store.WithSweepProbability(0))
	t.Cleanup(func() {
		ipStore.Close()
		emailStore.Close()
	})

	opts = append([]ratelimit.Option{ratelimit.WithClock(clk.Now)}, opts...)
	l, err := ratelimit.New(ipStore, emailStore, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, ipStore, emailStore, clk
}

func TestCheckLimit_DeniesAfterMaxRequests(t *testing.T) {
	l, ipStore, _, _ := newTestLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.Config{MaxRequests: 3, Window: time.Minute}

	for i := int64(1); i <= 3; i++ {
		res, err := l.CheckLimit(ctx, ipStore, "ip:10.0.0.1", cfg)
		if err != nil {
			t.Fatalf("CheckLimit() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d: expected allowed", i)
		}
		if res.Remaining != 3-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, res.Remaining, 3-i)
		}
		if res.RetryAfterSeconds != 0 {
			t.Errorf("request %d: RetryAfterSeconds = %d, want 0", i, res.RetryAfterSeconds)
		}
	}

	res, err := l.CheckLimit(ctx, ipStore, "ip:10.0.0.1", cfg)
	if err != nil {
		t.Fatalf("CheckLimit() error = %v", err)
	}
	if res.Allowed {
		t.Error("expected request over the limit to be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfterSeconds != 60 {
		t.Errorf("RetryAfterSeconds = %d, want 60", res.RetryAfterSeconds)
	}
}

func TestCheckLimit_WindowResets(t *testing.T) {
	l, ipStore, _, clk := newTestLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.Config{MaxRequests: 2, Window: time.Minute}

	for range 3 {
		if _, err := l.CheckLimit(ctx, ipStore, "ip:10.0.0.1", cfg); err != nil {
			t.Fatalf("CheckLimit() error = %v", err)
		}
	}

	clk.Advance(time.Minute)
	res, _ := l.CheckLimit(ctx, ipStore, "ip:10.0.0.1", cfg)
	if res.Allowed {
		t.Error("expected denial exactly at the window boundary")
	}

	clk.Advance(time.Millisecond)
	res, _ = l.CheckLimit(ctx, ipStore, "ip:10.0.0.1", cfg)
	if !res.Allowed {
		t.Fatal("expected allowed once the window elapsed")
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1 after reset", res.Remaining)
	}
	entry, _, _ := ipStore.Get(ctx, "ip:10.0.0.1")
	if entry.Count != 1 {
		t.Errorf("Count = %d, want 1 after reset", entry.Count)
	}
}

func TestCheckLimit_RetryAfterRoundsUp(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{name: "fresh window", elapsed: 0, want: 60},
		{name: "partial second left", elapsed: 59*time.Second + 1*time.Millisecond, want: 1},
		{name: "fraction rounds up", elapsed: 30*time.Second + 500*time.Millisecond, want: 30},
		{name: "boundary", elapsed: time.Minute, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, ipStore, _, clk := newTestLimiter(t)
			ctx := context.Background()
			cfg := ratelimit.Config{MaxRequests: 1, Window: time.Minute}

			if _, err := l.CheckLimit(ctx, ipStore, "k", cfg); err != nil {
				t.Fatalf("CheckLimit() error = %v", err)
			}
			clk.Advance(tt.elapsed)

			res, err := l.CheckLimit(ctx, ipStore, "k", cfg)
			if err != nil {
				t.Fatalf("CheckLimit() error = %v", err)
			}
			if res.Allowed {
				t.Fatal("expected denial")
			}
			if res.RetryAfterSeconds != tt.want {
				t.Errorf("RetryAfterSeconds = %d, want %d", res.RetryAfterSeconds, tt.want)
			}
			if res.RetryAfterSeconds < 0 {
				t.Error("RetryAfterSeconds must never be negative")
			}
		})
	}
}

func TestCheckLimit_DeniedRequestsDoNotExtendWindow(t *testing.T) {
	l, ipStore, _, clk := newTestLimiter(t)
	ctx := context.Background()
	cfg := ratelimit.Config{MaxRequests: 1, Window: time.Minute}

	first, _ := l.CheckLimit(ctx, ipStore, "k", cfg)
	for range 5 {
		clk.Advance(5 * time.Second)
		res, _ := l.CheckLimit(ctx, ipStore, "k", cfg)
		if !res.ResetAt.Equal(first.ResetAt) {
			t.Fatalf("ResetAt moved from %v to %v", first.ResetAt, res.ResetAt)
		}
	}
}

func TestCheckAuth_IPDenialSkipsEmailStore(t *testing.T) {
	l, _, emailStore, _ := newTestLimiter(t, ratelimit.WithProfile(ratelimit.OpSignup, ratelimit.Profile{
		IP:    ratelimit.Config{MaxRequests: 2, Window: time.Hour},
		Email: ratelimit.Config{MaxRequests: 10, Window: time.Hour},
	}))
	ctx := context.Background()

	for range 2 {
		if _, err := l.CheckAuth(ctx, "1.2.3.4", "first@example.com", ratelimit.OpSignup); err != nil {
			t.Fatalf("CheckAuth() error = %v", err)
		}
	}

	res, err := l.CheckAuth(ctx, "1.2.3.4", "victim@example.com", ratelimit.OpSignup)
	if err != nil {
		t.Fatalf("CheckAuth() error = %v", err)
	}
	if res.Allowed {
		t.Fatal("expected IP denial")
	}
	if res.Scope != ratelimit.ScopeIP {
		t.Errorf("Scope = %q, want %q", res.Scope, ratelimit.ScopeIP)
	}
	if _, ok, _ := emailStore.Get(ctx, ratelimit.EmailKey("victim@example.com")); ok {
		t.Error("email store entry created despite IP denial")
	}
}

func TestCheckAuth_EmailDenial(t *testing.T) {
	l, _, _, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := ratelimit.DefaultProfiles()[ratelimit.OpReset].Email.MaxRequests

	for i := range limit {
		res, err := l.CheckAuth(ctx, fmt.Sprintf("10.0.0.%d", i+1), "User@Example.com", ratelimit.OpReset)
		if err != nil || !res.Allowed {
			t.Fatalf("attempt %d: allowed=%v err=%v", i+1, res.Allowed, err)
		}
	}

	res, err := l.CheckAuth(ctx, "10.0.0.9", " user@example.com ", ratelimit.OpReset)
	if err != nil {
		t.Fatalf("CheckAuth() error = %v", err)
	}
	if res.Allowed {
		t.Fatal("expected email denial across case variants")
	}
	if res.Scope != ratelimit.ScopeEmail {
		t.Errorf("Scope = %q, want %q", res.Scope, ratelimit.ScopeEmail)
	}
	if res.RetryAfterSeconds <= 0 {
		t.Errorf("RetryAfterSeconds = %d, want > 0", res.RetryAfterSeconds)
	}
}

func TestCheckAuth_CombinesRemainingAndReset(t *testing.T) {
	l, _, _, clk := newTestLimiter(t, ratelimit.WithProfile(ratelimit.OpResend, ratelimit.Profile{
		IP:    ratelimit.Config{MaxRequests: 10, Window: time.Hour},
		Email: ratelimit.Config{MaxRequests: 3, Window: 2 * time.Hour},
	}))
	ctx := context.Background()

	res, err := l.CheckAuth(ctx, "1.2.3.4", "a@example.com", ratelimit.OpResend)
	if err != nil {
		t.Fatalf("CheckAuth() error = %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected allowed")
	}
	if res.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2 (min of 9 and 2)", res.Remaining)
	}
	if want := clk.Now().Add(2 * time.Hour); !res.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want later reset %v", res.ResetAt, want)
	}
}

func TestCheckIP(t *testing.T) {
	l, _, emailStore, _ := newTestLimiter(t, ratelimit.WithProfile(ratelimit.OpGeneral, ratelimit.Profile{
		IP:    ratelimit.Config{MaxRequests: 1, Window: time.Minute},
		Email: ratelimit.Config{MaxRequests: 1, Window: time.Minute},
	}))
	ctx := context.Background()

	if res, _ := l.CheckIP(ctx, "1.2.3.4", ratelimit.OpGeneral); !res.Allowed {
		t.Fatal("expected first request allowed")
	}
	if res, _ := l.CheckIP(ctx, "1.2.3.4", ratelimit.OpGeneral); res.Allowed {
		t.Error("expected second request denied")
	}
	if emailStore.Len() != 0 {
		t.Errorf("email store touched by CheckIP: %d entries", emailStore.Len())
	}
}

func TestInspectAndReset(t *testing.T) {
	l, _, _, _ := newTestLimiter(t)
	ctx := context.Background()

	if _, err := l.CheckAuth(ctx, "1.2.3.4", "a@example.com", ratelimit.OpSignup); err != nil {
		t.Fatalf("CheckAuth() error = %v", err)
	}

	entry, ok, err := l.Inspect(ctx, ratelimit.ScopeEmail, "A@Example.com")
	if err != nil || !ok {
		t.Fatalf("Inspect() ok=%v err=%v", ok, err)
	}
	if entry.Count != 1 {
		t.Errorf("Count = %d, want 1", entry.Count)
	}

	if err := l.Reset(ctx, ratelimit.ScopeIP, "1.2.3.4"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, ok, _ := l.Inspect(ctx, ratelimit.ScopeIP, "1.2.3.4"); ok {
		t.Error("expected ip entry removed")
	}

	if _, _, err := l.Inspect(ctx, ratelimit.Scope("device"), "x"); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestNew_RejectsInvalidProfiles(t *testing.T) {
	ipStore := store.NewMemory()
	emailStore := store.NewMemory()
	defer ipStore.Close()
	defer emailStore.Close()

	_, err := ratelimit.New(ipStore, emailStore, ratelimit.WithProfile(ratelimit.OpSignup, ratelimit.Profile{
		IP:    ratelimit.Config{MaxRequests: 0, Window: time.Hour},
		Email: ratelimit.Config{MaxRequests: 1, Window: time.Hour},
	}))
	if err == nil {
		t.Fatal("expected error for zero max requests")
	}

	if _, err := ratelimit.New(nil, emailStore); err == nil {
		t.Fatal("expected error for missing store")
	}
}

type failingStore struct {
	store.Store
}

func (failingStore) Hit(context.Context, string, int64, time.Duration, time.Time) (store.Entry, bool, error) {
	return store.Entry{}, false, errors.New("connection refused")
}

func TestCheckAuth_StoreError(t *testing.T) {
	emailStore := store.NewMemory()
	defer emailStore.Close()

	l, err := ratelimit.New(failingStore{}, emailStore)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := l.CheckAuth(context.Background(), "1.2.3.4", "a@example.com", ratelimit.OpSignup); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "Too many attempts. Please try again in 1 second."},
		{1, "Too many attempts. Please try again in 1 second."},
		{45, "Too many attempts. Please try again in 45 seconds."},
		{60, "Too many attempts. Please try again in 60 seconds."},
		{61, "Too many attempts. Please try again in 2 minutes."},
		{3600, "Too many attempts. Please try again in 60 minutes."},
		{3601, "Too many attempts. Please try again in 2 hours."},
		{7200, "Too many attempts. Please try again in 2 hours."},
	}

	for _, tt := range tests {
		if got := ratelimit.Message(tt.seconds); got != tt.want {
			t.Errorf("Message(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
