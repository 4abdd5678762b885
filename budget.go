package authgate

import (
	"context"
	"net/http"
	"time"
)

// Budget is a latency target for a class of routes. Handler logs the class,
// the target and whether the request met it.
type Budget struct {
	Class  string
	Target time.Duration
}

var (
	// BudgetLocal is for routes answered from process state or the rate-limit store.
	BudgetLocal = Budget{Class: "local", Target: 100 * time.Millisecond}

	// BudgetUpstream is for routes that call the CAPTCHA service and the identity provider.
	BudgetUpstream = Budget{Class: "upstream", Target: 2 * time.Second}
)

func (b *Budget) fields(elapsed time.Duration) map[string]any {
	status := "PASS"
	if elapsed > b.Target {
		status = "FAIL"
	}
	return map[string]any{
		"latency_budget":        b.Class,
		"latency_budget_ms":     b.Target.Milliseconds(),
		"latency_budget_status": status,
	}
}

// LatencyBudget attaches b to the request's Handler state. Without Handler it
// does nothing.
func LatencyBudget(b Budget) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if state := getState(r.Context()); state != nil {
				state.mu.Lock()
				state.budget = &b
				state.mu.Unlock()
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BudgetFromContext returns the budget attached by LatencyBudget.
func BudgetFromContext(ctx context.Context) (Budget, bool) {
	state := getState(ctx)
	if state == nil {
		return Budget{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.budget == nil {
		return Budget{}, false
	}
	return *state.budget, true
}
