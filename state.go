// Package authgate is an abuse-resistant front door for account creation and
// account email endpoints.
//
// The root package holds the HTTP plumbing shared by every route: the Handler
// middleware that owns response state, JSON binding, body limits, client IP
// resolution and the rate-limit and API-key middleware. The auth pipeline
// itself lives in package gate.
package authgate

import (
	"context"
	"net/http"
	"sync"
)

type stateContextKey string

const stateKey stateContextKey = "authgate_state"

// State holds the response state for a request.
type State struct {
	mu        sync.Mutex
	err       *APIError
	status    int
	body      any
	headers   http.Header
	requestID string
	budget    *Budget
}

// HasState returns true if Handler state exists in the context.
func HasState(ctx context.Context) bool {
	return getState(ctx) != nil
}

// RequestIDFromContext returns the ID Handler assigned to the request.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	state := getState(ctx)
	if state == nil || state.requestID == "" {
		return "", false
	}
	return state.requestID, true
}

func getState(ctx context.Context) *State {
	state, _ := ctx.Value(stateKey).(*State)
	return state
}
