// Package captcha verifies challenge tokens against a siteverify endpoint.
//
// Verification fails closed: any transport, status or decode error is a
// failed verification. Behavior when no secret is configured is chosen with a
// Policy rather than read from the environment.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the Cloudflare Turnstile verification URL.
const DefaultEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// DefaultTimeout bounds one verification round trip.
const DefaultTimeout = 10 * time.Second

// Policy selects what happens when no secret is configured.
type Policy int

const (
	// PolicyFailClosed rejects every token when no secret is configured.
	PolicyFailClosed Policy = iota
	// PolicyFailOpenInDev accepts every token when no secret is configured.
	PolicyFailOpenInDev
	// PolicyDisabled accepts every token without contacting the endpoint.
	PolicyDisabled
)

func (p Policy) String() string {
	switch p {
	case PolicyFailClosed:
		return "fail_closed"
	case PolicyFailOpenInDev:
		return "fail_open_in_dev"
	case PolicyDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Verifier checks tokens for one site secret. It is safe for concurrent use.
type Verifier struct {
	secret   string
	endpoint string
	policy   Policy
	client   *http.Client
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithEndpoint sets the siteverify URL.
func WithEndpoint(endpoint string) Option {
	return func(v *Verifier) {
		v.endpoint = endpoint
	}
}

// WithPolicy sets the missing-secret policy. Defaults to PolicyFailClosed.
func WithPolicy(p Policy) Option {
	return func(v *Verifier) {
		v.policy = p
	}
}

// WithHTTPClient sets the client used for verification requests. nil is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithTimeout sets the timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		v.client = &http.Client{Timeout: d}
	}
}

// New creates a Verifier for secret. An empty secret is allowed; what it means
// depends on the Policy.
func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:   strings.TrimSpace(secret),
		endpoint: DefaultEndpoint,
		policy:   PolicyFailClosed,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the configured policy.
func (v *Verifier) Policy() Policy {
	return v.policy
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
	Action     string   `json:"action"`
}

// Verify reports whether token is accepted for clientIP.
func (v *Verifier) Verify(ctx context.Context, token, clientIP string) bool {
	if v.policy == PolicyDisabled {
		return true
	}
	if v.secret == "" {
		if v.policy == PolicyFailOpenInDev {
			return true
		}
		slog.WarnContext(ctx, "captcha verification rejected: no secret configured")
		return false
	}
	if strings.TrimSpace(token) == "" {
		slog.WarnContext(ctx, "captcha verification failed", "error_codes", []string{"missing-input-response"})
		return false
	}

	res, err := v.siteverify(ctx, token, clientIP)
	if err != nil {
		slog.WarnContext(ctx, "captcha verification error", "error", err)
		return false
	}
	if !res.Success {
		slog.WarnContext(ctx, "captcha verification failed", "error_codes", res.ErrorCodes)
		return false
	}
	return true
}

func (v *Verifier) siteverify(ctx context.Context, token, clientIP string) (siteverifyResponse, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return siteverifyResponse{}, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return siteverifyResponse{}, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return siteverifyResponse{}, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return siteverifyResponse{}, fmt.Errorf("decode siteverify response: %w", err)
	}
	return out, nil
}
