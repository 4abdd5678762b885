package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds one provider round trip.
const DefaultTimeout = 10 * time.Second

// GoTrue is a Provider for GoTrue-compatible auth APIs.
type GoTrue struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// GoTrueOption configures a GoTrue client.
type GoTrueOption func(*GoTrue)

// WithHTTPClient sets the client used for provider calls. nil is ignored.
func WithHTTPClient(c *http.Client) GoTrueOption {
	return func(g *GoTrue) {
		if c != nil {
			g.client = c
		}
	}
}

// WithTimeout sets the timeout of the default client.
func WithTimeout(d time.Duration) GoTrueOption {
	return func(g *GoTrue) {
		g.client = &http.Client{Timeout: d}
	}
}

// NewGoTrue creates a client for the auth API at baseURL (for example
// "https://project.supabase.co/auth/v1"). apiKey is sent as both the apikey
// header and the bearer token.
func NewGoTrue(baseURL, apiKey string, opts ...GoTrueOption) (*GoTrue, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid identity url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid identity url %q: scheme must be http or https", baseURL)
	}

	g := &GoTrue{
		baseURL: strings.TrimRight(u.String(), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GoTrue) SignUp(ctx context.Context, email, password, redirectURL string) error {
	body := map[string]string{"email": email, "password": password}
	return g.post(ctx, "/signup", redirectURL, body)
}

func (g *GoTrue) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	body := map[string]string{"email": email}
	return g.post(ctx, "/recover", redirectURL, body)
}

func (g *GoTrue) ResendConfirmation(ctx context.Context, email, redirectURL string) error {
	body := map[string]string{"type": "signup", "email": email}
	return g.post(ctx, "/resend", redirectURL, body)
}

func (g *GoTrue) post(ctx context.Context, path, redirectURL string, body any) error {
	endpoint := g.baseURL + path
	if redirectURL != "" {
		endpoint += "?" + url.Values{"redirect_to": {redirectURL}}.Encode()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("apikey", g.apiKey)
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return parseError(resp)
}

// errorBody covers the shapes GoTrue has used across versions.
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	pe := &Error{Status: resp.StatusCode}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		pe.Code = body.ErrorCode
		if pe.Code == "" {
			if s, ok := body.Code.(string); ok {
				pe.Code = s
			}
		}
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				pe.Message = m
				break
			}
		}
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}
	return pe
}
