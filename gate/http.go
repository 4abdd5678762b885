package gate

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/authgate"
	"github.com/nhalm/authgate/ratelimit"
)

// RoutesConfig wires the HTTP surface.
type RoutesConfig struct {
	// GeneralLimiter limits /auth/validate-email per IP under ratelimit.OpGeneral.
	// Nil leaves the endpoint unlimited.
	GeneralLimiter *ratelimit.Limiter
	// AdminLimiter is inspected and reset by the admin routes. The admin routes
	// are mounted only when both AdminLimiter and AdminAPIKey are set.
	AdminLimiter *ratelimit.Limiter
	AdminAPIKey  string
	// MaxBodyBytes defaults to authgate.DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

type signUpRequest struct {
	Email        string `json:"email" validate:"max=1024"`
	Password     string `json:"password" validate:"max=1024"`
	CaptchaToken string `json:"captchaToken" validate:"max=4096"`
}

type emailRequest struct {
	Email        string `json:"email" validate:"max=1024"`
	CaptchaToken string `json:"captchaToken" validate:"max=4096"`
}

type validateEmailRequest struct {
	Email           string `json:"email" validate:"max=1024"`
	BlockDisposable bool   `json:"blockDisposable"`
}

type validateEmailResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type entryResponse struct {
	Scope        ratelimit.Scope `json:"scope"`
	Value        string          `json:"value"`
	Count        int64           `json:"count"`
	FirstAttempt time.Time       `json:"firstAttempt"`
	LastAttempt  time.Time       `json:"lastAttempt"`
}

// Routes returns the HTTP handler for the auth endpoints:
//
//	POST   /auth/signup
//	POST   /auth/forgot-password
//	POST   /auth/resend-confirmation
//	POST   /auth/validate-email
//	GET    /admin/ratelimit/{scope}/{value}
//	DELETE /admin/ratelimit/{scope}/{value}
//	GET    /healthz
func (s *Service) Routes(cfg RoutesConfig) http.Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = authgate.DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(authgate.Handler(authgate.WithCanonlog()))
	r.NotFound(authgate.NotFound)
	r.MethodNotAllowed(authgate.MethodNotAllowed)

	r.With(authgate.LatencyBudget(authgate.BudgetLocal)).Get("/healthz", func(_ http.ResponseWriter, r *http.Request) {
		authgate.SetResponse(r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(authgate.MaxBodySize(maxBody))
		r.Use(authgate.Binder())

		r.Group(func(r chi.Router) {
			r.Use(authgate.LatencyBudget(authgate.BudgetUpstream))
			r.Post("/signup", s.handleSignUp)
			r.Post("/forgot-password", s.handleForgotPassword)
			r.Post("/resend-confirmation", s.handleResendConfirmation)
		})

		validate := r.With(authgate.LatencyBudget(authgate.BudgetLocal))
		if cfg.GeneralLimiter != nil {
			validate = validate.With(authgate.RateLimit(cfg.GeneralLimiter, ratelimit.OpGeneral))
		}
		validate.Post("/validate-email", s.handleValidateEmail)
	})

	if cfg.AdminLimiter != nil && cfg.AdminAPIKey != "" {
		admin := &adminHandlers{limiter: cfg.AdminLimiter}
		r.Route("/admin", func(r chi.Router) {
			r.Use(authgate.APIKey(authgate.StaticAPIKey(cfg.AdminAPIKey)))
			r.Use(authgate.LatencyBudget(authgate.BudgetLocal))
			r.Get("/ratelimit/{scope}/{value}", admin.inspect)
			r.Delete("/ratelimit/{scope}/{value}", admin.reset)
		})
	}

	return r
}

func (s *Service) handleSignUp(_ http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !authgate.JSON(r, &req) {
		return
	}
	writeResult(r, s.SignUp(r.Context(), authgate.ClientIP(r), req.Email, req.Password, req.CaptchaToken))
}

func (s *Service) handleForgotPassword(_ http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !authgate.JSON(r, &req) {
		return
	}
	writeResult(r, s.ForgotPassword(r.Context(), authgate.ClientIP(r), req.Email, req.CaptchaToken))
}

func (s *Service) handleResendConfirmation(_ http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !authgate.JSON(r, &req) {
		return
	}
	writeResult(r, s.ResendConfirmation(r.Context(), authgate.ClientIP(r), req.Email, req.CaptchaToken))
}

func (s *Service) handleValidateEmail(_ http.ResponseWriter, r *http.Request) {
	var req validateEmailRequest
	if !authgate.JSON(r, &req) {
		return
	}
	resp := validateEmailResponse{Valid: true}
	if err := s.ValidateEmail(req.Email, req.BlockDisposable); err != nil {
		resp = validateEmailResponse{Valid: false, Error: err.Error()}
	}
	authgate.SetResponse(r, http.StatusOK, resp)
}

// StatusFor maps a Result to its HTTP status.
func StatusFor(res Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case errors.Is(res.Err, ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(res.Err, ErrCaptchaFailed):
		return http.StatusForbidden
	case errors.Is(res.Err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(res.Err, ErrWeakPassword), errors.Is(res.Err, ErrProvider):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(r *http.Request, res Result) {
	if res.RateLimited {
		authgate.SetHeader(r, "Retry-After", strconv.Itoa(res.RetryAfter))
	}
	authgate.SetResponse(r, StatusFor(res), res)
}

type adminHandlers struct {
	limiter *ratelimit.Limiter
}

func adminScope(r *http.Request) (ratelimit.Scope, string, bool) {
	scope := ratelimit.Scope(chi.URLParam(r, "scope"))
	value := chi.URLParam(r, "value")
	if scope != ratelimit.ScopeIP && scope != ratelimit.ScopeEmail {
		authgate.SetError(r, authgate.ErrBadRequest.With("scope must be ip or email"))
		return "", "", false
	}
	if value == "" {
		authgate.SetError(r, authgate.ErrBadRequest.With("value is required"))
		return "", "", false
	}
	return scope, value, true
}

func (h *adminHandlers) inspect(_ http.ResponseWriter, r *http.Request) {
	scope, value, ok := adminScope(r)
	if !ok {
		return
	}
	entry, found, err := h.limiter.Inspect(r.Context(), scope, value)
	if err != nil {
		authgate.SetError(r, authgate.ErrServiceUnavailable.With("Rate limit store unavailable"))
		return
	}
	if !found {
		authgate.SetError(r, authgate.ErrNotFound.With("No rate limit entry"))
		return
	}
	authgate.SetResponse(r, http.StatusOK, entryResponse{
		Scope:        scope,
		Value:        value,
		Count:        entry.Count,
		FirstAttempt: entry.FirstAttempt,
		LastAttempt:  entry.LastAttempt,
	})
}

func (h *adminHandlers) reset(_ http.ResponseWriter, r *http.Request) {
	scope, value, ok := adminScope(r)
	if !ok {
		return
	}
	if err := h.limiter.Reset(r.Context(), scope, value); err != nil {
		authgate.SetError(r, authgate.ErrServiceUnavailable.With("Rate limit store unavailable"))
		return
	}
	authgate.SetResponse(r, http.StatusNoContent, nil)
}
