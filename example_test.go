package authgate_test

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nhalm/authgate"
	"github.com/nhalm/authgate/ratelimit"
	"github.com/nhalm/authgate/store"
)

func ExampleHandler() {
	r := chi.NewRouter()
	r.Use(authgate.Handler(authgate.WithCanonlog()))

	r.Get("/healthz", func(_ http.ResponseWriter, r *http.Request) {
		authgate.SetResponse(r, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func ExampleRateLimit() {
	ipStore := store.NewMemory()
	defer ipStore.Close()
	emailStore := store.NewMemory()
	defer emailStore.Close()

	limiter, err := ratelimit.New(ipStore, emailStore)
	if err != nil {
		panic(err)
	}

	r := chi.NewRouter()
	r.Use(authgate.Handler())
	r.With(authgate.RateLimit(limiter, ratelimit.OpGeneral)).Post("/auth/validate-email", func(_ http.ResponseWriter, r *http.Request) {
		authgate.SetResponse(r, http.StatusOK, nil)
	})
}

func ExampleAPIKey() {
	r := chi.NewRouter()
	r.Use(authgate.Handler())
	r.Use(authgate.APIKey(authgate.StaticAPIKey("admin-secret")))
}

func ExampleJSON() {
	type request struct {
		Email string `json:"email" validate:"required"`
	}

	handler := func(_ http.ResponseWriter, r *http.Request) {
		var req request
		if !authgate.JSON(r, &req) {
			return
		}
		authgate.SetResponse(r, http.StatusOK, req)
	}
	_ = handler
}

func ExampleMaxBodySize() {
	r := chi.NewRouter()
	r.Use(authgate.Handler())
	r.Use(authgate.MaxBodySize(authgate.DefaultMaxBodyBytes))
}
