// Command authgate serves the abuse-protected auth endpoints in front of a
// GoTrue-compatible identity provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nhalm/authgate/captcha"
	"github.com/nhalm/authgate/config"
	"github.com/nhalm/authgate/email"
	"github.com/nhalm/authgate/gate"
	"github.com/nhalm/authgate/identity"
	"github.com/nhalm/authgate/ratelimit"
	"github.com/nhalm/authgate/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("authgate exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stores, err := initStores(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init rate limit store: %w", err)
	}
	defer stores.close()

	authLimiter, err := ratelimit.New(stores.ip, stores.email)
	if err != nil {
		return err
	}
	generalLimiter, err := ratelimit.New(stores.general, stores.general)
	if err != nil {
		return err
	}

	provider, err := initProvider(cfg.Identity)
	if err != nil {
		return fmt.Errorf("init identity provider: %w", err)
	}

	verifier := captcha.New(cfg.Captcha.SecretKey,
		captcha.WithEndpoint(cfg.Captcha.VerifyURL),
		captcha.WithPolicy(cfg.CaptchaPolicy()),
		captcha.WithTimeout(cfg.Captcha.Timeout),
	)

	sink, closeSink, err := initSink(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer closeSink()

	svc, err := gate.New(authLimiter, verifier, provider,
		gate.WithSiteURL(cfg.SiteURL),
		gate.WithEventSink(sink),
		gate.WithEmailPolicy(email.NewPolicy(email.WithDisposableDomains(cfg.DisposableDomainsExtra...))),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: svc.Routes(gate.RoutesConfig{
			GeneralLimiter: generalLimiter,
			AdminLimiter:   authLimiter,
			AdminAPIKey:    cfg.AdminAPIKey,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	slog.Info("authgate listening",
		"addr", cfg.HTTPAddr,
		"env", cfg.Env,
		"rate_limit_store", cfg.Storage.Type,
		"identity_provider", cfg.Identity.Provider,
		"captcha_policy", verifier.Policy().String(),
		"admin_routes", cfg.AdminAPIKey != "",
	)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

type rateLimitStores struct {
	ip, email, general store.Store
	closers            []io.Closer
}

func (s *rateLimitStores) close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close rate limit store", "error", err)
		}
	}
}

// initStores keeps validate-email counters apart from the auth counters so
// the general limit never spends sign-up attempts.
func initStores(cfg config.StorageConfig) (*rateLimitStores, error) {
	switch cfg.Type {
	case config.StoreRedis:
		auth, err := store.NewRedis(store.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		general, err := store.NewRedis(store.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix + "general:",
		})
		if err != nil {
			_ = auth.Close()
			return nil, err
		}
		return &rateLimitStores{ip: auth, email: auth, general: general, closers: []io.Closer{auth, general}}, nil
	case config.StoreMemory:
		ip := store.NewMemory(store.WithJanitor(time.Minute))
		em := store.NewMemory(store.WithJanitor(time.Minute))
		general := store.NewMemory(store.WithJanitor(time.Minute))
		return &rateLimitStores{ip: ip, email: em, general: general, closers: []io.Closer{ip, em, general}}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func initProvider(cfg config.IdentityConfig) (identity.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGoTrue:
		return identity.NewGoTrue(cfg.URL, cfg.APIKey, identity.WithTimeout(cfg.Timeout))
	case config.ProviderMemory:
		slog.Warn("using in-memory identity provider; accounts are lost on restart")
		return identity.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported identity provider: %s", cfg.Provider)
	}
}

func initSink(path string) (gate.EventSink, func(), error) {
	if path == "" {
		return gate.NoOpSink{}, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return gate.NewJSONWriterSink(f), func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close audit log", "error", err)
		}
	}, nil
}
