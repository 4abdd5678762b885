// Package config loads server configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nhalm/authgate/captcha"
)

// Store kinds for RATE_LIMIT_STORE.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Identity providers for IDENTITY_PROVIDER.
const (
	ProviderGoTrue = "gotrue"
	ProviderMemory = "memory"
)

type Config struct {
	Env          string
	HTTPAddr     string
	SiteURL      string
	MaxBodyBytes int64
	AdminAPIKey  string
	AuditLogPath string

	Captcha  CaptchaConfig
	Identity IdentityConfig
	Storage  StorageConfig

	// DisposableDomainsExtra are added to the built-in disposable domain list.
	DisposableDomainsExtra []string
}

type CaptchaConfig struct {
	SecretKey string
	VerifyURL string
	Disabled  bool
	Timeout   time.Duration
}

type IdentityConfig struct {
	Provider string
	URL      string
	APIKey   string
	Timeout  time.Duration
}

type StorageConfig struct {
	Type  string
	Redis RedisConfig
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string
}

// Load reads .env when present, then the environment. Variables already set
// in the environment win over .env.
func Load() (Config, error) {
	_ = godotenv.Load()

	maxBody, err := strconv.ParseInt(getEnv("MAX_BODY_BYTES", "16384"), 10, 64)
	if err != nil || maxBody <= 0 {
		return Config{}, fmt.Errorf("invalid MAX_BODY_BYTES: %q", os.Getenv("MAX_BODY_BYTES"))
	}

	captchaCfg, err := buildCaptchaConfig()
	if err != nil {
		return Config{}, err
	}

	identityCfg, err := buildIdentityConfig()
	if err != nil {
		return Config{}, err
	}

	storageCfg, err := buildStorageConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Env:                    strings.ToLower(getEnv("APP_ENV", "production")),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		SiteURL:                strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/"),
		MaxBodyBytes:           maxBody,
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		AuditLogPath:           getEnv("AUDIT_LOG_PATH", ""),
		Captcha:                captchaCfg,
		Identity:               identityCfg,
		Storage:                storageCfg,
		DisposableDomainsExtra: splitList(os.Getenv("DISPOSABLE_DOMAINS_EXTRA")),
	}, nil
}

// IsDevelopment reports whether APP_ENV names a non-production environment.
func (c Config) IsDevelopment() bool {
	switch c.Env {
	case "development", "dev", "test", "local":
		return true
	}
	return false
}

// CaptchaPolicy picks the verifier policy: disabled when CAPTCHA_DISABLED is
// set, fail-open only in development, fail-closed otherwise.
func (c Config) CaptchaPolicy() captcha.Policy {
	switch {
	case c.Captcha.Disabled:
		return captcha.PolicyDisabled
	case c.IsDevelopment():
		return captcha.PolicyFailOpenInDev
	default:
		return captcha.PolicyFailClosed
	}
}

func buildCaptchaConfig() (CaptchaConfig, error) {
	disabled, err := strconv.ParseBool(getEnv("CAPTCHA_DISABLED", "false"))
	if err != nil {
		return CaptchaConfig{}, fmt.Errorf("invalid CAPTCHA_DISABLED: %w", err)
	}
	timeout, err := getSeconds("CAPTCHA_TIMEOUT_SECONDS", "10")
	if err != nil {
		return CaptchaConfig{}, err
	}

	return CaptchaConfig{
		SecretKey: os.Getenv("TURNSTILE_SECRET_KEY"),
		VerifyURL: getEnv("CAPTCHA_VERIFY_URL", captcha.DefaultEndpoint),
		Disabled:  disabled,
		Timeout:   timeout,
	}, nil
}

func buildIdentityConfig() (IdentityConfig, error) {
	provider := strings.ToLower(getEnv("IDENTITY_PROVIDER", ProviderGoTrue))
	if provider != ProviderGoTrue && provider != ProviderMemory {
		return IdentityConfig{}, fmt.Errorf("unsupported IDENTITY_PROVIDER: %s", provider)
	}
	timeout, err := getSeconds("IDENTITY_TIMEOUT_SECONDS", "10")
	if err != nil {
		return IdentityConfig{}, err
	}

	cfg := IdentityConfig{
		Provider: provider,
		URL:      getEnv("IDENTITY_URL", ""),
		APIKey:   os.Getenv("IDENTITY_API_KEY"),
		Timeout:  timeout,
	}
	if provider == ProviderGoTrue && cfg.URL == "" {
		return IdentityConfig{}, fmt.Errorf("IDENTITY_URL is required for the %s provider", provider)
	}
	return cfg, nil
}

func buildStorageConfig() (StorageConfig, error) {
	storeType := strings.ToLower(getEnv("RATE_LIMIT_STORE", StoreMemory))
	if storeType != StoreMemory && storeType != StoreRedis {
		return StorageConfig{}, fmt.Errorf("unsupported RATE_LIMIT_STORE: %s", storeType)
	}

	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return StorageConfig{
		Type: storeType,
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
			Prefix:   getEnv("REDIS_PREFIX", "authgate:rl:"),
		},
	}, nil
}

func getSeconds(key, fallback string) (time.Duration, error) {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return time.Duration(n) * time.Second, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
