package authgate

// Request body binding with struct tag validation using go-playground/validator/v10.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type bindContextKey string

const bindConfigKey bindContextKey = "bind_config"

var (
	validate          *validator.Validate
	defaultBindConfig = &bindConfig{formatter: defaultFormatter}
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
}

// MessageFormatter generates a human-readable message from a validation error.
// Parameters: field name, validation tag, tag parameter (e.g., "6" from "min=6")
type MessageFormatter func(field, tag, param string) string

type bindConfig struct {
	formatter MessageFormatter
}

// BindOption configures the Binder middleware.
type BindOption func(*bindConfig)

// BindWithFormatter sets a custom message formatter for validation errors.
func BindWithFormatter(fn MessageFormatter) BindOption {
	return func(c *bindConfig) {
		c.formatter = fn
	}
}

// Binder returns middleware that installs binding options for JSON.
func Binder(opts ...BindOption) func(http.Handler) http.Handler {
	cfg := &bindConfig{formatter: defaultFormatter}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), bindConfigKey, cfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getBindConfig(ctx context.Context) *bindConfig {
	if cfg, ok := ctx.Value(bindConfigKey).(*bindConfig); ok {
		return cfg
	}
	return defaultBindConfig
}

func defaultFormatter(_, tag, param string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of: " + param
	default:
		if param != "" {
			return tag + "=" + param
		}
		return tag
	}
}

// JSON decodes the request body into dest and validates it.
// Returns true if binding and validation succeeded, false otherwise.
// On failure an error is set through Handler state (if present).
//
// With MaxBodySize in the chain, a body that exceeds the limit during decode
// yields ErrPayloadTooLarge (413).
func JSON(r *http.Request, dest any) bool {
	ctx := r.Context()

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if HasState(ctx) {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				SetError(r, ErrPayloadTooLarge.With("Request body too large"))
			} else {
				SetError(r, ErrBadRequest.With("Invalid JSON request body"))
			}
		}
		return false
	}

	if err := validate.Struct(dest); err != nil {
		if HasState(ctx) {
			cfg := getBindConfig(ctx)
			SetError(r, NewValidationError(translateErrors(err, cfg.formatter)))
		}
		return false
	}

	return true
}

func translateErrors(err error, formatter MessageFormatter) []FieldError {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []FieldError{{
			Param:   "",
			Code:    "validation",
			Message: err.Error(),
		}}
	}
	result := make([]FieldError, len(errs))
	for i, e := range errs {
		result[i] = FieldError{
			Param:   e.Field(),
			Code:    e.Tag(),
			Message: formatter(e.Field(), e.Tag(), e.Param()),
		}
	}
	return result
}
