package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/metrics"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/service"
)

// APIKeyHeader is the request header carrying the API key.
const APIKeyHeader = "apikey"

// Gate rejection codes and messages.
const (
	CodeAPIKeyMissing = "API_KEY_MISSING"
	CodeAPIKeyInvalid = "API_KEY_INVALID"
	CodeAPIKeyExpired = "API_KEY_EXPIRED"

	MsgAPIKeyMissing = "API Key is missing."
	MsgAPIKeyInvalid = "API Key is invalid."
	MsgAPIKeyExpired = "API Key is expired."
)

// KeyValidator checks presented API keys.
type KeyValidator interface {
	Validate(ctx context.Context, keyValue string) (*model.APIKey, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger    *slog.Logger
	Validator KeyValidator
	Metrics   metrics.Recorder
}

// Auth returns a middleware that admits only requests carrying a valid,
// unexpired API key in the apikey header. On success the owning user is
// available through auth.AuthFromContext.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_key"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				recorder.IncKeyValidation(metrics.KeyMissing)
				writeJSONError(w, http.StatusUnauthorized, CodeAPIKeyMissing, MsgAPIKeyMissing)
				return
			}

			apiKey, err := cfg.Validator.Validate(r.Context(), key)
			if err != nil {
				reason, code, msg, result := "invalid_key", CodeAPIKeyInvalid, MsgAPIKeyInvalid, metrics.KeyInvalid
				switch {
				case errors.Is(err, service.ErrKeyExpired):
					reason, code, msg, result = "expired_key", CodeAPIKeyExpired, MsgAPIKeyExpired, metrics.KeyExpired
				case !errors.Is(err, service.ErrKeyInvalid):
					cfg.Logger.Error("key validation error",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
				}

				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("key_fingerprint", auth.QuickHash(key)),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				recorder.IncKeyValidation(result)
				writeJSONError(w, http.StatusUnauthorized, code, msg)
				return
			}

			authCtx := &model.AuthContext{
				KeyID:  apiKey.ID,
				UserID: apiKey.UserID,
			}

			cfg.Logger.Debug("authentication successful",
				slog.String("key_id", authCtx.KeyID),
				slog.String("user_id", authCtx.UserID),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			recorder.IncKeyValidation(metrics.KeyValid)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
