package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/cache"
	"github.com/usermgmt/usermgmt/internal/metrics"
)

// Rate limit scopes, used as metric labels.
const (
	ScopeLogin = "login"
	ScopeAPI   = "api"
)

// RateLimiter is the subset of *cache.Cache used by the rate limit middleware.
type RateLimiter interface {
	CheckLoginRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter
	Metrics metrics.Recorder

	// Login attempts per client IP
	LoginEnabled   bool
	LoginPerMinute int
	LoginBurst     int

	// Gated API requests per authenticated user
	APIEnabled   bool
	APIPerMinute int
	APIBurst     int
}

// RateLimitLogin returns middleware that rate limits login attempts per client IP.
func RateLimitLogin(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.LoginEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r)
			result, err := cfg.Limiter.CheckLoginRateLimit(r.Context(), ip, cfg.LoginPerMinute, cfg.LoginBurst)
			cfg.apply(w, r, next, ScopeLogin, cfg.LoginPerMinute, result, err)
		})
	}
}

// RateLimitAPI returns middleware that rate limits API requests per user.
// Must be applied after Auth middleware.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.APIEnabled {
				next.ServeHTTP(w, r)
				return
			}

			userID := auth.UserIDFromContext(r.Context())
			if userID == "" {
				// No auth context - should not happen if Auth middleware ran first
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.CheckUserRateLimit(r.Context(), userID, cfg.APIPerMinute, cfg.APIBurst)
			cfg.apply(w, r, next, ScopeAPI, cfg.APIPerMinute, result, err)
		})
	}
}

func (cfg RateLimitConfig) apply(
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
	scope string,
	limit int,
	result *cache.RateLimitResult,
	err error,
) {
	if err != nil {
		cfg.Logger.Error("rate limit check failed",
			slog.String("error", err.Error()),
			slog.String("type", scope),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		// Fail open - allow request
		next.ServeHTTP(w, r)
		return
	}

	setRateLimitHeaders(w, limit, result.Remaining, result.ResetAt)

	if !result.Allowed {
		cfg.Logger.Warn("rate limit exceeded",
			slog.String("type", scope),
			slog.String("user_id", auth.UserIDFromContext(r.Context())),
			slog.String("key_id", auth.KeyIDFromContext(r.Context())),
			slog.String("ip", r.RemoteAddr),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		if cfg.Metrics != nil {
			cfg.Metrics.IncRateLimited(scope)
		}

		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
		writeRateLimitError(w, result.RetryAfter)
		return
	}

	next.ServeHTTP(w, r)
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
	}
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", int(retryAfter.Seconds())))
}

// getClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers for proxied requests,
// then falls back to RemoteAddr without its port.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
