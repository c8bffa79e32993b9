package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/stowbox/stowbox/internal/cache"
)

// IPLimiter spends one token from a client IP's budget for a scope.
type IPLimiter interface {
	CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitedCounter counts rejected requests.
type RateLimitedCounter interface {
	IncRateLimited(scope string)
}

// RateLimitConfig configures per-IP limiting of the login endpoints.
// Each Scope has its own budget.
type RateLimitConfig struct {
	Scope     string
	Limiter   IPLimiter
	Counter   RateLimitedCounter
	Logger    *slog.Logger
	PerMinute int
	Burst     int
}

// RateLimitByIP limits requests per client IP within cfg.Scope. Limiter
// errors let the request through.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerMinute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Limiter == nil || cfg.PerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			result, err := cfg.Limiter.CheckIPRateLimit(r.Context(), cfg.Scope, ip, cfg.PerMinute, burst)
			if err != nil {
				cfg.Logger.WarnContext(r.Context(), "ip rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.PerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))

			if !result.Allowed {
				retry := int(math.Ceil(result.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				if cfg.Counter != nil {
					cfg.Counter.IncRateLimited("ip")
				}
				cfg.Logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("scope", cfg.Scope),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int("retry_after_seconds", retry),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of RemoteAddr. Behind a trusted proxy the
// router rewrites RemoteAddr from forwarding headers before this runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
