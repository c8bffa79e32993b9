package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stowbox/stowbox/internal/auth"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/service"
)

// SessionResolver resolves the session credential on a request.
type SessionResolver interface {
	Current(ctx context.Context, r *http.Request) (*model.User, error)
}

// RequireSession rejects requests without a valid session and stores the
// user in the request context. Every failure to authenticate gets the same
// 401 body; store outages get a 503.
func RequireSession(sessions SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sessions.Current(r.Context(), r)
			if err != nil {
				if errors.Is(err, service.ErrStoreRead) {
					logger.ErrorContext(r.Context(), "session lookup failed",
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			setLoggedUser(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithUser(r.Context(), user)))
		})
	}
}
