package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer turns a handler panic into a logged 500. A panic after the
// response has started, such as midway through a listing body, is logged
// only; appending an error body would corrupt what the client already has.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked, ok := w.(*responseWriter)
			if !ok {
				tracked = wrapResponseWriter(w)
			}

			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				attrs := []slog.Attr{
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("route", r.Method+" "+r.URL.Path),
					slog.Any("panic", rvr),
					slog.Bool("response_started", tracked.wroteHeader),
					slog.String("stack", string(debug.Stack())),
				}
				if entry, ok := r.Context().Value(accessLogKey).(*accessLog); ok && entry.userID != "" {
					attrs = append(attrs, slog.String("user_id", entry.userID))
				}
				logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered", attrs...)

				if !tracked.wroteHeader {
					writeError(tracked, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				}
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}
