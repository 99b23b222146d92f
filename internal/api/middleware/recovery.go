package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/Manonp59/prbmg/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Recovery turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection silently.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			slog.Error("panic recovered",
				"error", rec,
				"method", r.Method,
				"route", route,
				"request_id", GetRequestID(r),
				"stack", string(debug.Stack()),
			)

			if r.Header.Get("Connection") == "Upgrade" {
				return
			}
			response.Error(w, http.StatusInternalServerError,
				response.CodeInternal, "An unexpected error occurred", nil)
		}()
		next.ServeHTTP(w, r)
	})
}
