package handler

import (
	"context"
	"net/http"

	"github.com/Manonp59/prbmg/internal/api/response"
)

// Pinger is a dependency whose connectivity is reported by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelStatus describes what the prediction pipeline has in memory. Models
// load lazily, so nothing reported here degrades the service.
type ModelStatus func() map[string]any

// NewHealthHandler checks database and cache connectivity. models may be nil.
func NewHealthHandler(db, cache Pinger, models ModelStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, response.CodeServiceUnavailable,
				"One or more services degraded", checks)
			return
		}

		body := map[string]any{
			"status":   "ok",
			"services": checks,
		}
		if models != nil {
			body["models"] = models()
		}
		response.JSON(w, body)
	}
}
