package api

import (
	"net/http"

	mw "github.com/Manonp59/prbmg/internal/api/middleware"
	"github.com/Manonp59/prbmg/internal/api/response"
	"github.com/Manonp59/prbmg/internal/auth"
	"github.com/Manonp59/prbmg/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// PublicPaths are served without an X-API-Key. Pass them to auth.NewKeyAuth.
var PublicPaths = append([]string{
	"/health",
	"/metrics",
	"/auth/token",
	"/auth/is_authorized",
}, auth.DefaultExemptPaths...)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	HealthHandler       http.HandlerFunc
	MetricsHandler      http.Handler
	OpenAPIHandler      http.HandlerFunc
	DocsHandler         http.HandlerFunc
	PredictHandler      http.HandlerFunc
	PredictBatch        http.HandlerFunc
	PredictIncident     http.HandlerFunc
	RefreshHandler      http.HandlerFunc
	TokenHandler        http.HandlerFunc
	IsAuthorizedHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
// Every route needs the shared key except PublicPaths; admin routes also
// need a bearer token.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics(deps.Metrics))
	r.Use(deps.Auth.RequireKey)
	r.Use(deps.RateLimit.Limit)

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/openapi.json", orNotImplemented(deps.OpenAPIHandler))

	r.Get("/docs", orNotImplemented(deps.DocsHandler))

	// Public auth routes have no key fingerprint for the global limiter.
	r.With(deps.RateLimit.LimitByClient).Post("/auth/token", orNotImplemented(deps.TokenHandler))
	r.With(deps.Auth.RequireBearer, deps.RateLimit.Limit).
		Get("/auth/is_authorized", orNotImplemented(deps.IsAuthorizedHandler))

	r.Post("/predict", orNotImplemented(deps.PredictHandler))
	r.Post("/predict/batch", orNotImplemented(deps.PredictBatch))
	r.Post("/predict/incidents/{incidentNumber}", orNotImplemented(deps.PredictIncident))

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireBearer)
		r.Post("/admin/models/refresh", orNotImplemented(deps.RefreshHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
