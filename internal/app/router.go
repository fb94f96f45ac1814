package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/toolroom-mes/toolroom/internal/history"
	"github.com/toolroom-mes/toolroom/internal/observability"
	"github.com/toolroom-mes/toolroom/internal/principals"
	"github.com/toolroom-mes/toolroom/internal/rbac"
	"github.com/toolroom-mes/toolroom/internal/shared"
	"github.com/toolroom-mes/toolroom/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	TokenStore        *shared.TokenStore
	RBACHandler       *rbac.Handler
	PrincipalsHandler *principals.Handler
	HistoryHandler    *history.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Toolroom defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:     params.Logger,
		Config:     params.Config,
		TokenStore: params.TokenStore,
		Metrics:    params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.RBACHandler != nil {
		r.Route("/rbac", params.RBACHandler.MountRoutes)
	}
	if params.PrincipalsHandler != nil {
		r.Route("/principals", params.PrincipalsHandler.MountRoutes)
	}
	if params.HistoryHandler != nil {
		r.Route("/history", params.HistoryHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
