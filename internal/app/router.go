package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tutti-stock/tutti-stock/internal/audit"
	"github.com/tutti-stock/tutti-stock/internal/counts"
	"github.com/tutti-stock/tutti-stock/internal/inventory"
	"github.com/tutti-stock/tutti-stock/internal/masterdata"
	"github.com/tutti-stock/tutti-stock/internal/observability"
	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/planner"
	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
	"github.com/tutti-stock/tutti-stock/jobs"
	"github.com/tutti-stock/tutti-stock/report"
)

var errRouteNotFound = shared.NewError(shared.KindNotFound, "route_not_found", "Route not found")

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RBACMiddleware     rbac.Middleware
	MasterDataHandler  *masterdata.Handler
	InventoryHandler   *inventory.Handler
	CountsHandler      *counts.Handler
	PlannerHandler     *planner.Handler
	ReportHandler      *report.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
	PermissionsHandler *rbac.PermissionsHandler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.RBACMiddleware.ResolveActor)
		if params.PermissionsHandler != nil {
			r.Route("/me", params.PermissionsHandler.MountRoutes)
		}
		if params.MasterDataHandler != nil {
			r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
		if params.CountsHandler != nil {
			r.Route("/counts", params.CountsHandler.MountRoutes)
		}
		if params.PlannerHandler != nil {
			r.Route("/planner", params.PlannerHandler.MountRoutes)
		}
		if params.ReportHandler != nil {
			r.Route("/reports", params.ReportHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		// Unknown paths still pass through actor resolution.
		r.HandleFunc("/*", func(w http.ResponseWriter, _ *http.Request) {
			httpx.RespondError(w, errRouteNotFound)
		})
	})

	return r
}
