package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/fixedassets"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	LedgerHandler  *accounting.Handler
	AssetsHandler  *fixedassets.Handler
	ReportsHandler *reports.Handler
	JobHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	secret := ""
	if params.Config != nil {
		secret = params.Config.JWTSecret
	}
	// Authentication wraps the whole API router so unmatched paths answer 401.
	api := chi.NewRouter()
	if params.LedgerHandler != nil {
		params.LedgerHandler.MountRoutes(api)
	}
	if params.ReportsHandler != nil {
		params.ReportsHandler.MountRoutes(api)
	}
	if params.AssetsHandler != nil {
		params.AssetsHandler.MountRoutes(api)
	}
	if params.JobHandler != nil {
		api.Route("/jobs", params.JobHandler.MountRoutes)
	}
	r.Mount("/api/v1", JWTAuth(secret)(api))

	return r
}
