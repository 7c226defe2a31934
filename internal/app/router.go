package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/creamery-pos/creamery-pos/internal/adjustments"
	"github.com/creamery-pos/creamery-pos/internal/deduction"
	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/stocktake"
	"github.com/creamery-pos/creamery-pos/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	LedgerHandler      *ledger.Handler
	StockTakeHandler   *stocktake.Handler
	AdjustmentsHandler *adjustments.Handler
	DeductionHandler   *deduction.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/inventory", params.LedgerHandler.MountRoutes)
	r.Route("/stock-takes", params.StockTakeHandler.MountRoutes)
	r.Route("/adjustments", params.AdjustmentsHandler.MountRoutes)
	r.Route("/deductions", params.DeductionHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
