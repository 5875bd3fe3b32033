package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/HasithaDilshan/agro-ai-copilot/internal/config"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/metrics"
	"github.com/HasithaDilshan/agro-ai-copilot/internal/middleware"
)

type Routes struct {
	// Variant picks the handler mounted at /processPlantImage.
	Variant      string
	Orchestrator http.Handler
	Mock         http.Handler
	Metrics      *metrics.Registry
}

func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/", IndexHandler)
	r.Get("/health", HealthCheckHandler)
	if rt.Metrics != nil {
		r.Get("/metrics", rt.Metrics.ServeText)
		r.Get("/metrics.json", rt.Metrics.ServeJSON)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.LogRequest(rt.Metrics))
		// Panics become 500s inside the request logger so they are logged and counted.
		r.Use(chimw.Recoverer)

		primary := rt.Orchestrator
		if rt.Variant == config.VariantMock {
			primary = rt.Mock
		}
		r.Handle("/processPlantImage", primary)
		r.Handle("/processPlantImage/orchestrator", rt.Orchestrator)
		r.Handle("/processPlantImage/mock", rt.Mock)
	})

	return r
}
