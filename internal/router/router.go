package router

import (
	"amza-pricing-api/internal/handler"
	"amza-pricing-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler         *handler.Handler
	AnalysisHandler *handler.AnalysisHandler
	KeepaHandler    *handler.KeepaHandler
	SettingsHandler *handler.SettingsHandler
	AdminHandler    *handler.AdminHandler
	AllowedOrigins  []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// RequestID runs first so recovered panics are logged with the id.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if h := cfg.AnalysisHandler; h != nil {
			r.Route("/pricing-analysis", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/analyze-asin", h.AnalyzeASIN)
				r.Post("/analyze-bulk", h.AnalyzeBulk)
				r.Get("/feasible", h.Feasible)
				r.Get("/{id}", h.GetResult)
				r.Post("/{id}/refresh", h.Refresh)
			})
			r.Get("/pricing-batches/{id}", h.GetBatch)
		}

		if h := cfg.KeepaHandler; h != nil {
			r.Route("/keepa-data", func(r chi.Router) {
				r.Post("/sync-asin", h.SyncASIN)
				r.Post("/track", h.Track)
			})
			r.Post("/webhooks/keepa", h.Webhook)
		}

		if h := cfg.SettingsHandler; h != nil {
			r.Route("/break-even-configs", func(r chi.Router) {
				r.Get("/", h.ListConfigs)
				r.Post("/", h.CreateConfig)
				r.Post("/{id}/activate", h.ActivateConfig)
			})
			r.Route("/exchange-rates", func(r chi.Router) {
				r.Get("/active", h.ActiveRate)
				r.Post("/", h.CreateRate)
				r.Post("/{id}/activate", h.ActivateRate)
			})
			r.Route("/brand-restrictions", func(r chi.Router) {
				r.Get("/", h.ListBrands)
				r.Post("/", h.SetBrand)
				r.Post("/import", h.ImportBrands)
			})
		}

		if h := cfg.AdminHandler; h != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", h.GetStats)
				r.Get("/call-logs", h.GetCallLogs)
			})
		}
	})

	return r
}
