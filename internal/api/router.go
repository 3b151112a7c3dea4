package api

import (
	"encoding/json"
	"net/http"

	"github.com/raincheck/raincheck/internal/api/handlers"
	"github.com/raincheck/raincheck/internal/api/middleware"
	"github.com/raincheck/raincheck/internal/config"
	"github.com/raincheck/raincheck/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth().Middleware)

	// Health & info
	r.Get("/health", healthHandler(cfg, h.Store))
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Planning
		r.Route("/plan", func(r chi.Router) {
			r.Post("/", h.SuggestPlan)
			r.Post("/parking", h.SuggestParking)
		})

		// Stateless rain check
		r.Route("/rain", func(r chi.Router) {
			r.Post("/proposal", h.RainProposal)
			r.Post("/apply", h.RainApply)
		})

		// Sessions (the state machine)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/check", h.CheckSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Post("/check", h.CheckSession)
				r.Post("/apply", h.ApplySession)
				r.Post("/llm-apply", h.LLMApplySession)
				r.Post("/rollback", h.RollbackSession)
				r.Post("/reset", h.ResetSession)
			})
		})

		// Weather outlook
		r.Get("/weather/rainy-dates", h.RainyDates)
	})

	return r
}

// healthHandler reports liveness plus which upstreams are configured, so a
// deploy with a missing key is visible from the outside.
func healthHandler(cfg *config.Config, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":           "healthy",
			"service":          "raincheck",
			"google_api_key":   cfg.Google.APIKey != "",
			"openai_api_key":   cfg.OpenAI.APIKey != "",
			"weather_function": cfg.Weather.FunctionURL != "",
		}
		status := http.StatusOK
		if err := st.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "degraded"
			health["store"] = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	}
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "raincheck",
		})
	}
}
