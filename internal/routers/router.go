package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"coderoom/internal/api"
	"coderoom/internal/config"
	"coderoom/internal/metrics"
)

const serviceName = "coderoom"

// New builds the HTTP surface. generations may be nil when the generation
// log is disabled.
func New(cfg *config.Config, h *api.Handlers, health *api.HealthHandler, generations *api.GenerationsHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.ClientURL,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware(serviceName),
	)

	// websocket routes must not sit behind the request timeout
	r.Get("/ws", h.ServeWS)
	r.Get("/socket", h.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		HealthRoutes(r, health)
		r.Handle("/metrics", metrics.Handler())
		if generations != nil {
			r.Get("/api/v1/rooms/{roomID}/generations", generations.ListHandler)
		}
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", api.SPAHandler(cfg.StaticDir))
	}

	return r
}

func HealthRoutes(r chi.Router, health *api.HealthHandler) {
	r.Get("/healthz", health.HealthzHandler)
	r.Get("/readyz", health.ReadyzHandler)
}
