package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the settings the HTTP surface needs.
type RouterConfig struct {
	JWTSecret          []byte
	RateLimit          RateLimitConfig
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter builds the chi router with the global middleware stack and all
// API routes.
func NewRouter(h *EventHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		// Bearer tokens travel in a header, so cookies are never sent cross-origin.
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(Authenticate(cfg.JWTSecret))

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.With(RateLimiter(cfg.RateLimit)).Post("/{id}/registrations", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(RequireManager)
			r.Post("/", h.CreateEvent)
			r.Get("/mine", h.ListMyEvents)
			r.Put("/{id}", h.UpdateEvent)
			r.Post("/{id}/close", h.CloseEvent)
			r.Get("/{id}/registrations", h.ListRegistrations)
		})
	})

	return r
}
