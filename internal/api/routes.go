package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrwolf/bible-research/internal/db"
	"github.com/mrwolf/bible-research/internal/research"
	"github.com/mrwolf/bible-research/internal/wordstudy"
)

// NewRouter builds the API. cfg is consulted per request, so api_token,
// rate_limit and top_books follow config reloads.
func NewRouter(cfg ConfigSource, database *db.DB, library *wordstudy.Library, svc *research.Service) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)

	handlers := NewHandlers(cfg, database, library, svc)

	// Public endpoints
	r.Get("/health", handlers.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(JSONContentType)
		r.Use(RateLimitMiddleware(NewRateLimiter(cfg().RateLimit, time.Minute, nil), cfg))
		r.Use(SessionMiddleware)

		r.Get("/research/kinds", handlers.Kinds)
		r.Post("/research", handlers.CreateResearch)
		r.Get("/research/{id}", handlers.GetResearch)
		r.Post("/research/{id}/refine", handlers.Refine)
		r.Post("/research/{id}/enhance", handlers.Enhance)

		r.Get("/sessions/{id}/research", handlers.SessionResearch)
		r.Get("/sessions/{id}/words", handlers.SessionWordStudies)
		r.Get("/sessions/{id}/usage", handlers.GetUsage)
		r.Delete("/sessions/{id}/usage", handlers.ResetUsage)

		r.Get("/words", handlers.Words)
		r.Get("/words/{headword}", handlers.Variants)
		r.Post("/words/{headword}/distribution", handlers.Distribution)
	})

	return r
}
