package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/sketch-match/internal/web/handlers"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

func (s *Server) setupRoutes(deps Dependencies) {
	sm := s.sessionManager

	authHandler := handlers.NewAuthHandler(s.config, sm, deps.Notifier)
	imageHandler := handlers.NewImageHandler(s.config, deps.Similarity, deps.Generator)
	retrievalHandler := handlers.NewRetrievalHandler(deps.Runner, s.trackers)
	historyHandler := handlers.NewHistoryHandler()

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.config.Auth.RateLimitPerMinute))
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/change-password", authHandler.ChangePassword)
			r.Post("/auth/reset-password", authHandler.ResetPassword)
		})
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// Image routes work anonymously; generation is recorded for signed-in users
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(sm))
			r.Post("/image/upload", imageHandler.Upload)
			r.Post("/image/fetch-details", imageHandler.FetchDetails)
			r.Post("/image/generate", imageHandler.Generate)
			r.Post("/retrieval", retrievalHandler.Run)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sm))

			r.Get("/images/generated", imageHandler.ListGenerated)

			r.Post("/retrievals", retrievalHandler.Start)
			r.Get("/retrievals/current", retrievalHandler.Current)
			r.Get("/retrievals/events", retrievalHandler.Events)

			r.Get("/history", historyHandler.List)
			r.Post("/history", historyHandler.Save)
		})
	})
}
