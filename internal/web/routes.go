package web

import (
	"log"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	svc := s.services

	stopPolicy, err := recognition.ParseFlushPolicy(s.config.Session.StopPolicy)
	if err != nil {
		log.Printf("WARNING: %v, draining", err)
	}

	// Create handlers
	identitiesHandler := handlers.NewIdentitiesHandler(svc.Store, svc.Metrics)
	enrollHandler := handlers.NewEnrollHandler(svc.Store, svc.Embedder, svc.Metrics)
	recognizeHandler := handlers.NewRecognizeHandler(svc.Pipeline, svc.Sink, svc.Announcer, s.config.Phrases)
	sessionsHandler := handlers.NewSessionsHandler(svc.Sessions, svc.Pipeline, stopPolicy, s.config.Session.StopTimeout)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	if svc.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Post("/enroll", enrollHandler.Enroll)

		// One-shot recognition
		r.Post("/recognize", recognizeHandler.Recognize)

		// Live sessions
		r.Post("/sessions", sessionsHandler.Start)
		r.Get("/sessions", sessionsHandler.List)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Delete("/sessions/{id}", sessionsHandler.Stop)
		r.Post("/sessions/{id}/frames", sessionsHandler.Frame)
		r.Put("/sessions/{id}/mode", sessionsHandler.SetMode)
		r.Get("/sessions/{id}/events", sessionsHandler.Events)
	})
}
