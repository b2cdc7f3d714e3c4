package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

// Services are the collaborators exposed over HTTP.
type Services struct {
	Store     handlers.IdentityStore
	Embedder  recognition.FaceEmbedder // nil disables image uploads
	Pipeline  *recognition.Pipeline
	Sessions  *recognition.Manager
	Sink      recognition.AttendanceSink
	Announcer recognition.Announcer
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer // nil disables /metrics
}

// Server represents the web server
type Server struct {
	config     *config.Config
	services   Services
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, svc Services, port int, host string) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:   cfg,
		services: svc,
		router:   r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops all sessions with the configured policy, which also ends
// their SSE streams, and then shuts the HTTP server down.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	var errs []error
	if s.services.Sessions != nil {
		policy, err := recognition.ParseFlushPolicy(s.config.Session.StopPolicy)
		if err != nil {
			log.Printf("WARNING: %v, draining", err)
		}
		if err := s.services.Sessions.StopAll(ctx, policy); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down server: %w", err))
	}
	return errors.Join(errs...)
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
