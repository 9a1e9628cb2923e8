package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/skillcoder/watchhamster/internal/infra/appstate"
	"github.com/skillcoder/watchhamster/internal/infra/shutdown"
)

// Deps are the components exposed through the API.
type Deps struct {
	Pipeline   alertPipeline
	Supervisor healthSampler
	Stability  stabilityManager
}

// Server serves the probes and the /api/v1 surface.
type Server struct {
	*listener

	appState appstater
	deps     Deps
	validate *validator.Validate
	router   chi.Router
}

// New creates a new HTTP server instance
func New(logger *slog.Logger, appState appstater, deps Deps, port string) *Server {
	if port == "" {
		port = defaultPort
	}

	s := &Server{
		listener: newListener(logger, "http-server", port),
		appState: appState,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.router = s.routes()

	return s
}

var _ shutdown.Shutdowner = (*Server)(nil)

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/-/healthz", appstate.HandleHealthz(s.logger, s.appState))
	router.Get("/-/readyz", appstate.HandleReadyz(s.logger, s.appState))
	router.Get("/-/status", appstate.HandleStatus(s.logger, s.appState))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.RequestSize(maxRequestBytes))

		r.Post("/alerts", s.handleSubmitAlert)
		r.Get("/health", s.handleHealth)
		r.Get("/delivery/stats", s.handleDeliveryStats)
		r.Get("/delivery/failed", s.handleDeliveryFailed)
		r.Delete("/delivery/failed", s.handleClearFailed)
		r.Post("/configs/validate", s.handleValidateConfigs)
		r.Get("/self-health", s.handleSelfHealth)
	})

	return router
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	return s.serve(ctx, s.router)
}
