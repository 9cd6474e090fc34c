package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"focuscycle/internal/core"
	"focuscycle/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	cycles     *core.CycleStore
	journal    *store.Store
	mcpHandler http.Handler
	logger     *slog.Logger
	authToken  string
}

// NewServer constructs the HTTP API server. journal and mcpHandler may be nil.
func NewServer(addr string, authToken string, cycles *core.CycleStore, journal *store.Store, mcpHandler http.Handler, logger *slog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:     router,
		cycles:     cycles,
		journal:    journal,
		mcpHandler: mcpHandler,
		logger:     logger,
		authToken:  authToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.mcpHandler != nil {
		var mcpHandler http.Handler = s.mcpHandler
		if s.authToken != "" {
			mcpHandler = AuthMiddleware(s.authToken)(mcpHandler)
		}
		s.router.Handle("/mcp", mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/countdown", s.handleCountdown)
		r.Get("/journal", s.handleListJournal)

		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", s.handleListCycles)
			r.Post("/", s.handleCreateCycle)
			r.Get("/active", s.handleGetActiveCycle)
			r.Post("/active/interrupt", s.handleInterruptCycle)
			r.Get("/{cycleID}", s.handleGetCycle)
		})
	})
}
