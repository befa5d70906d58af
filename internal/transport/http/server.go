package http

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"yacht/internal/app"
	"yacht/internal/archive"
	"yacht/internal/config"
	"yacht/internal/identity"
	"yacht/internal/transport/ws"
)

// Server represents the HTTP server
type Server struct {
	server     *http.Server
	router     chi.Router
	hub        *app.GameHub
	identities *identity.Provider
	results    *archive.Store
	config     *config.Config
	logger     zerolog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, hub *app.GameHub, identities *identity.Provider, results *archive.Store, logger zerolog.Logger) *Server {
	s := &Server{
		hub:        hub,
		identities: identities,
		results:    results,
		config:     cfg,
		logger:     logger.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.setupRoutes(r, logger)
	s.router = r

	s.server = &http.Server{
		Addr:              cfg.GetAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(r chi.Router, logger zerolog.Logger) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/identity", s.handleIdentity)

		r.Route("/rooms/{roomCode}", func(r chi.Router) {
			r.Get("/", s.handleGetRoom)
			r.Get("/exists", s.handleRoomExists)
			r.Get("/qr", s.handleRoomQR)
		})

		r.Get("/results", s.handleRecentResults)
		r.Get("/results/{roomCode}", s.handleRoomResult)

		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	// WebSocket
	r.Method(http.MethodGet, "/ws", ws.NewHandler(s.hub, s.identities, s.config.Server.AllowedOrigins, logger))
}

// Handler returns the routed handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// accessLog logs every request once it has been served
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := zerolog.InfoLevel
		if !s.config.IsDevelopment() && r.URL.Path == "/api/health" {
			level = zerolog.DebugLevel
		}
		s.logger.WithLevel(level).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("server starting")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("server shutting down")
	return s.server.Shutdown(ctx)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
