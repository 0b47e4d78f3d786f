// Package http exposes the scanner's JSON API: credential and universe
// management, scan triggering, result reads and the index performance
// snapshot. The route surface mirrors the dashboard's remote-procedure
// contract one to one.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the scanner's HTTP front end.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	log      zerolog.Logger
}

// NewServer wires the router and middleware around the handlers.
func NewServer(cfg ServerConfig, handlers *Handlers, log zerolog.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: handlers,
		log:      log,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/credentials", s.handlers.SaveCredentials).Methods(http.MethodPost)
	api.HandleFunc("/credentials", s.handlers.ClearCredentials).Methods(http.MethodDelete)
	api.HandleFunc("/status", s.handlers.Status).Methods(http.MethodGet)

	api.HandleFunc("/symbols", s.handlers.SaveSymbols).Methods(http.MethodPut)
	api.HandleFunc("/symbols", s.handlers.GetSymbols).Methods(http.MethodGet)

	api.HandleFunc("/scan", s.handlers.RunScan).Methods(http.MethodPost)
	api.HandleFunc("/results", s.handlers.GetResults).Methods(http.MethodGet)
	api.HandleFunc("/results/last-scan", s.handlers.LastScanTimestamp).Methods(http.MethodGet)

	api.HandleFunc("/indices", s.handlers.IndexPerformance).Methods(http.MethodGet)
	api.HandleFunc("/cache/clear", s.handlers.ClearCaches).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)
	if s.handlers.metricsHandler != nil {
		s.router.Handle("/metrics", s.handlers.metricsHandler).Methods(http.MethodGet)
	}
}

// Router exposes the handler tree, used by tests and embedding callers.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
