// Package api exposes a running device over HTTP: symbol values, device
// state, sessions and metrics as JSON, plus a websocket endpoint streaming
// changed symbol values.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mrpasztoradam/goadsdev"
)

const (
	DefaultWatchInterval = 500 * time.Millisecond
	DefaultMaxWatches    = 100
	DefaultMaxBatchSize  = 100

	minWatchInterval = 10 * time.Millisecond
	pingPeriod       = 30 * time.Second
	pongWait         = 60 * time.Second
)

// CORSOptions configures cross-origin access to the API.
type CORSOptions struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// Config holds the API server settings.
type Config struct {
	Addr          string
	CORS          CORSOptions
	WatchInterval time.Duration
	MaxWatches    int
	MaxBatchSize  int
	Logger        goadsdev.Logger
}

// Server represents the HTTP server
type Server struct {
	config     Config
	service    *Service
	handler    *Handler
	logger     goadsdev.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates the API server for d.
func NewServer(d *goadsdev.Device, cfg Config) *Server {
	if cfg.MaxWatches == 0 {
		cfg.MaxWatches = DefaultMaxWatches
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = d.Logger()
	}
	logger := cfg.Logger.With("component", "api")
	cfg.Logger = logger

	service := NewService(d, cfg)
	s := &Server{
		config:  cfg,
		service: service,
		handler: NewHandler(service, cfg.WatchInterval),
		logger:  logger,
	}
	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	if s.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   s.config.CORS.AllowedMethods,
			AllowedHeaders:   s.config.CORS.AllowedHeaders,
			AllowCredentials: s.config.CORS.AllowCredentials,
			MaxAge:           300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Route("/symbols", func(r chi.Router) {
			r.Get("/", s.handler.HandleGetSymbolTable)
			r.Post("/read", s.handler.HandleBatchRead)
			r.Post("/write", s.handler.HandleBatchWrite)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handler.HandleGetSymbolInfo)
				r.Get("/value", s.handler.HandleReadSymbol)
				r.Post("/value", s.handler.HandleWriteSymbol)
			})
		})

		r.Get("/areas", s.handler.HandleGetAreas)
		r.Get("/sessions", s.handler.HandleGetSessions)
		r.Get("/metrics", s.handler.HandleGetMetrics)

		r.Get("/health", s.handler.HandleHealth)
		r.Get("/info", s.handler.HandleInfo)

		r.Get("/state", s.handler.HandleGetState)
		r.Put("/state", s.handler.HandleSetState)
		r.Post("/control", s.handler.HandleControl)
	})

	r.Get("/ws/watch", s.handler.HandleWebSocket)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"name":      s.service.device.Name(),
			"api":       "/api/v1",
			"websocket": "/ws/watch",
		})
	})

	s.router = r
}

// requestLogger logs each request through the device logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// Serve serves the API on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("API listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.service.Watches().Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("api: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Shutdown gracefully shuts down the server and stops every watch.
func (s *Server) Shutdown(ctx context.Context) error {
	s.service.Watches().Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.logger.Info("API stopped")
	return nil
}

// Router returns the chi router (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Service returns the operations behind the routes.
func (s *Server) Service() *Service {
	return s.service
}
