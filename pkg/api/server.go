// Package api serves sonar scans over HTTP. Scan endpoints stream newline
// delimited JSON events while the scan runs; a websocket endpoint carries the
// same events as text messages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/velemoonkon/sonar/pkg/config"
	"github.com/velemoonkon/sonar/pkg/metrics"
	"github.com/velemoonkon/sonar/pkg/scanner"
)

// Server is the sonar HTTP API
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     config.ServerConfig
	scanner    *scanner.Scanner
	metrics    *metrics.Metrics
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	startTime  time.Time

	// base is the parent of every request context; Stop cancels it so
	// running streams end before the server shuts down
	base       context.Context
	cancelBase context.CancelFunc
}

// New creates a server. sc should report into m (scanner.Config.Recorder)
// for the probe metrics to show up on /metrics; m may be nil.
func New(cfg config.ServerConfig, sc *scanner.Scanner, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultServerConfig().MaxBodyBytes
	}

	s := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		scanner:   sc,
		metrics:   m,
		logger:    slog.Default().With("component", "api"),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(cfg.CORSOrigins),
		},
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.handler,
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
		// No WriteTimeout: scan streams last as long as the scan
		BaseContext: func(net.Listener) context.Context { return s.base },
	}
	return s
}

// Handler returns the fully wrapped handler (routes, middleware, CORS)
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("API server listening",
		"address", ln.Addr().String(),
		"read_timeout", s.httpServer.ReadTimeout,
		"idle_timeout", s.httpServer.IdleTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}

// Stop cancels running scans and gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping API server")
	s.cancelBase()

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultServerConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Unversioned routes kept for existing clients
	s.router.HandleFunc("/api/port-scan", s.handlePortScan).Methods(http.MethodPost)
	s.router.HandleFunc("/api/dns-scan", s.handleDNSScan).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/scans/ports", s.handlePortScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/dns", s.handleDNSScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/ws", s.handleScanWebSocket).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}

// setupMiddleware configures middleware for the API server
func (s *Server) setupMiddleware() {
	s.router.Use(requestID)
	s.router.Use(s.recovery)
	s.router.Use(s.accessLog)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// CORS wraps the router so preflight requests never need a matching route
	s.handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.ExposedHeaders([]string{"X-Request-ID"}),
	)(s.router)
}

// handleHealth reports liveness and uptime
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// ErrorResponse is the body of every rejected request
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeError writes a standardized error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	s.logger.Debug("request rejected",
		"request_id", RequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err)

	writeJSON(w, status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: RequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// checkOrigin accepts websocket upgrades from the configured CORS origins
func checkOrigin(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
