package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/r3d91ll/chime/pkg/errors"
)

// ServerConfig holds configuration for the telemetry server.
type ServerConfig struct {
	// Host is the interface to bind to (default: "localhost")
	Host string `yaml:"host" json:"host"`

	// Port is the port to listen on (default: 8081, 0 picks a free port)
	Port int `yaml:"port" json:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// Origins lists the allowed WebSocket origins; empty or "*" allows all.
	Origins []string `yaml:"origins" json:"origins"`

	// EnableLogging logs every request at debug level.
	EnableLogging bool `yaml:"enable_logging" json:"enable_logging"`
}

// DefaultServerConfig returns defaults for the telemetry server.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "localhost",
		Port:          8081,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		EnableLogging: true,
	}
}

// Server exposes /ws and /health.
type Server struct {
	config *ServerConfig
	hub    *Hub
	log    *zap.Logger

	httpServer *http.Server

	mu       sync.RWMutex
	running  bool
	listener net.Listener
}

// NewServer creates a server around hub. Zero timeouts take defaults.
func NewServer(config *ServerConfig, hub *Hub, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultServerConfig()
	if config.Host == "" {
		config.Host = def.Host
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	return &Server{config: config, hub: hub, log: logger.Named("api")}
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig { return s.config }

// Address returns the configured host:port.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// ListenAddr returns the bound address once running, otherwise Address().
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Address()
}

// Handler builds the request handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWebSocketHandler(s.hub, makeOriginChecker(s.config.Origins)))
	mux.HandleFunc("/health", s.handleHealth)

	var handler http.Handler = mux
	if s.config.EnableLogging {
		handler = s.loggingMiddleware(handler)
	}
	return s.recoveryMiddleware(handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(errors.ErrServerFailed, errors.CategoryNetwork, "server is already running")
	}

	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return errors.WrapNetwork(err, errors.ErrServerFailed, "server failed to start").
			WithContext("address", s.Address()).
			WithSuggestion("Choose a free port with --port")
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.running = true

	srv := s.httpServer
	go func() {
		s.log.Info("serving telemetry", zap.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.log.Info("shutting down server")
	s.running = false
	s.listener = nil
	return s.httpServer.Shutdown(ctx)
}

// IsRunning reports whether Start succeeded and Shutdown has not run.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic in handler",
					zap.Any("panic", err),
					zap.ByteString("stack", debug.Stack()))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)))
	})
}

// makeOriginChecker validates WebSocket origins against an allow list.
func makeOriginChecker(allowedOrigins []string) func(*http.Request) bool {
	if len(allowedOrigins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return nil
		}
		allowed[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[origin]
	}
}
