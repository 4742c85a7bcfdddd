// Package http serves the estimate form, the JSON API and the WebSocket endpoint.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zegonz1/housing-tbs/config"
	"github.com/zegonz1/housing-tbs/log"
)

// Server is the HTTP server.
type Server struct {
	server  *http.Server
	handler http.Handler
	config  ServerConfig
}

// ServerConfig holds listener and middleware settings.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig returns the settings of config.Default().
func DefaultServerConfig() ServerConfig {
	return NewServerConfig(config.Default().Http)
}

// NewServerConfig converts the http section of config.yaml.
func NewServerConfig(c config.HttpConfig) ServerConfig {
	return ServerConfig{
		Host:           c.Host,
		Port:           c.Port,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		RequestTimeout: c.RequestTimeout,
		MaxBodyBytes:   c.MaxBodyBytes,
		AllowedOrigins: c.AllowedOrigins,
	}
}

// NewServer registers every route on a fresh mux and wraps it in the middleware chain.
func NewServer(config ServerConfig, services Services) *Server {
	mux := http.NewServeMux()
	RegisterHandlers(mux, services)

	chain := Chain(
		LoggerMiddleware,
		RecoveryMiddleware,
		MetricsMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
		TimeoutMiddleware(config.RequestTimeout),
	)
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		handler: handler,
		config:  config,
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	log.Logger().Info("starting http server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "/api/ws/estimate"))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Stop shuts down gracefully, waiting up to five seconds for requests in flight.
// Hijacked WebSocket connections are not tracked; the hub closes them.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Logger().Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the routed, wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}
