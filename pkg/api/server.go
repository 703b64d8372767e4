// Package api exposes the session engine over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gm-agent-org/gm-genai/pkg/api/middleware"
	"github.com/gm-agent-org/gm-genai/pkg/api/service"
)

// Config defines the HTTP server settings.
type Config struct {
	Addr    string
	APIKey  string
	DevMode bool // gin debug mode
	// Metrics is served on /metrics; nil uses the default gatherer.
	Metrics prometheus.Gatherer
}

// Server hosts the Gin engine and manages API resources.
type Server struct {
	engine *gin.Engine
	config Config
	runs   *service.RunService
	log    *slog.Logger
}

// NewServer constructs the HTTP API server.
func NewServer(cfg Config, runs *service.RunService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = prometheus.DefaultGatherer
	}
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logger(log))

	srv := &Server{
		engine: engine,
		config: cfg,
		runs:   runs,
		log:    log,
	}
	srv.setupRoutes()
	return srv
}

// Engine returns the underlying Gin engine (for http.Server).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the configured address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// HTTPServer wraps the engine for ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{Addr: s.config.Addr, Handler: s.engine}
}
