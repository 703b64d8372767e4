package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gm-agent-org/gm-genai/pkg/api/handler"
	"github.com/gm-agent-org/gm-genai/pkg/api/middleware"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health and metrics (no auth required)
	s.engine.GET("/health", handler.Health)
	s.engine.GET("/healthz", handler.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.config.Metrics, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/api/v1")
	v1.Use(middleware.Auth(s.config.APIKey))

	runs := handler.NewRunHandler(s.runs)
	v1.POST("/runs", runs.Create)
	v1.GET("/runs", runs.List)
	v1.GET("/runs/:id", runs.Get)
	v1.DELETE("/runs/:id", runs.Delete)
	v1.GET("/runs/:id/messages", runs.Messages)
	v1.POST("/runs/:id/cancel", runs.Cancel)

	v1.GET("/permissions", runs.Permissions)
	v1.POST("/permissions/:id", runs.Permission)
}
