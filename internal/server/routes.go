package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulseboard/pulseboard/internal/metrics"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// --- Public endpoints (no auth) ---
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/internal/metrics", echo.WrapHandler(metrics.Handler()))
	s.echo.POST("/register", s.handleRegister)
	s.echo.POST("/login", s.handleLogin)

	// --- Producer endpoint (shared-secret auth) ---
	s.echo.POST("/ingest", s.handleIngest, s.ingestAuth)

	// --- Dashboard endpoints (bearer token required) ---
	authed := s.echo.Group("", s.requireAuth)
	authed.GET("/logs", s.handleLogs)
	authed.GET("/alerts", s.handleAlerts)
	authed.GET("/metrics", s.handleMetrics)
	authed.GET("/stream", s.handleStream)
	authed.POST("/users/withdraw", s.handleWithdraw)

	// --- User administration (admin role required) ---
	admin := s.echo.Group("/users", s.requireAuth, s.requireAdmin)
	admin.GET("", s.handleListUsers)
	admin.PATCH("/:id", s.handleUpdateUser)
	admin.DELETE("/:id", s.handleDeleteUser)
}

// handleHealth returns basic server health information, used by
// deployment probes and monitoring.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": "0.1.0",
	})
}
