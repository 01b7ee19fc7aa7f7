// Package server provides the HTTP server for pulseboard, built on
// Echo v4. It hosts the producer-facing ingestion endpoint, the auth
// endpoints, the historical query API, the live SSE stream, and the
// admin user-management API.
package server

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pulseboard/pulseboard/internal/account"
	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/relay"
	"github.com/pulseboard/pulseboard/internal/telemetry"
)

// AuthGate is the login/registration gate. Implemented by account.Gate.
type AuthGate interface {
	Register(ctx context.Context, username, password, ip string) (*account.Account, error)
	Login(ctx context.Context, username, password, ip string) (*account.Account, error)
}

// IngestGateway validates and persists producer batches. Implemented
// by ingest.Gateway.
type IngestGateway interface {
	Ingest(ctx context.Context, b ingest.Batch) (string, []ingest.FieldError, error)
}

// DataStore serves the historical query endpoints. Implemented by
// telemetry.Store.
type DataStore interface {
	Logs(ctx context.Context, f telemetry.LogFilter) ([]telemetry.LogRecord, int, error)
	Alerts(ctx context.Context, f telemetry.AlertFilter) ([]telemetry.Alert, error)
	Metrics(ctx context.Context, since time.Time) ([]telemetry.ServerMetric, error)
}

// UserStore serves the user-management endpoints. Implemented by
// account.Store.
type UserStore interface {
	List(ctx context.Context) ([]account.Account, error)
	Update(ctx context.Context, id int, role *string, isApproved *int) (*account.Account, error)
	Delete(ctx context.Context, id int) error
	RequestWithdrawal(ctx context.Context, id int) error
}

// StreamRelay drives one live subscription. Implemented by relay.Relay.
type StreamRelay interface {
	Run(ctx context.Context, sink relay.Sink) error
}

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	gate    AuthGate
	tokens  *auth.Manager
	gateway IngestGateway
	data    DataStore
	users   UserStore
	streams StreamRelay
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, gate AuthGate, tokens *auth.Manager, gateway IngestGateway, data DataStore, users UserStore, streams StreamRelay) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // We log the listen address ourselves.

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:    e,
		cfg:     cfg,
		gate:    gate,
		tokens:  tokens,
		gateway: gateway,
		data:    data,
		users:   users,
		streams: streams,
	}

	s.registerRoutes()
	return s
}

const authContextKey = "auth"

// getClaims retrieves the token claims set by requireAuth.
func getClaims(c echo.Context) *auth.Claims {
	if claims, ok := c.Get(authContextKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// requireAuth is middleware that resolves a bearer token from the
// Authorization header, the token query parameter, or the token cookie.
// An absent or invalid token is rejected uniformly; no detail about why
// verification failed is exposed.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := s.tokens.Verify(c.Request())
		if claims == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "Unauthorized",
				"message": "A valid bearer token is required",
			})
		}
		c.Set(authContextKey, claims)
		return next(c)
	}
}

// requireAdmin is middleware that restricts a route to admin accounts.
// Must run after requireAuth.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := getClaims(c)
		if claims == nil || claims.Role != account.RoleAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   "Forbidden",
				"message": "Admin role required",
			})
		}
		return next(c)
	}
}

// ingestAuth is middleware that validates the x-internal-secret header
// against the configured ingestion secret using a constant-time
// comparison.
func (s *Server) ingestAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		provided := c.Request().Header.Get("x-internal-secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.IngestSecret)) != 1 {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   "Forbidden",
				"message": "Invalid ingest secret",
			})
		}
		return next(c)
	}
}

// Start begins listening for HTTP requests. It blocks until the context
// is cancelled, then performs a graceful shutdown allowing in-flight
// requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", s.cfg.ListenAddr)
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP server...")
		return s.echo.Shutdown(context.Background())
	}
}
