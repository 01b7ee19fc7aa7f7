package server

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pulseboard/pulseboard/internal/telemetry"
)

// Pagination bounds for the logs endpoint.
const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// sinceFromRange converts the range query parameter (1h, 24h, 7d) to a
// lower time bound. Anything else falls back to the last hour.
func sinceFromRange(rangeParam string) time.Time {
	d := time.Hour
	switch rangeParam {
	case "24h":
		d = 24 * time.Hour
	case "7d":
		d = 7 * 24 * time.Hour
	}
	return time.Now().Add(-d)
}

// handleLogs returns log rows matching the filter parameters in a
// paginated envelope.
// GET /logs?level=&search=&range=&limit=&offset=
func (s *Server) handleLogs(c echo.Context) error {
	limit := defaultLogLimit
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = min(v, maxLogLimit)
	}
	offset := 0
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}

	logs, total, err := s.data.Logs(c.Request().Context(), telemetry.LogFilter{
		Level:  c.QueryParam("level"),
		Search: c.QueryParam("search"),
		Since:  sinceFromRange(c.QueryParam("range")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		log.Printf("Error querying logs: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to fetch logs",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleAlerts returns alert rows matching the filter parameters.
// GET /alerts?type=&range=
func (s *Server) handleAlerts(c echo.Context) error {
	alerts, err := s.data.Alerts(c.Request().Context(), telemetry.AlertFilter{
		Type:  c.QueryParam("type"),
		Since: sinceFromRange(c.QueryParam("range")),
	})
	if err != nil {
		log.Printf("Error querying alerts: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to fetch alerts",
		})
	}
	return c.JSON(http.StatusOK, alerts)
}

// handleMetrics returns server metric rows for the requested window,
// oldest first.
// GET /metrics?range=
func (s *Server) handleMetrics(c echo.Context) error {
	metrics, err := s.data.Metrics(c.Request().Context(), sinceFromRange(c.QueryParam("range")))
	if err != nil {
		log.Printf("Error querying metrics: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to fetch metrics",
		})
	}
	return c.JSON(http.StatusOK, metrics)
}
