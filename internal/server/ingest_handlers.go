package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pulseboard/pulseboard/internal/ingest"
)

// handleIngest accepts a producer batch of biometric samples and log
// records. Acceptance is batch-atomic: any validation failure rejects
// the whole batch with the itemized violations and nothing is written.
// POST /ingest
func (s *Server) handleIngest(c echo.Context) error {
	var batch ingest.Batch
	if err := c.Bind(&batch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	batchID, violations, err := s.gateway.Ingest(c.Request().Context(), batch)
	if err != nil {
		log.Printf("Error ingesting batch: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Ingestion failed",
		})
	}
	if len(violations) > 0 {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":   "ValidationFailed",
			"message": "Invalid input",
			"errors":  violations,
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Ingestion completed successfully",
		"batchId": batchID,
	})
}
