// Package ingest implements the ingestion gateway: it validates
// producer batches of biometric samples and log records and bulk-writes
// them to the store.
//
// Acceptance is batch-atomic: any field violation rejects the whole
// batch and nothing is written. A batch where both groups are empty
// succeeds without touching the store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/telemetry"
)

// BiometricEntry is one device telemetry sample in a producer batch.
// The vitals are optional and independently nullable.
type BiometricEntry struct {
	DeviceID    string   `json:"device_id"`
	HeartRate   *float64 `json:"heart_rate"`
	SystolicBP  *float64 `json:"systolic_bp"`
	DiastolicBP *float64 `json:"diastolic_bp"`
}

// LogEntry is one log record in a producer batch. Metadata is an
// arbitrary JSON object; absent metadata is stored as "{}".
type LogEntry struct {
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Batch is the producer payload. Both groups are optional.
type Batch struct {
	Biometrics []BiometricEntry `json:"biometrics"`
	Logs       []LogEntry       `json:"logs"`
}

// FieldError reports one validation violation, addressed by the
// offending field (e.g. "biometrics[2].device_id").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// writer is the subset of the telemetry store the gateway depends on.
type writer interface {
	InsertBiometrics(ctx context.Context, rows []telemetry.BiometricInsert) error
	InsertLogs(ctx context.Context, rows []telemetry.LogInsert) error
}

// Gateway validates and persists producer batches.
type Gateway struct {
	store writer
}

// NewGateway creates a Gateway over the given store.
func NewGateway(store writer) *Gateway {
	return &Gateway{store: store}
}

// Ingest validates the batch and, if clean, performs one bulk insert
// per non-empty group. Returns the batch id and nil violations on
// success; a non-empty violation list (and no writes) on validation
// failure; or an error on a store failure, which is fatal for the
// batch — retry is the producer's responsibility.
func (g *Gateway) Ingest(ctx context.Context, b Batch) (string, []FieldError, error) {
	bios, logRows, violations := prepare(b)
	if len(violations) > 0 {
		metrics.IngestRejected.Inc()
		return "", violations, nil
	}

	batchID := uuid.NewString()

	if len(bios) > 0 {
		if err := g.store.InsertBiometrics(ctx, bios); err != nil {
			return "", nil, fmt.Errorf("ingest: batch %s: %w", batchID, err)
		}
	}
	if len(logRows) > 0 {
		if err := g.store.InsertLogs(ctx, logRows); err != nil {
			return "", nil, fmt.Errorf("ingest: batch %s: %w", batchID, err)
		}
	}

	metrics.IngestRows.WithLabelValues(telemetry.StreamBiometric).Add(float64(len(bios)))
	metrics.IngestRows.WithLabelValues(telemetry.StreamLog).Add(float64(len(logRows)))
	log.Printf("Ingest batch %s: %d biometrics, %d logs", batchID, len(bios), len(logRows))

	return batchID, nil, nil
}

// prepare validates every entry and converts the batch to store rows.
// Conversion output is only meaningful when no violations are returned.
func prepare(b Batch) ([]telemetry.BiometricInsert, []telemetry.LogInsert, []FieldError) {
	var violations []FieldError

	bios := make([]telemetry.BiometricInsert, 0, len(b.Biometrics))
	for i, e := range b.Biometrics {
		if e.DeviceID == "" {
			violations = append(violations, FieldError{
				Field:   fmt.Sprintf("biometrics[%d].device_id", i),
				Message: "required",
			})
			continue
		}
		bios = append(bios, telemetry.BiometricInsert{
			DeviceID:    e.DeviceID,
			HeartRate:   e.HeartRate,
			SystolicBP:  e.SystolicBP,
			DiastolicBP: e.DiastolicBP,
		})
	}

	logRows := make([]telemetry.LogInsert, 0, len(b.Logs))
	for i, e := range b.Logs {
		if e.Level == "" {
			violations = append(violations, FieldError{
				Field:   fmt.Sprintf("logs[%d].level", i),
				Message: "required",
			})
		}
		if e.Message == "" {
			violations = append(violations, FieldError{
				Field:   fmt.Sprintf("logs[%d].message", i),
				Message: "required",
			})
		}

		metadata := "{}"
		if e.Metadata != nil {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				violations = append(violations, FieldError{
					Field:   fmt.Sprintf("logs[%d].metadata", i),
					Message: "not serializable as JSON",
				})
				continue
			}
			metadata = string(raw)
		}

		logRows = append(logRows, telemetry.LogInsert{
			Level:    e.Level,
			Message:  e.Message,
			Metadata: metadata,
		})
	}

	return bios, logRows, violations
}
