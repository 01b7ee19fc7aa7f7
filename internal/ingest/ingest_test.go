package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/telemetry"
)

// memWriter records bulk inserts for inspection.
type memWriter struct {
	biometrics []telemetry.BiometricInsert
	logs       []telemetry.LogInsert
	failWith   error
}

func (w *memWriter) InsertBiometrics(ctx context.Context, rows []telemetry.BiometricInsert) error {
	if w.failWith != nil {
		return w.failWith
	}
	w.biometrics = append(w.biometrics, rows...)
	return nil
}

func (w *memWriter) InsertLogs(ctx context.Context, rows []telemetry.LogInsert) error {
	if w.failWith != nil {
		return w.failWith
	}
	w.logs = append(w.logs, rows...)
	return nil
}

func f64(v float64) *float64 { return &v }

func TestIngestWritesBothGroups(t *testing.T) {
	w := &memWriter{}
	g := NewGateway(w)

	batchID, violations, err := g.Ingest(context.Background(), Batch{
		Biometrics: []BiometricEntry{
			{DeviceID: "dev-1", HeartRate: f64(72)},
			{DeviceID: "dev-2", SystolicBP: f64(120), DiastolicBP: f64(80)},
		},
		Logs: []LogEntry{
			{Level: "INFO", Message: "started", Metadata: map[string]any{"pid": 42.0}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.NotEmpty(t, batchID)

	require.Len(t, w.biometrics, 2)
	assert.Equal(t, "dev-1", w.biometrics[0].DeviceID)
	assert.Nil(t, w.biometrics[0].SystolicBP)
	require.Len(t, w.logs, 1)
	assert.JSONEq(t, `{"pid": 42}`, w.logs[0].Metadata)
}

func TestIngestAbsentMetadataStoresEmptyObject(t *testing.T) {
	w := &memWriter{}
	g := NewGateway(w)

	_, violations, err := g.Ingest(context.Background(), Batch{
		Logs: []LogEntry{{Level: "INFO", Message: "x"}},
	})
	require.NoError(t, err)
	assert.Empty(t, violations)
	require.Len(t, w.logs, 1)
	assert.Equal(t, "{}", w.logs[0].Metadata)
}

func TestIngestRejectsWholeBatchOnAnyViolation(t *testing.T) {
	w := &memWriter{}
	g := NewGateway(w)

	_, violations, err := g.Ingest(context.Background(), Batch{
		Biometrics: []BiometricEntry{
			{DeviceID: "dev-1"},
			{DeviceID: ""}, // invalid
		},
		Logs: []LogEntry{
			{Level: "", Message: ""}, // two violations
			{Level: "INFO", Message: "fine"},
		},
	})
	require.NoError(t, err)
	require.Len(t, violations, 3)
	assert.Equal(t, "biometrics[1].device_id", violations[0].Field)
	assert.Equal(t, "logs[0].level", violations[1].Field)
	assert.Equal(t, "logs[0].message", violations[2].Field)

	// Atomic rejection: zero rows written, valid entries included.
	assert.Empty(t, w.biometrics)
	assert.Empty(t, w.logs)
}

func TestIngestEmptyBatchSucceedsWithoutWrites(t *testing.T) {
	w := &memWriter{failWith: errors.New("store must not be touched")}
	g := NewGateway(w)

	_, violations, err := g.Ingest(context.Background(), Batch{})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestIngestStoreFailureIsFatal(t *testing.T) {
	w := &memWriter{failWith: errors.New("connection reset")}
	g := NewGateway(w)

	_, violations, err := g.Ingest(context.Background(), Batch{
		Biometrics: []BiometricEntry{{DeviceID: "dev-1"}},
	})
	require.Error(t, err)
	assert.Empty(t, violations)
}
