// Package telemetry provides the data model and store operations for
// the four append-only entity streams: biometrics, logs, alerts, and
// server metrics.
//
// Rows come back from PostgreSQL untyped; every store method scans them
// into one of the record types below immediately, so nothing outside
// this package ever handles a raw row.
package telemetry

import (
	"encoding/json"
	"time"
)

// Stream type names, in the fixed order the change-relay drains them
// each tick. These are the "type" tags on emitted stream events.
const (
	StreamBiometric = "biometric"
	StreamLog       = "log"
	StreamAlert     = "alert"
	StreamMetric    = "metric"
)

// Streams lists all entity streams in drain order.
var Streams = []string{StreamBiometric, StreamLog, StreamAlert, StreamMetric}

// Biometric is one device telemetry sample. The vitals are
// independently nullable; only the device id is required.
type Biometric struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	HeartRate   *float64  `json:"heart_rate"`
	SystolicBP  *float64  `json:"systolic_bp"`
	DiastolicBP *float64  `json:"diastolic_bp"`
	CreatedAt   time.Time `json:"created_at"`
}

// LogRecord is one service log entry. Metadata is the stored JSON text,
// re-emitted verbatim so clients receive an object, not a string.
type LogRecord struct {
	ID        int64           `json:"id"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Alert is one alert row. Alerts are written by the upstream threshold
// monitor, not by this service.
type Alert struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// ServerMetric is one host resource snapshot.
type ServerMetric struct {
	ID          int64     `json:"id"`
	CPULoad     float64   `json:"cpu_load"`
	MemoryUsage float64   `json:"memory_usage"`
	Uptime      int64     `json:"uptime"`
	CreatedAt   time.Time `json:"created_at"`
}

// BiometricInsert holds the writable fields of a biometrics row.
type BiometricInsert struct {
	DeviceID    string
	HeartRate   *float64
	SystolicBP  *float64
	DiastolicBP *float64
}

// LogInsert holds the writable fields of a logs row. Metadata must be
// valid JSON text; the ingestion gateway guarantees this.
type LogInsert struct {
	Level    string
	Message  string
	Metadata string
}

// LogFilter selects log rows for historical queries.
type LogFilter struct {
	Level  string    // exact level match, "" for all
	Search string    // substring over message and metadata, "" for none
	Since  time.Time // lower bound on created_at
	Limit  int
	Offset int
}

// AlertFilter selects alert rows for historical queries.
type AlertFilter struct {
	Type  string // exact category match, "" for all
	Since time.Time
}
