package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/internal/database"
	"github.com/pulseboard/pulseboard/internal/relay"
)

// Store provides entity-stream operations backed by PostgreSQL.
// It implements relay.Source for the change-relay.
type Store struct {
	db *database.DB
}

// NewStore creates a telemetry Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// InsertBiometrics bulk-inserts biometric samples with a single
// multi-row statement. A nil or empty slice is a no-op.
func (s *Store) InsertBiometrics(ctx context.Context, rows []BiometricInsert) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO biometrics (device_id, heart_rate, systolic_bp, diastolic_bp) VALUES `)
	args := make([]any, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, r.DeviceID, r.HeartRate, r.SystolicBP, r.DiastolicBP)
	}

	if _, err := s.db.Pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("telemetry: insert biometrics: %w", err)
	}
	return nil
}

// InsertLogs bulk-inserts log records with a single multi-row
// statement. A nil or empty slice is a no-op.
func (s *Store) InsertLogs(ctx context.Context, rows []LogInsert) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO logs (level, message, metadata) VALUES `)
	args := make([]any, 0, len(rows)*3)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 3
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", n+1, n+2, n+3)
		args = append(args, r.Level, r.Message, r.Metadata)
	}

	if _, err := s.db.Pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("telemetry: insert logs: %w", err)
	}
	return nil
}

// Logs returns log rows matching the filter, newest first, plus the
// total count matching the filter ignoring limit/offset.
func (s *Store) Logs(ctx context.Context, f LogFilter) ([]LogRecord, int, error) {
	where := " WHERE created_at >= $1"
	args := []any{f.Since}

	if f.Level != "" {
		args = append(args, f.Level)
		where += fmt.Sprintf(" AND level = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND (message ILIKE $%d OR metadata ILIKE $%d)", len(args), len(args))
	}

	var total int
	if err := s.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("telemetry: count logs: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(
		"SELECT id, level, message, metadata, created_at FROM logs%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args))

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("telemetry: query logs: %w", err)
	}
	defer rows.Close()

	records := []LogRecord{}
	for rows.Next() {
		var r LogRecord
		var metadata string
		if err := rows.Scan(&r.ID, &r.Level, &r.Message, &metadata, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("telemetry: scan log: %w", err)
		}
		r.Metadata = json.RawMessage(metadata)
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// Alerts returns alert rows matching the filter, newest first, capped
// at 100 rows.
func (s *Store) Alerts(ctx context.Context, f AlertFilter) ([]Alert, error) {
	where := " WHERE created_at >= $1"
	args := []any{f.Since}

	if f.Type != "" {
		args = append(args, f.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}

	query := "SELECT id, type, message, metadata, created_at FROM alerts" + where +
		" ORDER BY created_at DESC, id DESC LIMIT 100"

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		var a Alert
		var metadata string
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan alert: %w", err)
		}
		a.Metadata = json.RawMessage(metadata)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Metrics returns server metric rows newer than since, oldest first so
// clients can chart them without re-sorting.
func (s *Store) Metrics(ctx context.Context, since time.Time) ([]ServerMetric, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, cpu_load, memory_usage, uptime, created_at
		 FROM server_metrics WHERE created_at >= $1 ORDER BY created_at ASC, id ASC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("telemetry: query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []ServerMetric{}
	for rows.Next() {
		var m ServerMetric
		if err := rows.Scan(&m.ID, &m.CPULoad, &m.MemoryUsage, &m.Uptime, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// streamTables maps stream type names to their tables. Table names are
// never built from request input.
var streamTables = map[string]string{
	StreamBiometric: "biometrics",
	StreamLog:       "logs",
	StreamAlert:     "alerts",
	StreamMetric:    "server_metrics",
}

// MaxID returns the highest id currently present in the stream's table,
// or 0 for an empty table. Implements relay.Source.
func (s *Store) MaxID(ctx context.Context, stream string) (int64, error) {
	table, ok := streamTables[stream]
	if !ok {
		return 0, fmt.Errorf("telemetry: unknown stream %q", stream)
	}

	var max int64
	err := s.db.Pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s", table),
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("telemetry: max id for %s: %w", stream, err)
	}
	return max, nil
}

// After returns up to limit rows of the stream with id > afterID, in
// ascending id order. Implements relay.Source.
func (s *Store) After(ctx context.Context, stream string, afterID int64, limit int) ([]relay.Row, error) {
	switch stream {
	case StreamBiometric:
		return s.biometricsAfter(ctx, afterID, limit)
	case StreamLog:
		return s.logsAfter(ctx, afterID, limit)
	case StreamAlert:
		return s.alertsAfter(ctx, afterID, limit)
	case StreamMetric:
		return s.metricsAfter(ctx, afterID, limit)
	default:
		return nil, fmt.Errorf("telemetry: unknown stream %q", stream)
	}
}

func (s *Store) biometricsAfter(ctx context.Context, afterID int64, limit int) ([]relay.Row, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, device_id, heart_rate, systolic_bp, diastolic_bp, created_at
		 FROM biometrics WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: biometrics after %d: %w", afterID, err)
	}
	defer rows.Close()

	var out []relay.Row
	for rows.Next() {
		var b Biometric
		if err := rows.Scan(&b.ID, &b.DeviceID, &b.HeartRate, &b.SystolicBP, &b.DiastolicBP, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan biometric: %w", err)
		}
		out = append(out, relay.Row{ID: b.ID, Data: b})
	}
	return out, rows.Err()
}

func (s *Store) logsAfter(ctx context.Context, afterID int64, limit int) ([]relay.Row, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, level, message, metadata, created_at
		 FROM logs WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: logs after %d: %w", afterID, err)
	}
	defer rows.Close()

	var out []relay.Row
	for rows.Next() {
		var r LogRecord
		var metadata string
		if err := rows.Scan(&r.ID, &r.Level, &r.Message, &metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan log: %w", err)
		}
		r.Metadata = json.RawMessage(metadata)
		out = append(out, relay.Row{ID: r.ID, Data: r})
	}
	return out, rows.Err()
}

func (s *Store) alertsAfter(ctx context.Context, afterID int64, limit int) ([]relay.Row, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, type, message, metadata, created_at
		 FROM alerts WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: alerts after %d: %w", afterID, err)
	}
	defer rows.Close()

	var out []relay.Row
	for rows.Next() {
		var a Alert
		var metadata string
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan alert: %w", err)
		}
		a.Metadata = json.RawMessage(metadata)
		out = append(out, relay.Row{ID: a.ID, Data: a})
	}
	return out, rows.Err()
}

func (s *Store) metricsAfter(ctx context.Context, afterID int64, limit int) ([]relay.Row, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT id, cpu_load, memory_usage, uptime, created_at
		 FROM server_metrics WHERE id > $1 ORDER BY id ASC LIMIT $2`,
		afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metrics after %d: %w", afterID, err)
	}
	defer rows.Close()

	var out []relay.Row
	for rows.Next() {
		var m ServerMetric
		if err := rows.Scan(&m.ID, &m.CPULoad, &m.MemoryUsage, &m.Uptime, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("telemetry: scan metric: %w", err)
		}
		out = append(out, relay.Row{ID: m.ID, Data: m})
	}
	return out, rows.Err()
}
