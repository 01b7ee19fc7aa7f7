package database

// Schema contains the SQL statements bootstrapped on startup. The four
// entity-stream tables (biometrics, logs, alerts, server_metrics) are
// append-only: rows are inserted with an auto-increment id and never
// updated, which is what lets the change-relay use the id as a cursor.
const Schema = `
-- biometrics: Device telemetry samples. device_id is required; the
-- individual vitals are independently nullable.
CREATE TABLE IF NOT EXISTS biometrics (
    id           BIGSERIAL PRIMARY KEY,
    device_id    TEXT NOT NULL,
    heart_rate   DOUBLE PRECISION,
    systolic_bp  DOUBLE PRECISION,
    diastolic_bp DOUBLE PRECISION,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- logs: Service log records. metadata always holds valid JSON text;
-- the ingestion gateway stores '{}' when the producer sent none.
CREATE TABLE IF NOT EXISTS logs (
    id         BIGSERIAL PRIMARY KEY,
    level      TEXT NOT NULL,
    message    TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);

-- alerts: Written by the upstream threshold monitor, never by this
-- service. Read here for historical queries and the live relay.
CREATE TABLE IF NOT EXISTS alerts (
    id         BIGSERIAL PRIMARY KEY,
    type       TEXT NOT NULL,
    message    TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);

-- server_metrics: Host resource snapshots reported by the upstream
-- monitor.
CREATE TABLE IF NOT EXISTS server_metrics (
    id           BIGSERIAL PRIMARY KEY,
    cpu_load     DOUBLE PRECISION NOT NULL,
    memory_usage DOUBLE PRECISION NOT NULL,
    uptime       BIGINT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_server_metrics_created_at ON server_metrics(created_at);

-- users: Dashboard accounts.
--
-- Roles:
--   member — regular account.
--   admin  — can list, approve, modify, and delete accounts.
--
-- is_approved lifecycle:
--   0 — pending: created on registration, cannot log in yet.
--   1 — approved: by admin action; full access.
--   2 — withdrawal-requested: set by the account itself; an admin
--       either deletes the row or reverts to 1.
CREATE TABLE IF NOT EXISTS users (
    id          SERIAL PRIMARY KEY,
    username    TEXT UNIQUE NOT NULL,
    password    TEXT NOT NULL,
    role        TEXT NOT NULL DEFAULT 'member',
    is_approved SMALLINT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- login_attempts: Write-only audit trail of failed login/register
-- attempts. Rows are never updated; the throttle decision is always
-- recomputed by counting rows inside the rolling window.
CREATE TABLE IF NOT EXISTS login_attempts (
    id           BIGSERIAL PRIMARY KEY,
    username     TEXT,
    ip           TEXT NOT NULL,
    attempt_type TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts(ip, attempt_type, created_at);
CREATE INDEX IF NOT EXISTS idx_login_attempts_username ON login_attempts(username, attempt_type, created_at);
`
