package database

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/config"
)

// Connect opens the process-wide connection pool. The caller owns it and
// must Close it on shutdown.
func Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", config.DBDSN())
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns())
	db.SetMaxIdleConns(config.DBMaxIdleConns())
	db.SetConnMaxLifetime(config.DBConnMaxLifetime())

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS metric_readings (
	device_id   TEXT             NOT NULL,
	metric_name TEXT             NOT NULL,
	ts          TIMESTAMPTZ      NOT NULL,
	value       DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS metric_readings_device_metric_ts_idx
	ON metric_readings (device_id, metric_name, ts);

CREATE TABLE IF NOT EXISTS rules (
	id          TEXT PRIMARY KEY,
	device_id   TEXT             NOT NULL,
	metric_name TEXT             NOT NULL,
	rule_type   TEXT             NOT NULL CHECK (rule_type IN ('MAX', 'MIN', 'RANGE')),
	min_value   DOUBLE PRECISION NULL,
	max_value   DOUBLE PRECISION NULL,
	enabled     BOOLEAN          NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ      NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS rules_device_metric_idx ON rules (device_id, metric_name) WHERE enabled;

CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	device_id    TEXT             NOT NULL,
	metric_name  TEXT             NOT NULL,
	rule_id      TEXT             NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	status       TEXT             NOT NULL CHECK (status IN ('ACTIVE', 'RESOLVED')),
	triggered_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
	resolved_at  TIMESTAMPTZ      NULL
);
CREATE INDEX IF NOT EXISTS alerts_status_triggered_idx ON alerts (status, triggered_at DESC);

CREATE TABLE IF NOT EXISTS devices (
	id           TEXT PRIMARY KEY,
	name         TEXT        NOT NULL,
	api_key_hash TEXT        NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tables the pipeline reads and writes. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
