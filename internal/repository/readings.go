package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

type PostgresReadings struct {
	db *sqlx.DB
}

func NewPostgresReadings(db *sqlx.DB) *PostgresReadings { return &PostgresReadings{db: db} }

func (r *PostgresReadings) Append(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	// sqlx expands the slice into a single multi-row INSERT.
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO metric_readings (device_id, metric_name, ts, value)
		 VALUES (:device_id, :metric_name, :ts, :value)`, readings)
	return domain.StorageErr("insert readings", err)
}

func (r *PostgresReadings) Query(ctx context.Context, deviceID, metricName string, from, to time.Time) ([]domain.Reading, error) {
	out := []domain.Reading{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT device_id, metric_name, ts, value
		FROM metric_readings
		WHERE device_id = $1
		  AND metric_name = $2
		  AND ts >= $3
		  AND ts <= $4
		ORDER BY ts ASC`,
		deviceID, metricName, from, to)
	if err != nil {
		return nil, domain.StorageErr("query readings", err)
	}
	return out, nil
}
