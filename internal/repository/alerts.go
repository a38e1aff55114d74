package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

const alertColumns = `id, device_id, metric_name, rule_id, value, status, triggered_at, resolved_at`

type PostgresAlerts struct {
	db  *sqlx.DB
	now func() time.Time
}

func (r *PostgresAlerts) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// Create always inserts a new ACTIVE row; earlier alerts for the same rule are
// left untouched.
func (r *PostgresAlerts) Create(ctx context.Context, a domain.NewAlert) (domain.Alert, error) {
	var out domain.Alert
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO alerts (id, device_id, metric_name, rule_id, value, status, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+alertColumns,
		uuid.NewString(), a.DeviceID, a.MetricName, a.RuleID, a.Value, domain.AlertActive, r.clock())
	if err != nil {
		return domain.Alert{}, domain.StorageErr("create alert", err)
	}
	return out, nil
}

// Resolve has no guard against resolving twice: resolved_at is overwritten.
func (r *PostgresAlerts) Resolve(ctx context.Context, id string, at time.Time) (domain.Alert, error) {
	var out domain.Alert
	err := r.db.GetContext(ctx, &out, `
		UPDATE alerts
		SET status = $2,
		    resolved_at = $3
		WHERE id = $1
		RETURNING `+alertColumns,
		id, domain.AlertResolved, at.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Alert{}, domain.StorageErr("resolve alert", err)
	}
	return out, nil
}

func (r *PostgresAlerts) Query(ctx context.Context, f domain.AlertFilter) ([]domain.Alert, error) {
	where, args := alertConditions(f)

	query, params, err := sqlx.Named(`
		SELECT `+alertColumns+`
		FROM alerts
		WHERE `+where+`
		ORDER BY triggered_at DESC`, args)
	if err != nil {
		return nil, err
	}

	out := []domain.Alert{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), params...); err != nil {
		return nil, domain.StorageErr("query alerts", err)
	}
	return out, nil
}

// alertConditions turns the optional filter fields into a WHERE body with
// named parameters.
func alertConditions(f domain.AlertFilter) (string, map[string]any) {
	where := []string{}
	args := map[string]any{}

	if f.Status != nil {
		where = append(where, "status = :status")
		args["status"] = string(*f.Status)
	}
	if f.DeviceID != "" {
		where = append(where, "device_id = :device_id")
		args["device_id"] = f.DeviceID
	}
	if f.MetricName != "" {
		where = append(where, "metric_name = :metric_name")
		args["metric_name"] = f.MetricName
	}
	if f.From != nil {
		where = append(where, "triggered_at >= :from")
		args["from"] = f.From.UTC()
	}
	if f.To != nil {
		where = append(where, "triggered_at <= :to")
		args["to"] = f.To.UTC()
	}

	if len(where) == 0 {
		return "TRUE", args
	}
	return strings.Join(where, " AND "), args
}
