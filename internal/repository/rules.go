package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

const ruleColumns = `id, device_id, metric_name, rule_type, min_value, max_value, enabled, created_at`

type PostgresRules struct {
	db *sqlx.DB
}

func (r *PostgresRules) FindEnabled(ctx context.Context, deviceID, metricName string) ([]domain.Rule, error) {
	out := []domain.Rule{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE device_id = $1
		  AND lower(metric_name) = lower($2)
		  AND enabled = TRUE
		ORDER BY created_at ASC`, deviceID, metricName)
	if err != nil {
		return nil, domain.StorageErr("find rules", err)
	}
	return out, nil
}

// Create stores the metric name lower-cased, the same form readings use.
func (r *PostgresRules) Create(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	rule.MetricName = strings.ToLower(rule.MetricName)
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.db.BindNamed(`
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (:id, :device_id, :metric_name, :rule_type, :min_value, :max_value, :enabled, :created_at)
		RETURNING `+ruleColumns, rule)
	if err != nil {
		return domain.Rule{}, err
	}

	var out domain.Rule
	if err := r.db.GetContext(ctx, &out, query, args...); err != nil {
		return domain.Rule{}, domain.StorageErr("create rule", err)
	}
	return out, nil
}
