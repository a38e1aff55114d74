package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// ReadingStore is the time-series store.
type ReadingStore interface {
	// Append writes the whole batch as one storage operation.
	Append(ctx context.Context, readings []domain.Reading) error
	// Query returns readings with from <= ts <= to in ascending ts order.
	Query(ctx context.Context, deviceID, metricName string, from, to time.Time) ([]domain.Reading, error)
}

type RuleStore interface {
	// FindEnabled returns enabled rules for (device, metric), oldest first.
	// Metric names match case-insensitively.
	FindEnabled(ctx context.Context, deviceID, metricName string) ([]domain.Rule, error)
	Create(ctx context.Context, rule domain.Rule) (domain.Rule, error)
}

type AlertStore interface {
	Create(ctx context.Context, a domain.NewAlert) (domain.Alert, error)
	// Resolve returns domain.ErrNotFound when no alert has that id.
	Resolve(ctx context.Context, id string, at time.Time) (domain.Alert, error)
	// Query returns matches newest first.
	Query(ctx context.Context, f domain.AlertFilter) ([]domain.Alert, error)
}

type Repos struct {
	Readings ReadingStore
	Rules    RuleStore
	Alerts   AlertStore
}

func New(db *sqlx.DB) *Repos {
	return &Repos{
		Readings: &PostgresReadings{db: db},
		Rules:    &PostgresRules{db: db},
		Alerts:   &PostgresAlerts{db: db},
	}
}
