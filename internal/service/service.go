package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/ingest"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/logger"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/notify"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/repository"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/rules"
)

// Archiver keeps an off-box copy of stored readings.
type Archiver interface {
	Archive(ctx context.Context, deviceID string, readings []domain.Reading) error
}

type Options struct {
	Notifier notify.Notifier
	Archiver Archiver
	// Now defaults to the UTC wall clock.
	Now func() time.Time
}

type Services struct {
	Repos     *repository.Repos
	Telemetry *observability.Telemetry
	Ingest    *IngestService
	Alerts    *AlertService
	Metrics   *MetricService
}

func New(repos *repository.Repos, tel *observability.Telemetry, opts Options) *Services {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	engine := rules.NewEngine(repos.Rules, repos.Alerts, tel, opts.Notifier)
	return &Services{
		Repos:     repos,
		Telemetry: tel,
		Ingest: &IngestService{
			readings:  repos.Readings,
			engine:    engine,
			archiver:  opts.Archiver,
			telemetry: tel,
			now:       now,
			log:       logger.WithComponent("ingest"),
		},
		Alerts:  &AlertService{alerts: repos.Alerts, telemetry: tel, now: now},
		Metrics: &MetricService{readings: repos.Readings},
	}
}

// IngestService is the pipeline both channels feed: normalize, append, then
// run the rule pass for each stored reading in input order.
type IngestService struct {
	readings  repository.ReadingStore
	engine    *rules.Engine
	archiver  Archiver
	telemetry *observability.Telemetry
	now       func() time.Time
	log       zerolog.Logger
}

// Ingest stores a validated batch and returns the number of readings stored.
// Only the append can fail the call; the rule pass is best effort.
func (s *IngestService) Ingest(ctx context.Context, channel string, b ingest.Batch) (int, error) {
	start := time.Now()
	stored, err := s.ingest(ctx, b)
	s.telemetry.StageSince(observability.StageIngest, start)

	if err != nil {
		s.telemetry.Ingest(channel, observability.OutcomeError)
		s.log.Error().
			Err(err).
			Str("operation", "ingest").
			Str("channel", channel).
			Str("device_id", b.DeviceID).
			Int("metrics_count", len(b.Metrics)).
			Msg("ingest failed")
		return 0, err
	}

	s.telemetry.Ingest(channel, observability.OutcomeSuccess)
	s.log.Debug().
		Str("channel", channel).
		Str("device_id", b.DeviceID).
		Int("metrics_count", stored).
		Msg("batch stored")
	return stored, nil
}

// Reject records a batch refused before it reached the pipeline.
func (s *IngestService) Reject(channel string) {
	s.telemetry.Ingest(channel, observability.OutcomeError)
}

func (s *IngestService) ingest(ctx context.Context, b ingest.Batch) (int, error) {
	if len(b.Metrics) == 0 {
		return 0, domain.Invalid("metrics", "must contain at least one metric")
	}

	readings := ingest.Normalize(b, s.now())

	writeStart := time.Now()
	err := s.readings.Append(ctx, readings)
	s.telemetry.WriteSince(observability.OpInsert, writeStart)
	if err != nil {
		return 0, err
	}

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, b.DeviceID, readings); err != nil {
			s.log.Warn().Err(err).Str("device_id", b.DeviceID).Msg("archive failed")
		}
	}

	for _, r := range readings {
		if _, err := s.engine.EvaluateReading(ctx, r); err != nil {
			s.log.Error().
				Err(err).
				Str("operation", "evaluate_rules").
				Str("device_id", r.DeviceID).
				Str("metric_name", r.MetricName).
				Msg("rule evaluation failed")
		}
	}
	return len(readings), nil
}

type AlertService struct {
	alerts    repository.AlertStore
	telemetry *observability.Telemetry
	now       func() time.Time
}

func (s *AlertService) Query(ctx context.Context, f domain.AlertFilter) ([]domain.Alert, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, domain.Invalid("from", "must not be later than to")
	}
	return s.alerts.Query(ctx, f)
}

// Resolve marks the alert RESOLVED at the current time. Resolving twice
// overwrites resolvedAt.
func (s *AlertService) Resolve(ctx context.Context, id string) (domain.Alert, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Alert{}, domain.Invalid("id", "is required")
	}
	start := time.Now()
	alert, err := s.alerts.Resolve(ctx, id, s.now())
	s.telemetry.WriteSince(observability.OpResolve, start)
	return alert, err
}

type MetricService struct {
	readings repository.ReadingStore
}

// Range returns the device's readings for one metric with from <= ts <= to.
func (s *MetricService) Range(ctx context.Context, deviceID, metricName string, from, to time.Time) ([]domain.Reading, error) {
	if from.After(to) {
		return nil, domain.Invalid("from", "must not be later than to")
	}
	return s.readings.Query(ctx, deviceID, strings.ToLower(metricName), from, to)
}
