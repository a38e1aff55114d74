package rules

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/logger"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/notify"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/repository"
)

// Engine runs the rule pass for stored readings. There is no suppression:
// every violation creates a new ACTIVE alert even if one is already open.
type Engine struct {
	rules     repository.RuleStore
	alerts    repository.AlertStore
	telemetry *observability.Telemetry
	notifier  notify.Notifier
	log       zerolog.Logger
}

// NewEngine wires the stores the pass reads from and writes to. notifier may
// be nil.
func NewEngine(rules repository.RuleStore, alerts repository.AlertStore, tel *observability.Telemetry, notifier notify.Notifier) *Engine {
	return &Engine{
		rules:     rules,
		alerts:    alerts,
		telemetry: tel,
		notifier:  notifier,
		log:       logger.WithComponent("rules"),
	}
}

// EvaluateReading creates one alert per enabled rule the reading violates and
// returns how many were created. Creations run concurrently; a failed one is
// logged and does not affect its siblings. The only error returned is a
// failure to load the rules.
func (e *Engine) EvaluateReading(ctx context.Context, reading domain.Reading) (int, error) {
	start := time.Now()
	defer e.telemetry.StageSince(observability.StageRules, start)

	candidates, err := e.rules.FindEnabled(ctx, reading.DeviceID, reading.MetricName)
	if err != nil {
		return 0, err
	}

	triggered := Triggered(candidates, reading.Value)
	if len(triggered) == 0 {
		return 0, nil
	}

	var created atomic.Int64
	p := pool.New()
	for _, rule := range triggered {
		p.Go(func() {
			if e.createAlert(ctx, reading, rule) {
				created.Add(1)
			}
		})
	}
	p.Wait()

	return int(created.Load()), nil
}

func (e *Engine) createAlert(ctx context.Context, reading domain.Reading, rule domain.Rule) bool {
	start := time.Now()
	alert, err := e.alerts.Create(ctx, domain.NewAlert{
		DeviceID:   reading.DeviceID,
		MetricName: reading.MetricName,
		RuleID:     rule.ID,
		Value:      reading.Value,
	})
	e.telemetry.WriteSince(observability.OpCreateAlert, start)
	if err != nil {
		e.log.Error().
			Err(err).
			Str("operation", "create_alert").
			Str("device_id", reading.DeviceID).
			Str("metric_name", reading.MetricName).
			Str("rule_id", rule.ID).
			Msg("alert creation failed")
		return false
	}

	e.telemetry.AlertTriggered(alert.DeviceID, alert.MetricName, string(rule.Type))
	e.log.Info().
		Str("alert_id", alert.ID).
		Str("device_id", alert.DeviceID).
		Str("metric_name", alert.MetricName).
		Str("rule_type", string(rule.Type)).
		Float64("value", alert.Value).
		Msg("alert triggered")

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, alert, rule); err != nil {
			e.log.Error().Err(err).Str("alert_id", alert.ID).Msg("alert notification failed")
		}
	}
	return true
}
