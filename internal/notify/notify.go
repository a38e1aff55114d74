package notify

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// Notifier forwards a freshly created alert to an outside channel. It never
// influences whether the alert exists.
type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert, rule domain.Rule) error
}

// Multi fans an alert out to every notifier, collecting all failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert domain.Alert, rule domain.Rule) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, alert, rule); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if c, ok := n.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// AlertEvent is the wire form shared by every notifier.
type AlertEvent struct {
	AlertID     string          `json:"alert_id"`
	DeviceID    string          `json:"device_id"`
	MetricName  string          `json:"metric_name"`
	RuleID      string          `json:"rule_id"`
	RuleType    domain.RuleType `json:"rule_type"`
	MinValue    *float64        `json:"min_value,omitempty"`
	MaxValue    *float64        `json:"max_value,omitempty"`
	Value       float64         `json:"value"`
	Status      string          `json:"status"`
	TriggeredAt time.Time       `json:"triggered_at"`
}

func NewAlertEvent(alert domain.Alert, rule domain.Rule) AlertEvent {
	return AlertEvent{
		AlertID:     alert.ID,
		DeviceID:    alert.DeviceID,
		MetricName:  alert.MetricName,
		RuleID:      alert.RuleID,
		RuleType:    rule.Type,
		MinValue:    rule.MinValue,
		MaxValue:    rule.MaxValue,
		Value:       alert.Value,
		Status:      string(alert.Status),
		TriggeredAt: alert.TriggeredAt,
	}
}
