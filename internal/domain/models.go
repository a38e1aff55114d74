package domain

import "time"

// Reading is one stored (device, metric, timestamp, value) fact.
type Reading struct {
	DeviceID   string    `db:"device_id" json:"device_id"`
	MetricName string    `db:"metric_name" json:"metric_name"`
	Timestamp  time.Time `db:"ts" json:"ts"`
	Value      float64   `db:"value" json:"value"`
}

type RuleType string

const (
	RuleMax   RuleType = "MAX"
	RuleMin   RuleType = "MIN"
	RuleRange RuleType = "RANGE"
)

// Rule is a threshold condition scoped to one device and metric.
// A rule missing the bound its type needs is stored as-is and never fires.
type Rule struct {
	ID         string    `db:"id" json:"id"`
	DeviceID   string    `db:"device_id" json:"deviceId"`
	MetricName string    `db:"metric_name" json:"metricName"`
	Type       RuleType  `db:"rule_type" json:"ruleType"`
	MinValue   *float64  `db:"min_value" json:"minValue"`
	MaxValue   *float64  `db:"max_value" json:"maxValue"`
	Enabled    bool      `db:"enabled" json:"enabled"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type AlertStatus string

const (
	AlertActive   AlertStatus = "ACTIVE"
	AlertResolved AlertStatus = "RESOLVED"
)

func (s AlertStatus) Valid() bool {
	return s == AlertActive || s == AlertResolved
}

type Alert struct {
	ID          string      `db:"id" json:"id"`
	DeviceID    string      `db:"device_id" json:"deviceId"`
	MetricName  string      `db:"metric_name" json:"metricName"`
	RuleID      string      `db:"rule_id" json:"ruleId"`
	Value       float64     `db:"value" json:"value"`
	Status      AlertStatus `db:"status" json:"status"`
	TriggeredAt time.Time   `db:"triggered_at" json:"triggeredAt"`
	ResolvedAt  *time.Time  `db:"resolved_at" json:"resolvedAt"`
}

// NewAlert carries what the orchestrator knows when a rule fires.
type NewAlert struct {
	DeviceID   string
	MetricName string
	RuleID     string
	Value      float64
}

// AlertFilter fields are optional and combined with AND.
// From and To bound TriggeredAt inclusively.
type AlertFilter struct {
	Status     *AlertStatus
	DeviceID   string
	MetricName string
	From       *time.Time
	To         *time.Time
}

func (f AlertFilter) Match(a Alert) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.DeviceID != "" && a.DeviceID != f.DeviceID {
		return false
	}
	if f.MetricName != "" && a.MetricName != f.MetricName {
		return false
	}
	if f.From != nil && a.TriggeredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && a.TriggeredAt.After(*f.To) {
		return false
	}
	return true
}
