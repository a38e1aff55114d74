package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// Metric is one validated entry of a submitted batch.
type Metric struct {
	Name      string
	Value     float64
	Timestamp *time.Time
}

// Batch is a validated submission correlated to one device.
type Batch struct {
	DeviceID string
	Metrics  []Metric
}

type rawRequest struct {
	DeviceID *string        `json:"device_id"`
	Metrics  json.RawMessage `json:"metrics"`
}

type rawMetric struct {
	Name  *string  `json:"name"`
	Value *float64 `json:"value"`
	TS    *string  `json:"ts"`
}

// ISO-8601 shapes accepted for ts. Offsets are honoured; forms without one
// are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// DecodeRequest parses the HTTP ingest body {device_id, metrics:[...]}.
// Any malformed metric rejects the whole batch.
func DecodeRequest(body []byte) (Batch, error) {
	var req rawRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return Batch{}, domain.Invalid("body", "invalid JSON: %v", err)
	}
	if req.DeviceID == nil || strings.TrimSpace(*req.DeviceID) == "" {
		return Batch{}, domain.Invalid("device_id", "must be a non-empty string")
	}

	metrics, err := DecodeMetrics(req.Metrics)
	if err != nil {
		return Batch{}, err
	}
	return Batch{DeviceID: strings.TrimSpace(*req.DeviceID), Metrics: metrics}, nil
}

// DecodeMetrics validates the metrics array shared by both channels.
func DecodeMetrics(raw json.RawMessage) ([]Metric, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, domain.Invalid("metrics", "is required")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, domain.Invalid("metrics", "must be an array")
	}
	if len(items) == 0 {
		return nil, domain.Invalid("metrics", "must contain at least one metric")
	}

	out := make([]Metric, 0, len(items))
	for i, item := range items {
		m, err := decodeMetric(item)
		if err != nil {
			return nil, domain.Invalid(fmt.Sprintf("metrics[%d]", i), "%s", err.Error())
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeMetric(item json.RawMessage) (Metric, error) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Metric{}, fmt.Errorf("must be an object")
	}

	var rm rawMetric
	if err := json.Unmarshal(trimmed, &rm); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return Metric{}, fmt.Errorf("%s has the wrong type", te.Field)
		}
		return Metric{}, err
	}

	if rm.Name == nil || strings.TrimSpace(*rm.Name) == "" {
		return Metric{}, fmt.Errorf("name must be a non-empty string")
	}
	if rm.Value == nil {
		return Metric{}, fmt.Errorf("value must be a number")
	}
	if math.IsNaN(*rm.Value) || math.IsInf(*rm.Value, 0) {
		return Metric{}, fmt.Errorf("value must be finite")
	}

	m := Metric{Name: *rm.Name, Value: *rm.Value}
	if rm.TS != nil {
		ts, err := ParseTimestamp(*rm.TS)
		if err != nil {
			return Metric{}, err
		}
		m.Timestamp = &ts
	}
	return m, nil
}

// ParseTimestamp accepts the ISO-8601 layouts above and returns UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("ts %q is not a valid ISO-8601 timestamp", s)
}

// Normalize lower-cases metric names and stamps missing timestamps with now,
// keeping input order.
func Normalize(b Batch, now time.Time) []domain.Reading {
	readings := make([]domain.Reading, 0, len(b.Metrics))
	for _, m := range b.Metrics {
		ts := now.UTC()
		if m.Timestamp != nil {
			ts = *m.Timestamp
		}
		readings = append(readings, domain.Reading{
			DeviceID:   b.DeviceID,
			MetricName: strings.ToLower(m.Name),
			Timestamp:  ts,
			Value:      m.Value,
		})
	}
	return readings
}
