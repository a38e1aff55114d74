package ingest

import (
	"encoding/json"
	"strings"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

type RejectReason string

const (
	RejectTopic   RejectReason = "unexpected_topic"
	RejectJSON    RejectReason = "invalid_json"
	RejectPayload RejectReason = "invalid_payload"
	RejectMetric  RejectReason = "invalid_metric"
)

// Rejection says why a pub/sub message was dropped.
type Rejection struct {
	Reason   RejectReason
	DeviceID string
	Detail   string
}

// Result is either a well-formed batch or a rejection, never both.
type Result struct {
	Batch     Batch
	Rejection *Rejection
}

func (r Result) OK() bool { return r.Rejection == nil }

// ParseTopic extracts the device id from devices/{deviceId}/metrics.
func ParseTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "devices" || parts[2] != "metrics" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ParseMessage validates a pub/sub message end to end. A single malformed
// metric voids the whole message.
func ParseMessage(topic string, payload []byte) Result {
	deviceID, ok := ParseTopic(topic)
	if !ok {
		return reject(RejectTopic, "", "topic must match devices/{deviceId}/metrics")
	}

	var body struct {
		Metrics json.RawMessage `json:"metrics"`
	}
	if !json.Valid(payload) {
		return reject(RejectJSON, deviceID, "payload is not valid JSON")
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return reject(RejectPayload, deviceID, "payload must be a JSON object")
	}

	metrics, err := DecodeMetrics(body.Metrics)
	if err != nil {
		reason := RejectPayload
		if ve, ok := err.(*domain.ValidationError); ok && strings.HasPrefix(ve.Field, "metrics[") {
			reason = RejectMetric
		}
		return reject(reason, deviceID, err.Error())
	}

	return Result{Batch: Batch{DeviceID: deviceID, Metrics: metrics}}
}

func reject(reason RejectReason, deviceID, detail string) Result {
	return Result{Rejection: &Rejection{Reason: reason, DeviceID: deviceID, Detail: detail}}
}
