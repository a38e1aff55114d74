package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

func TestDecodeRequestAcceptsWellFormedBatch(t *testing.T) {
	is := is.New(t)

	b, err := DecodeRequest([]byte(`{
		"device_id": "d1",
		"metrics": [
			{"name": "Temperature", "value": 21.5, "ts": "2025-11-24T10:00:00Z"},
			{"name": "humidity", "value": 40}
		]
	}`))
	is.NoErr(err)
	is.Equal(b.DeviceID, "d1")
	is.Equal(len(b.Metrics), 2)
	is.Equal(b.Metrics[0].Timestamp.Equal(time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)), true)
	is.True(b.Metrics[1].Timestamp == nil)
}

func TestDecodeRequestRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"missing device":    `{"metrics":[{"name":"t","value":1}]}`,
		"blank device":      `{"device_id":"  ","metrics":[{"name":"t","value":1}]}`,
		"missing metrics":   `{"device_id":"d1"}`,
		"null metrics":      `{"device_id":"d1","metrics":null}`,
		"metrics object":    `{"device_id":"d1","metrics":{"name":"t"}}`,
		"empty metrics":     `{"device_id":"d1","metrics":[]}`,
		"metric not object": `{"device_id":"d1","metrics":[3]}`,
		"missing name":      `{"device_id":"d1","metrics":[{"value":1}]}`,
		"empty name":        `{"device_id":"d1","metrics":[{"name":"","value":1}]}`,
		"numeric name":      `{"device_id":"d1","metrics":[{"name":5,"value":1}]}`,
		"missing value":     `{"device_id":"d1","metrics":[{"name":"t"}]}`,
		"string value":      `{"device_id":"d1","metrics":[{"name":"t","value":"12"}]}`,
		"null value":        `{"device_id":"d1","metrics":[{"name":"t","value":null}]}`,
		"bad ts":            `{"device_id":"d1","metrics":[{"name":"t","value":1,"ts":"yesterday"}]}`,
		"one bad of many":   `{"device_id":"d1","metrics":[{"name":"t","value":1},{"name":"h","value":"x"}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			_, err := DecodeRequest([]byte(body))
			is.True(err != nil)
			var ve *domain.ValidationError
			is.True(errors.As(err, &ve))
		})
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	is := is.New(t)

	for _, s := range []string{
		"2025-11-24T10:00:00Z",
		"2025-11-24T12:00:00+02:00",
		"2025-11-24T10:00:00.000Z",
		"2025-11-24T10:00:00",
	} {
		ts, err := ParseTimestamp(s)
		is.NoErr(err)
		is.True(ts.Equal(time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)))
		is.Equal(ts.Location(), time.UTC)
	}

	day, err := ParseTimestamp("2025-11-24")
	is.NoErr(err)
	is.True(day.Equal(time.Date(2025, 11, 24, 0, 0, 0, 0, time.UTC)))

	_, err = ParseTimestamp("24/11/2025")
	is.True(err != nil)
}

func TestNormalizeLowercasesAndStampsMissingTimestamps(t *testing.T) {
	is := is.New(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	given := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	readings := Normalize(Batch{
		DeviceID: "d1",
		Metrics: []Metric{
			{Name: "Temperature", Value: 1},
			{Name: "HUMIDITY", Value: 2, Timestamp: &given},
		},
	}, now)

	is.Equal(readings, []domain.Reading{
		{DeviceID: "d1", MetricName: "temperature", Timestamp: now, Value: 1},
		{DeviceID: "d1", MetricName: "humidity", Timestamp: given, Value: 2},
	})
}
