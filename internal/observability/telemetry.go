package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ChannelHTTP   = "http"
	ChannelPubSub = "pubsub"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Pipeline stages and storage operations used as histogram labels.
const (
	StageIngest   = "ingest_pipeline"
	StageRules    = "rules_evaluation"
	StageMessage  = "pubsub_message"
	OpInsert      = "insert_readings"
	OpCreateAlert = "create_alert"
	OpResolve     = "resolve_alert"
)

var latencyBucketsMs = []float64{5, 10, 25, 50, 100, 250, 500, 1000}

// Telemetry owns the registry and every series the pipeline reports.
type Telemetry struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	ingestTotal     *prometheus.CounterVec
	alertsTriggered *prometheus.CounterVec
	processing      *prometheus.HistogramVec
	dbWrite         *prometheus.HistogramVec
}

func New() *Telemetry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t := &Telemetry{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests received by the backend.",
			},
			[]string{"method", "path", "status_code"},
		),
		ingestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iot_ingest_total",
				Help: "Total number of ingest operations.",
			},
			[]string{"channel", "result"},
		),
		alertsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iot_alerts_triggered_total",
				Help: "Total number of alerts triggered by the rules engine.",
			},
			[]string{"device_id", "metric_name", "rule_type"},
		),
		processing: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iot_processing_latency_ms",
				Help:    "Processing latency in milliseconds for the ingest pipeline.",
				Buckets: latencyBucketsMs,
			},
			[]string{"stage"},
		),
		dbWrite: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iot_db_write_latency_ms",
				Help:    "Database write latency in milliseconds.",
				Buckets: latencyBucketsMs,
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(t.httpRequests, t.ingestTotal, t.alertsTriggered, t.processing, t.dbWrite)
	return t
}

func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

func (t *Telemetry) HTTPRequest(method, path string, status int) {
	t.httpRequests.WithLabelValues(
		strings.ToUpper(method),
		strings.ToLower(path),
		strconv.Itoa(status),
	).Inc()
}

func (t *Telemetry) Ingest(channel, outcome string) {
	t.ingestTotal.WithLabelValues(channel, outcome).Inc()
}

func (t *Telemetry) AlertTriggered(deviceID, metricName, ruleType string) {
	t.alertsTriggered.WithLabelValues(deviceID, metricName, ruleType).Inc()
}

// ObserveStage records ms latency for a pipeline stage. Negative samples
// (clock skew) are dropped.
func (t *Telemetry) ObserveStage(stage string, ms float64) {
	if ms < 0 {
		return
	}
	t.processing.WithLabelValues(stage).Observe(ms)
}

func (t *Telemetry) ObserveWrite(operation string, ms float64) {
	if ms < 0 {
		return
	}
	t.dbWrite.WithLabelValues(operation).Observe(ms)
}

func (t *Telemetry) StageSince(stage string, start time.Time) {
	t.ObserveStage(stage, Millis(time.Since(start)))
}

func (t *Telemetry) WriteSince(operation string, start time.Time) {
	t.ObserveWrite(operation, Millis(time.Since(start)))
}

// Handler renders every registered series in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
