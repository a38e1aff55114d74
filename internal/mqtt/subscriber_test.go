package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/ingest"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/repository"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/service"
)

type message struct {
	topic   string
	payload []byte
}

func (m message) Duplicate() bool   { return false }
func (m message) Qos() byte         { return 1 }
func (m message) Retained() bool    { return false }
func (m message) Topic() string     { return m.topic }
func (m message) MessageID() uint16 { return 1 }
func (m message) Payload() []byte   { return m.payload }
func (m message) Ack()              {}

type blockingPipeline struct {
	release chan struct{}
	mu      sync.Mutex
	batches []ingest.Batch
}

func (p *blockingPipeline) Ingest(_ context.Context, _ string, b ingest.Batch) (int, error) {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, b)
	return len(b.Metrics), nil
}

func testConfig() Config {
	return Config{Broker: "tcp://127.0.0.1:1", ClientID: "test", Topic: "devices/+/metrics", QoS: 1}
}

func TestHandleMessageDropsMalformedMetric(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	repos := repository.NewMemory()
	readings := repos.Readings.(*repository.MemoryReadings)
	limit := 0.0
	_, err := repos.Rules.Create(ctx, domain.Rule{DeviceID: "D", MetricName: "x", Type: domain.RuleMax, MaxValue: &limit, Enabled: true})
	is.NoErr(err)

	tel := observability.New()
	svcs := service.New(repos, tel, service.Options{})
	sub := NewSubscriber(testConfig(), svcs.Ingest, tel)

	sub.HandleMessage(ctx, "devices/D/metrics", []byte(`{"metrics":[{"name":"x","value":"not-a-number"}]}`))
	sub.HandleMessage(ctx, "devices/D", []byte(`{"metrics":[{"name":"x","value":1}]}`))
	sub.HandleMessage(ctx, "devices/D/metrics", []byte(`{not json`))

	is.Equal(readings.Len(), 0)
	alerts, _ := repos.Alerts.Query(ctx, domain.AlertFilter{})
	is.Equal(len(alerts), 0)

	sub.HandleMessage(ctx, "devices/D/metrics", []byte(`{"metrics":[{"name":"X","value":5}]}`))
	is.Equal(readings.Len(), 1)
	alerts, _ = repos.Alerts.Query(ctx, domain.AlertFilter{DeviceID: "D", MetricName: "x"})
	is.Equal(len(alerts), 1)
}

func TestDispatchDoesNotBlockAndDrainWaits(t *testing.T) {
	is := is.New(t)
	pipeline := &blockingPipeline{release: make(chan struct{})}
	sub := NewSubscriber(testConfig(), pipeline, observability.New())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			sub.dispatch(nil, message{topic: "devices/D/metrics", payload: []byte(`{"metrics":[{"name":"t","value":1}]}`)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on in-flight pipelines")
	}

	close(pipeline.release)
	is.NoErr(sub.Drain(context.Background()))
	is.Equal(len(pipeline.batches), 5)

	// Messages arriving after Drain are ignored.
	sub.dispatch(nil, message{topic: "devices/D/metrics", payload: []byte(`{"metrics":[{"name":"t","value":1}]}`)})
	is.Equal(len(pipeline.batches), 5)
}

func TestDrainGivesUpWhenContextEnds(t *testing.T) {
	is := is.New(t)
	pipeline := &blockingPipeline{release: make(chan struct{})}
	defer close(pipeline.release)
	sub := NewSubscriber(testConfig(), pipeline, observability.New())

	sub.dispatch(nil, message{topic: "devices/D/metrics", payload: []byte(`{"metrics":[{"name":"t","value":1}]}`)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sub.Drain(ctx)
	is.True(errors.Is(err, context.DeadlineExceeded))
}

func TestStartReturnsWhileBrokerUnreachable(t *testing.T) {
	is := is.New(t)
	sub := NewSubscriber(testConfig(), &blockingPipeline{release: make(chan struct{})}, observability.New())

	started := make(chan struct{})
	go func() {
		sub.Start()
		close(started)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("Start blocked on an unreachable broker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	is.NoErr(sub.Drain(ctx))
}

func TestConfigFilterUsesShareGroup(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	is.Equal(cfg.Filter(), "devices/+/metrics")

	cfg.ShareGroup = "hub"
	is.Equal(cfg.Filter(), "$share/hub/devices/+/metrics")
}
