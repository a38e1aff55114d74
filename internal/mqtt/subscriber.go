package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/ingest"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/logger"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/observability"
)

// Pipeline is where well-formed messages go.
type Pipeline interface {
	Ingest(ctx context.Context, channel string, b ingest.Batch) (int, error)
}

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	// ShareGroup, when set, subscribes through $share/<group>/ so processes in
	// the same group split the message stream instead of each getting a copy.
	ShareGroup string
	QoS        byte
}

// Filter is the subscription filter sent to the broker.
func (c Config) Filter() string {
	if c.ShareGroup == "" {
		return c.Topic
	}
	return "$share/" + c.ShareGroup + "/" + c.Topic
}

// Subscriber dispatches every inbound message to its own goroutine and never
// reports a result back to the broker side. Bad messages are dropped with a
// warning.
type Subscriber struct {
	client    paho.Client
	cfg       Config
	pipeline  Pipeline
	telemetry *observability.Telemetry
	log       zerolog.Logger

	// ctx outlives individual messages; Drain cancels it only after waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	draining bool
	inflight conc.WaitGroup
}

func NewSubscriber(cfg Config, pipeline Pipeline, tel *observability.Telemetry) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		cfg:       cfg,
		pipeline:  pipeline,
		telemetry: tel,
		log:       logger.WithComponent("mqtt"),
		ctx:       ctx,
		cancel:    cancel,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.log.Warn().Err(err).Msg("broker connection lost")
		})
	s.client = paho.NewClient(opts)
	return s
}

// Start begins connecting in the background and returns at once. The client
// keeps retrying while the broker is unreachable; subscriptions are
// (re)established on every connect.
func (s *Subscriber) Start() {
	s.log.Info().Str("broker", s.cfg.Broker).Str("client_id", s.cfg.ClientID).Msg("connecting to broker")
	token := s.client.Connect()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			s.log.Error().Err(err).Str("broker", s.cfg.Broker).Msg("mqtt connect failed")
		}
	}()
}

func (s *Subscriber) onConnect(c paho.Client) {
	filter := s.cfg.Filter()
	token := c.Subscribe(filter, s.cfg.QoS, s.dispatch)
	token.Wait()
	if err := token.Error(); err != nil {
		s.log.Error().Err(err).Str("topic", filter).Msg("subscribe failed")
		return
	}
	s.log.Info().Str("topic", filter).Uint8("qos", s.cfg.QoS).Msg("subscribed")
}

func (s *Subscriber) dispatch(_ paho.Client, msg paho.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.draining {
		return
	}

	topic, payload := msg.Topic(), msg.Payload()
	s.inflight.Go(func() {
		s.HandleMessage(s.ctx, topic, payload)
	})
}

// HandleMessage runs one message through parsing and, if it is well formed,
// the ingest pipeline. It never returns an error: every failure ends here.
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) {
	start := time.Now()
	defer s.telemetry.StageSince(observability.StageMessage, start)

	res := ingest.ParseMessage(topic, payload)
	if !res.OK() {
		s.telemetry.Ingest(observability.ChannelPubSub, observability.OutcomeError)
		s.log.Warn().
			Str("topic", topic).
			Str("device_id", res.Rejection.DeviceID).
			Str("reason", string(res.Rejection.Reason)).
			Str("detail", res.Rejection.Detail).
			Msg("message dropped")
		return
	}

	stored, err := s.pipeline.Ingest(ctx, observability.ChannelPubSub, res.Batch)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("topic", topic).
			Str("device_id", res.Batch.DeviceID).
			Msg("message processing failed")
		return
	}
	s.log.Debug().Str("device_id", res.Batch.DeviceID).Int("metrics_count", stored).Msg("message ingested")
}

// Drain stops taking messages, waits for in-flight pipelines until ctx ends,
// then disconnects.
func (s *Subscriber) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	if s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Filter()).WaitTimeout(time.Second)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := s.inflight.WaitAndRecover(); r != nil {
			s.log.Error().Str("panic", fmt.Sprint(r.Value)).Msg("message handler panicked")
		}
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(errors.New("drain timed out with messages in flight"), ctx.Err())
	}

	s.cancel()
	s.client.Disconnect(250)
	return err
}
