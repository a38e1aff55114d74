package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/domain"
)

// KafkaNotifier publishes alert events keyed by device id so a device's
// alerts stay on one partition.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  1,
			Async:        false,
		},
	}, nil
}

func (k *KafkaNotifier) Notify(ctx context.Context, alert domain.Alert, rule domain.Rule) error {
	msg, err := alertMessage(alert, rule)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

func alertMessage(alert domain.Alert, rule domain.Rule) (kafka.Message, error) {
	data, err := json.Marshal(NewAlertEvent(alert, rule))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafka.Message{
		Key:   []byte(alert.DeviceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(alert.ID)},
			{Key: "rule_type", Value: []byte(rule.Type)},
		},
		Time: alert.TriggeredAt,
	}, nil
}
