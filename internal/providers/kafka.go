package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"marketwatch/internal/models"
)

// KafkaPublisher publishes triggered alerts to a Kafka topic so other
// services can consume them alongside the direct user channels.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher against the given broker and topic.
func NewKafkaPublisher(broker, topic string) (*KafkaPublisher, error) {
	if broker == "" {
		return nil, fmt.Errorf("kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // partition by task id
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

// kafkaAlert is the published payload.
type kafkaAlert struct {
	Event   models.AlertEvent `json:"event"`
	Message string            `json:"message"`
}

// Send publishes one alert. It satisfies dispatch.SendFunc; channel params
// are not used.
func (p *KafkaPublisher) Send(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams) error {
	data, err := json.Marshal(kafkaAlert{Event: event, Message: message})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TaskID),
		Value: data,
		Time:  event.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert to kafka: %w", err)
	}
	return nil
}

// Close shuts the underlying writer down.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
