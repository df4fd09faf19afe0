package es

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer used by KafkaNotifier
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes notifications to a Kafka topic, keyed by aggregate so
// notifications for one aggregate stay ordered within a partition
type KafkaNotifier struct {
	Writer MessageWriter
}

// NewKafkaNotifier creates a KafkaNotifier writing to topic
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish sends data as JSON
func (p *KafkaNotifier) Publish(ctx context.Context, data interface{}) error {
	value, err := json.Marshal(data)
	if err != nil {
		return err
	}

	msg := kafka.Message{Value: value}
	if packet, ok := data.(Packet); ok {
		msg.Key = []byte(packet.AggregateID)
		msg.Headers = []kafka.Header{
			{Key: "event_types", Value: []byte(strings.Join(packet.Types, ","))},
		}
	}
	return p.Writer.WriteMessages(ctx, msg)
}

// Close closes the underlying writer when it supports it
func (p *KafkaNotifier) Close() error {
	if closer, ok := p.Writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
