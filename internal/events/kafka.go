package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives all economy events.
const DefaultTopic = "stakegate_events"

// KafkaSink writes events as JSON messages keyed by subject.
type KafkaSink struct {
	w *kafka.Writer
}

// NewKafkaSink creates a writer for topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Name implements Sink.
func (k *KafkaSink) Name() string { return "kafka" }

// Write implements Sink.
func (k *KafkaSink) Write(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Subject),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

// Close implements Sink.
func (k *KafkaSink) Close() error {
	return k.w.Close()
}
