package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// KafkaSink зеркалирует события шины в топик Kafka
type KafkaSink struct {
	writer *kafkago.Writer
}

// NewKafkaSink создает продюсер для указанных брокеров и топика
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &KafkaSink{writer: w}
}

// Publish отправляет событие в Kafka. События одного объекта попадают в одну партицию.
func (k *KafkaSink) Publish(ctx context.Context, event Event) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("eventbus: could not write event to kafka: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func serializeToMessage(event Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.EntityID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "topic", Value: []byte(event.Topic)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
