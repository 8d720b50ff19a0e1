package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the emitter needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEmitter publishes events as JSON keyed by account id, so every
// account's events land on one partition in order.
type KafkaEmitter struct {
	writer MessageWriter
}

func NewKafkaEmitter(writer MessageWriter) *KafkaEmitter {
	return &KafkaEmitter{writer: writer}
}

func (k *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
}
