package infra

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter builds a writer publishing to topic. Messages are keyed so
// that events for one account stay ordered within a partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}
