package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes audit records through a single writer; the topic travels on each record.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer returns a producer for brokers. Records are keyed by organization and member, so
// the hash balancer keeps one member's history on one partition.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: false,
	}}
}

// WriteMessages stamps topic on msgs and writes them synchronously.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for i := range msgs {
		msgs[i].Topic = topic
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
