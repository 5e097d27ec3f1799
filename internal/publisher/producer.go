package publisher

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ManifestWriter owns the kafka.Writer for the manifest topic. Unlike a
// per-topic writer pool, the publisher only ever writes one topic, so a
// single writer with full acks is enough.
type ManifestWriter struct {
	writer *kafka.Writer
}

// NewManifestWriter constructs a writer against the given brokers and topic.
func NewManifestWriter(brokers []string, topic string) *ManifestWriter {
	return &ManifestWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// WriteMessages delegates to the underlying writer.
func (w *ManifestWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return w.writer.WriteMessages(ctx, msgs...)
}

// Close releases the writer.
func (w *ManifestWriter) Close() error {
	return w.writer.Close()
}
