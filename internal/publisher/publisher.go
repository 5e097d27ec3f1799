// Package publisher delivers run manifests to Kafka using the Confluent wire
// format (magic byte, schema ID, JSON payload).
package publisher

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"example.com/mau/internal/domain"
	"example.com/mau/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(ctx context.Context, subject, schema string) (int, error)
}

// Publisher encodes RunCompleted events and writes them to the manifest
// topic. The schema ID is resolved once and cached for the process lifetime.
type Publisher struct {
	writer   messageWriter
	registry schemaRegistrar
	subject  string

	mu       sync.Mutex
	schemaID int
	resolved bool
}

// New constructs a Publisher for the given topic subject.
func New(writer messageWriter, registry schemaRegistrar, topic string) *Publisher {
	return &Publisher{
		writer:   writer,
		registry: registry,
		subject:  topic + "-value",
	}
}

// PublishRunCompleted emits the manifest event for a finished run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, result *domain.RunResult) error {
	schemaID, err := p.ensureSchema(ctx)
	if err != nil {
		return fmt.Errorf("resolve schema: %w", err)
	}

	payload := toRunCompleted(result)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(payload.RunID),
		Value: frame(schemaID, body),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("mau.run_completed")},
			{Key: "run_id", Value: []byte(payload.RunID)},
			{Key: "status", Value: []byte(payload.Status)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) ensureSchema(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return p.schemaID, nil
	}
	id, err := p.registry.EnsureSchema(ctx, p.subject, runCompletedSchema)
	if err != nil {
		return 0, err
	}
	p.schemaID = id
	p.resolved = true
	return id, nil
}

// frame prefixes the payload with the registry wire format: a zero magic
// byte followed by the big-endian schema ID.
func frame(schemaID int, payload []byte) []byte {
	out := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(out[1:5], uint32(schemaID))
	copy(out[5:], payload)
	return out
}

func toRunCompleted(result *domain.RunResult) events.RunCompleted {
	manifest := result.Manifest
	violations := make([]events.ViolationEntry, 0, len(manifest.Violations))
	for _, v := range manifest.Violations {
		violations = append(violations, events.ViolationEntry{Kind: string(v.Kind), Detail: v.Detail})
	}
	return events.RunCompleted{
		RunID:         manifest.RunID,
		WindowStart:   manifest.WindowStart,
		WindowEnd:     manifest.WindowEnd,
		Status:        string(manifest.Status),
		EstimateCount: len(result.Estimates),
		Violations:    violations,
		CompletedAt:   manifest.CompletedAt,
	}
}
