package publisher

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/mau/internal/domain"
	"example.com/mau/internal/events"
)

type captureWriter struct {
	messages []kafka.Message
}

func (w *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

type stubRegistry struct {
	id    int
	calls int
}

func (r *stubRegistry) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	r.calls++
	return r.id, nil
}

func TestPublishRunCompletedWireFormat(t *testing.T) {
	writer := &captureWriter{}
	registry := &stubRegistry{id: 42}
	pub := New(writer, registry, "mau_run_manifests")

	result := &domain.RunResult{
		Manifest: domain.RunManifest{
			RunID:       "run-9",
			WindowStart: time.Date(2025, time.May, 16, 0, 0, 0, 0, time.UTC),
			WindowEnd:   time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC),
			Status:      domain.RunPublishedWithWarnings,
			Violations: []domain.Violation{
				{Kind: domain.ViolationOutlierFlag, Detail: "country US title T1: moved 4.2 sigma"},
			},
			CompletedAt: time.Date(2025, time.June, 15, 0, 5, 0, 0, time.UTC),
		},
		Estimates: []domain.MAUEstimate{{CountryCode: "US", TitleID: "T1"}},
	}

	require.NoError(t, pub.PublishRunCompleted(context.Background(), result))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, []byte("run-9"), msg.Key)
	require.GreaterOrEqual(t, len(msg.Value), 5)
	require.Equal(t, byte(0), msg.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(msg.Value[1:5]))

	var payload events.RunCompleted
	require.NoError(t, json.Unmarshal(msg.Value[5:], &payload))
	require.Equal(t, "run-9", payload.RunID)
	require.Equal(t, string(domain.RunPublishedWithWarnings), payload.Status)
	require.Equal(t, 1, payload.EstimateCount)
	require.Len(t, payload.Violations, 1)
	require.Equal(t, string(domain.ViolationOutlierFlag), payload.Violations[0].Kind)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, "mau.run_completed", headers["event_type"])
	require.Equal(t, "run-9", headers["run_id"])
	require.Equal(t, string(domain.RunPublishedWithWarnings), headers["status"])
}

func TestPublishResolvesSchemaOnce(t *testing.T) {
	writer := &captureWriter{}
	registry := &stubRegistry{id: 7}
	pub := New(writer, registry, "mau_run_manifests")

	result := &domain.RunResult{Manifest: domain.RunManifest{RunID: "run-1", Status: domain.RunPublished}}

	require.NoError(t, pub.PublishRunCompleted(context.Background(), result))
	require.NoError(t, pub.PublishRunCompleted(context.Background(), result))

	require.Equal(t, 1, registry.calls)
	require.Len(t, writer.messages, 2)
}
