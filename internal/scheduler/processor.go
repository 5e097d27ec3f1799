// Package scheduler launches estimation runs, either when the extraction
// collaborator announces a fresh snapshot over Kafka or on a fixed interval.
package scheduler

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/mau/internal/events"
)

// Reader exposes the minimal kafka.Reader surface the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Launcher starts one estimation run for an announced snapshot.
type Launcher interface {
	Launch(ctx context.Context, snapshot events.SnapshotReady) error
}

// Option configures optional processor behaviour.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// Processor consumes snapshot_ready events and triggers runs. Malformed
// messages are committed and skipped so a bad producer cannot wedge the
// partition; launch failures leave the offset uncommitted for redelivery.
type Processor struct {
	reader   Reader
	launcher Launcher
	logger   *log.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, launcher Launcher, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		launcher: launcher,
		logger:   log.New(log.Writer(), "[scheduler] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks, processing snapshot announcements until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		snapshot, decodeErr := decodeSnapshotReady(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if launchErr := p.launcher.Launch(ctx, snapshot); launchErr != nil {
			p.logger.Printf("launch error (snapshot=%s): %v", snapshot.SnapshotID, launchErr)
			recordLaunchError(msg.Topic)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordLaunched(msg.Topic, msg.Time)
		}
	}
}

func decodeSnapshotReady(msg kafka.Message) (events.SnapshotReady, error) {
	if len(msg.Value) < 5 {
		return events.SnapshotReady{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}

	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return events.SnapshotReady{}, errors.New("missing event_type header")
	}
	if string(eventType) != "extraction.snapshot_ready" {
		return events.SnapshotReady{}, fmt.Errorf("unexpected event type %q", eventType)
	}

	// Confluent wire format: magic byte, 4-byte schema ID, JSON body. The
	// schema ID is ignored here; the payload shape is pinned by contract.
	_ = binary.BigEndian.Uint32(msg.Value[1:5])

	var snapshot events.SnapshotReady
	if err := json.Unmarshal(msg.Value[5:], &snapshot); err != nil {
		return events.SnapshotReady{}, err
	}
	if snapshot.SnapshotID == "" {
		return events.SnapshotReady{}, errors.New("missing snapshot_id")
	}
	return snapshot, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}

// Ticker launches runs on a fixed cadence for deployments without an
// announcing extraction layer.
type Ticker struct {
	launcher Launcher
	interval time.Duration
	logger   *log.Logger
}

// NewTicker constructs a Ticker.
func NewTicker(launcher Launcher, interval time.Duration, logger *log.Logger) *Ticker {
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler] ", log.LstdFlags)
	}
	return &Ticker{launcher: launcher, interval: interval, logger: logger}
}

// Run blocks, launching one run per tick until the context is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticker.C:
			snapshot := events.SnapshotReady{
				SnapshotID:     fmt.Sprintf("interval-%d", tick.Unix()),
				MaterializedAt: tick.UTC(),
			}
			if err := t.launcher.Launch(ctx, snapshot); err != nil {
				t.logger.Printf("interval launch error: %v", err)
			}
		}
	}
}
