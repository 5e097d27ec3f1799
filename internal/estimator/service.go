package estimator

import (
	"context"
	"fmt"
	"log"
	"time"

	"example.com/mau/internal/domain"
)

// Store abstracts the snapshot source and run sink.
type Store interface {
	LoadSnapshot(ctx context.Context, windowStart, windowEnd time.Time) (*domain.Snapshot, error)
	SaveRun(ctx context.Context, result *domain.RunResult) error
}

// ManifestPublisher delivers the run manifest to downstream consumers.
type ManifestPublisher interface {
	PublishRunCompleted(ctx context.Context, result *domain.RunResult) error
}

// Service ties the pipeline to storage and manifest delivery. Every run,
// including a failed one, is persisted and announced; silent partial output
// is never acceptable.
type Service struct {
	store     Store
	publisher ManifestPublisher
	pipeline  *Pipeline
	window    time.Duration
	logger    *log.Logger
}

// NewService constructs a Service. publisher may be nil when manifest
// delivery is handled out of band.
func NewService(store Store, publisher ManifestPublisher, pipeline *Pipeline, window time.Duration) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		pipeline:  pipeline,
		window:    window,
		logger:    log.New(log.Writer(), "[estimator] ", log.LstdFlags),
	}
}

// RunOnce loads the snapshot for the lookback window ending at now, runs the
// pipeline, persists the result, and publishes the manifest. The pipeline
// error, if any, is returned after persistence so a Rejected run is still
// fully recorded. A save failure is returned wrapping ErrRunNotPersisted so
// callers can tell a recorded verdict from a lost run.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (*domain.RunResult, error) {
	windowEnd := now.UTC()
	windowStart := windowEnd.Add(-s.window)

	snap, err := s.store.LoadSnapshot(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	result, runErr := s.pipeline.Run(ctx, snap)

	if err := s.store.SaveRun(ctx, result); err != nil {
		return result, fmt.Errorf("save run %s: %w: %w", result.Manifest.RunID, domain.ErrRunNotPersisted, err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishRunCompleted(ctx, result); err != nil {
			// The run itself is persisted; delivery failure is logged so
			// the next manifest consumer poll can still find it.
			s.logger.Printf("publish manifest for run %s: %v", result.Manifest.RunID, err)
		}
	}

	return result, runErr
}
