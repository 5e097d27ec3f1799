package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"example.com/mau/internal/domain"
	"example.com/mau/internal/events"
)

// Runner executes one estimation run for the window ending at now.
type Runner interface {
	RunOnce(ctx context.Context, now time.Time) (*domain.RunResult, error)
}

// RunnerFactory builds the runner for one launch, so per-run wiring (the
// install-base year, for example) tracks the wall clock.
type RunnerFactory func(now time.Time) Runner

// RunLauncher bridges snapshot announcements to estimation runs. A run whose
// verdict was persisted counts as handled even when that verdict is Rejected.
// An error that left nothing recorded, such as a save failure, is propagated
// so the processor keeps the offset uncommitted and the announcement is
// redelivered.
type RunLauncher struct {
	newRunner RunnerFactory
	logger    *log.Logger
	clock     func() time.Time
}

// NewRunLauncher constructs a RunLauncher. A nil logger falls back to the
// package default.
func NewRunLauncher(newRunner RunnerFactory, logger *log.Logger) *RunLauncher {
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler] ", log.LstdFlags)
	}
	return &RunLauncher{newRunner: newRunner, logger: logger, clock: time.Now}
}

// Launch runs the pipeline for one announced snapshot.
func (l *RunLauncher) Launch(ctx context.Context, snapshot events.SnapshotReady) error {
	now := l.clock().UTC()

	result, err := l.newRunner(now).RunOnce(ctx, now)
	if result != nil {
		l.logger.Printf("snapshot %s -> run %s status=%s", snapshot.SnapshotID, result.Manifest.RunID, result.Manifest.Status)
	}
	if err == nil {
		return nil
	}
	if result != nil && !errors.Is(err, domain.ErrRunNotPersisted) {
		// A Rejected verdict is a recorded outcome, not a delivery failure;
		// the snapshot offset must still be committed.
		l.logger.Printf("run %s: %v", result.Manifest.RunID, err)
		return nil
	}
	return err
}
