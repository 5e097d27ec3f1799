package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/mau/internal/domain"
	"example.com/mau/internal/events"
)

type stubRunner struct {
	result *domain.RunResult
	err    error
	calls  int
}

func (r *stubRunner) RunOnce(ctx context.Context, now time.Time) (*domain.RunResult, error) {
	r.calls++
	return r.result, r.err
}

func launcherForRunner(t *testing.T, runner *stubRunner) *RunLauncher {
	t.Helper()
	factory := func(now time.Time) Runner { return runner }
	return NewRunLauncher(factory, log.New(testWriter{t}, "", 0))
}

func rejectedResult() *domain.RunResult {
	return &domain.RunResult{
		Manifest: domain.RunManifest{
			RunID:  "run-7",
			Status: domain.RunRejected,
			Violations: []domain.Violation{
				{Kind: domain.ViolationInvariant, Detail: "12.0% of rows dropped"},
			},
		},
	}
}

func TestLaunchTreatsRecordedVerdictAsHandled(t *testing.T) {
	runner := &stubRunner{result: rejectedResult(), err: domain.ErrInvariantViolation}
	launcher := launcherForRunner(t, runner)

	err := launcher.Launch(context.Background(), events.SnapshotReady{SnapshotID: "snap-1"})
	require.NoError(t, err, "a persisted Rejected run is a handled announcement")
	require.Equal(t, 1, runner.calls)
}

func TestLaunchPropagatesUnpersistedRuns(t *testing.T) {
	saveErr := fmt.Errorf("save run run-7: %w: %w", domain.ErrRunNotPersisted, errors.New("postgres down"))
	runner := &stubRunner{result: rejectedResult(), err: saveErr}
	launcher := launcherForRunner(t, runner)

	err := launcher.Launch(context.Background(), events.SnapshotReady{SnapshotID: "snap-2"})
	require.Error(t, err, "an unpersisted run must keep the offset uncommitted")
	require.ErrorIs(t, err, domain.ErrRunNotPersisted)
}

func TestLaunchPropagatesLoadFailures(t *testing.T) {
	runner := &stubRunner{err: errors.New("load snapshot: connection refused")}
	launcher := launcherForRunner(t, runner)

	err := launcher.Launch(context.Background(), events.SnapshotReady{SnapshotID: "snap-3"})
	require.Error(t, err)
}

func TestLaunchCleanRun(t *testing.T) {
	runner := &stubRunner{result: &domain.RunResult{
		Manifest: domain.RunManifest{RunID: "run-8", Status: domain.RunPublished},
	}}
	launcher := launcherForRunner(t, runner)

	require.NoError(t, launcher.Launch(context.Background(), events.SnapshotReady{SnapshotID: "snap-4"}))
}
