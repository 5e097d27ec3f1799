// Package events defines the payloads exchanged with collaborating services
// over Kafka.
package events

import "time"

// RunCompleted is emitted after every estimation run, whatever its verdict.
// Alerting and dataset-versioning collaborators consume it as the single
// artifact describing the run.
type RunCompleted struct {
	RunID         string           `json:"run_id"`
	WindowStart   time.Time        `json:"window_start"`
	WindowEnd     time.Time        `json:"window_end"`
	Status        string           `json:"status"`
	EstimateCount int              `json:"estimate_count"`
	Violations    []ViolationEntry `json:"violations"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// ViolationEntry mirrors one manifest violation.
type ViolationEntry struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// SnapshotReady is emitted by the extraction collaborator once a fresh input
// snapshot has been materialized and an estimation run can start.
type SnapshotReady struct {
	SnapshotID     string    `json:"snapshot_id"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	ActivityRows   int64     `json:"activity_rows"`
	MaterializedAt time.Time `json:"materialized_at"`
}
