package domain

import (
	"errors"
	"time"
)

var (
	// ErrNoInstallBaseData indicates the install-base snapshot was empty for
	// the requested year. Fatal for the run, never retried.
	ErrNoInstallBaseData = errors.New("no install base data for requested year")
	// ErrInvariantViolation indicates systemic data corruption, e.g. more
	// sampled title users than sampled country users across too many rows.
	ErrInvariantViolation = errors.New("estimate invariant violated")
	// ErrRunTimeout indicates the run exceeded its external time budget.
	ErrRunTimeout = errors.New("estimation run exceeded time budget")
	// ErrRunNotPersisted indicates the run finished but could not be saved.
	// Nothing was recorded, so the trigger that started it must be retried.
	ErrRunNotPersisted = errors.New("estimation run not persisted")
	// ErrRunNotFound is returned when no completed run exists yet.
	ErrRunNotFound = errors.New("estimation run not found")
)

// RunStatus is the terminal verdict of an estimation run.
type RunStatus string

const (
	RunPublished             RunStatus = "published"
	RunPublishedWithWarnings RunStatus = "published_with_warnings"
	RunRejected              RunStatus = "rejected"
)

// RunStage names a pipeline phase. A run moves strictly forward through the
// stages; no stage is ever re-entered.
type RunStage string

const (
	StageCollecting         RunStage = "collecting"
	StageStratifying        RunStage = "stratifying"
	StageScaling            RunStage = "scaling"
	StageIntervalEstimating RunStage = "interval_estimating"
	StageQualityGating      RunStage = "quality_gating"
)

// ViolationKind classifies manifest entries.
type ViolationKind string

const (
	ViolationNoInstallBaseData  ViolationKind = "no_install_base_data"
	ViolationNoObservedActivity ViolationKind = "no_observed_activity"
	ViolationInvariant          ViolationKind = "invariant_violation"
	ViolationRange              ViolationKind = "range_violation"
	ViolationReferential        ViolationKind = "referential_violation"
	ViolationFormat             ViolationKind = "format_violation"
	ViolationOutlierFlag        ViolationKind = "outlier_flag"
	ViolationTimeout            ViolationKind = "timeout"
	ViolationInsufficientSample ViolationKind = "insufficient_sample"
)

// Violation is one manifest entry. Order of collection is preserved.
type Violation struct {
	Kind   ViolationKind
	Detail string
}

// RunManifest is produced by every run, including failed ones. It is the
// single artifact downstream alerting and dataset-versioning consume.
type RunManifest struct {
	RunID       string
	WindowStart time.Time
	WindowEnd   time.Time
	Status      RunStatus
	Violations  []Violation
	CompletedAt time.Time
}

// RunResult bundles the manifest with the rows it gates.
type RunResult struct {
	Manifest  RunManifest
	Estimates []MAUEstimate
	Strata    []Stratum
}
