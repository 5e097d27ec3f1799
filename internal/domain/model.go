// Package domain defines the data model shared by the estimation pipeline.
package domain

import "time"

// OfflineTitleID is the sentinel title meaning the user was online but not playing.
// Activity rows carrying it never contribute to title-level estimates.
const OfflineTitleID = "offline"

// ActivityRecord is one observed activity sample inside the lookback window.
// Records are immutable once ingested by the extraction collaborator.
type ActivityRecord struct {
	UserID     string
	TitleID    string
	OccurredAt time.Time
}

// Offline reports whether the record carries the not-playing sentinel.
func (r ActivityRecord) Offline() bool {
	return r.TitleID == OfflineTitleID
}

// UserRecord maps a sampled user to their country.
type UserRecord struct {
	UserID      string
	CountryCode string
	CreatedAt   time.Time
}

// TitleRecord describes a game title.
type TitleRecord struct {
	TitleID     string
	Name        string
	Genre       string
	ReleaseDate time.Time
}

// InstallBaseKey identifies one install-base row.
type InstallBaseKey struct {
	CountryCode string
	Year        int
}

// InstallBaseRecord holds the estimated platform population for a country and year.
type InstallBaseRecord struct {
	CountryCode string
	Year        int
	InstallBase int64
}

// Snapshot is the read-only input view an estimation run operates on. The
// extraction layer materializes it before a run starts; the pipeline never
// mutates it.
type Snapshot struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Activity    []ActivityRecord
	Users       map[string]UserRecord
	Titles      map[string]TitleRecord
	InstallBase map[InstallBaseKey]int64
}

// InstallBaseFor returns the install base for a country in a given year.
func (s *Snapshot) InstallBaseFor(country string, year int) (int64, bool) {
	base, ok := s.InstallBase[InstallBaseKey{CountryCode: country, Year: year}]
	return base, ok
}

// LatestActivity returns the newest activity timestamp in the snapshot, or the
// zero time for an empty snapshot.
func (s *Snapshot) LatestActivity() time.Time {
	var latest time.Time
	for _, rec := range s.Activity {
		if rec.OccurredAt.After(latest) {
			latest = rec.OccurredAt
		}
	}
	return latest
}

// Stratum is a (country, genre) sampling cell with its proportional target and
// what was actually observed. Derived per run, never persisted.
type Stratum struct {
	CountryCode           string
	Genre                 string
	TargetSampleSize      int
	ObservedDistinctUsers int
	// InsufficientSample marks cells below the configured minimum; they are
	// excluded from genre-level weighting but still count toward the country
	// aggregate.
	InsufficientSample bool
}

// MAUEstimate is one published row: a population-scaled monthly-active-user
// estimate for a title in a country.
type MAUEstimate struct {
	CountryCode         string
	TitleID             string
	SampleDistinctUsers int
	ScalingFactor       float64
	FinalMAUEstimate    float64
	FinalMAURounded     int64
	// MarginOfError is the half-width of the confidence interval on the
	// sample proportion; MarginOfErrorUsers is the same margin scaled to
	// population users for display.
	MarginOfError      float64
	MarginOfErrorUsers float64
}
