// Package qualitygate validates an estimate table before publication. Checks
// run in a fixed order and collect every violation instead of stopping at the
// first one, so a rejected run carries the full diagnosis.
package qualitygate

import (
	"context"
	"fmt"
	"time"

	"example.com/mau/internal/domain"
)

// History supplies trailing published estimates for the outlier comparison.
type History interface {
	TrailingEstimates(ctx context.Context, country, title string, limit int) ([]float64, error)
}

// Config carries the gate tunables.
type Config struct {
	// StalenessBound is how old the newest activity row may be relative to
	// now before the snapshot is considered stale.
	StalenessBound time.Duration
	// OutlierSigma is the standard-deviation multiple beyond which a
	// relative change from the trailing mean is flagged.
	OutlierSigma float64
	// HistoryLimit caps how many trailing points are fetched per row.
	HistoryLimit int
}

// minSigmaHistory is the number of trailing points required before the
// sigma-based bound applies; below it the gate falls back to an IQR fence.
const minSigmaHistory = 30

// Option configures optional gate behaviour.
type Option func(*Gate)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Gate runs the pre-publication checks.
type Gate struct {
	history History
	cfg     Config
	now     func() time.Time
}

// New constructs a Gate. A nil history disables the outlier check, which is
// the case for the very first run against an empty estimate store.
func New(history History, cfg Config, opts ...Option) *Gate {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 90
	}
	g := &Gate{history: history, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Inspect runs every check in order and maps the collected violations to a
// verdict: any range, referential, or format violation rejects the run;
// outlier flags alone downgrade it to published-with-warnings.
func (g *Gate) Inspect(ctx context.Context, snap *domain.Snapshot, estimates []domain.MAUEstimate, year int) (domain.RunStatus, []domain.Violation, error) {
	var violations []domain.Violation

	violations = append(violations, g.rangeCheck(snap, estimates, year)...)
	violations = append(violations, g.referentialCheck(snap, estimates, year)...)
	violations = append(violations, g.freshnessCheck(snap)...)
	violations = append(violations, g.formatCheck(estimates)...)

	outliers, err := g.outlierCheck(ctx, estimates)
	if err != nil {
		return domain.RunRejected, violations, fmt.Errorf("outlier check: %w", err)
	}
	violations = append(violations, outliers...)

	return verdict(violations), violations, nil
}

func verdict(violations []domain.Violation) domain.RunStatus {
	status := domain.RunPublished
	for _, v := range violations {
		switch v.Kind {
		case domain.ViolationRange, domain.ViolationReferential, domain.ViolationFormat:
			return domain.RunRejected
		case domain.ViolationOutlierFlag:
			status = domain.RunPublishedWithWarnings
		}
	}
	return status
}

func (g *Gate) rangeCheck(snap *domain.Snapshot, estimates []domain.MAUEstimate, year int) []domain.Violation {
	var out []domain.Violation
	for _, est := range estimates {
		if est.FinalMAUEstimate < 0 {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationRange,
				Detail: fmt.Sprintf("country %s title %s: negative estimate %f", est.CountryCode, est.TitleID, est.FinalMAUEstimate),
			})
		}
		if base, ok := snap.InstallBaseFor(est.CountryCode, year); ok && est.FinalMAUEstimate > float64(base) {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationRange,
				Detail: fmt.Sprintf("country %s title %s: estimate %.2f exceeds install base %d", est.CountryCode, est.TitleID, est.FinalMAUEstimate, base),
			})
		}
		if est.MarginOfError < 0 {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationRange,
				Detail: fmt.Sprintf("country %s title %s: negative margin of error %f", est.CountryCode, est.TitleID, est.MarginOfError),
			})
		}
	}
	return out
}

func (g *Gate) referentialCheck(snap *domain.Snapshot, estimates []domain.MAUEstimate, year int) []domain.Violation {
	var out []domain.Violation
	for _, est := range estimates {
		if _, ok := snap.InstallBaseFor(est.CountryCode, year); !ok {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationReferential,
				Detail: fmt.Sprintf("country %s: no install base row in input snapshot for %d", est.CountryCode, year),
			})
		}
		if _, ok := snap.Titles[est.TitleID]; !ok {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationReferential,
				Detail: fmt.Sprintf("title %s: no title row in input snapshot", est.TitleID),
			})
		}
	}
	return out
}

func (g *Gate) freshnessCheck(snap *domain.Snapshot) []domain.Violation {
	latest := snap.LatestActivity()
	if latest.IsZero() {
		return []domain.Violation{{
			Kind:   domain.ViolationFormat,
			Detail: "freshness: snapshot contains no activity rows",
		}}
	}
	if age := g.now().Sub(latest); age > g.cfg.StalenessBound {
		return []domain.Violation{{
			Kind:   domain.ViolationFormat,
			Detail: fmt.Sprintf("freshness: latest activity %s is %s old, bound is %s", latest.Format(time.RFC3339), age.Round(time.Second), g.cfg.StalenessBound),
		}}
	}
	return nil
}

func (g *Gate) formatCheck(estimates []domain.MAUEstimate) []domain.Violation {
	var out []domain.Violation
	type rowKey struct{ country, title string }
	seenRow := make(map[rowKey]struct{}, len(estimates))

	for _, est := range estimates {
		if !domain.ValidCountryCode(est.CountryCode) {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationFormat,
				Detail: fmt.Sprintf("country %q: not an ISO-3166 alpha-2 code", est.CountryCode),
			})
		}
		if !domain.ValidIdentifier(est.TitleID) {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationFormat,
				Detail: fmt.Sprintf("title %q: malformed identifier", est.TitleID),
			})
		}
		key := rowKey{est.CountryCode, est.TitleID}
		if _, dup := seenRow[key]; dup {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationFormat,
				Detail: fmt.Sprintf("duplicate output row for country %s title %s", est.CountryCode, est.TitleID),
			})
		}
		seenRow[key] = struct{}{}
	}
	return out
}
