package estimator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/mau/internal/domain"
	"example.com/mau/internal/observability"
)

// Config carries the tunables of one estimation pipeline.
type Config struct {
	// Year selects the install-base rows used for weighting and scaling.
	Year int
	// TotalSampleSize is the overall study sample budget. Required.
	TotalSampleSize int
	// MinGenreSample is the smallest distinct-user count a (country, genre)
	// cell needs to participate in genre-level weighting.
	MinGenreSample int
	// ConfidenceZ is the z-score for the confidence interval (1.96 = 95%).
	ConfidenceZ float64
	// InvariantAbortFraction is the dropped-row fraction above which
	// invariant violations are treated as systemic corruption.
	InvariantAbortFraction float64
	// RunTimeout bounds the whole run; an expired run is Rejected, never
	// partially published. Zero disables the bound.
	RunTimeout time.Duration
	// Workers caps the per-country fan-out. Zero means GOMAXPROCS.
	Workers int
}

// QualityGate inspects a finished estimate table before publication.
type QualityGate interface {
	Inspect(ctx context.Context, snap *domain.Snapshot, estimates []domain.MAUEstimate, year int) (domain.RunStatus, []domain.Violation, error)
}

// Option configures optional pipeline behaviour.
type Option func(*Pipeline)

// WithLogger overrides the pipeline logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithReweighter installs a sparse-cell reweighting hook applied before
// scaling. No hook is installed by default.
func WithReweighter(rw Reweighter) Option {
	return func(p *Pipeline) { p.reweight = rw }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs the estimation state machine over one snapshot:
// Collecting -> Stratifying -> Scaling -> IntervalEstimating -> QualityGating.
// Each run is a pure function of its snapshot and configuration; no state
// survives between runs.
type Pipeline struct {
	cfg      Config
	gate     QualityGate
	reweight Reweighter
	logger   *log.Logger
	now      func() time.Time
}

// NewPipeline constructs a Pipeline.
func NewPipeline(cfg Config, gate QualityGate, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		gate:   gate,
		logger: log.New(log.Writer(), "[pipeline] ", log.LstdFlags),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one estimation run. It always returns a result carrying a
// manifest, even when the run fails; the error reports fatal conditions
// (NoInstallBaseData, systemic InvariantViolation, Timeout).
func (p *Pipeline) Run(ctx context.Context, snap *domain.Snapshot) (*domain.RunResult, error) {
	result := &domain.RunResult{
		Manifest: domain.RunManifest{
			RunID:       uuid.NewString(),
			WindowStart: snap.WindowStart,
			WindowEnd:   snap.WindowEnd,
		},
	}

	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	var violations []domain.Violation

	// Collecting.
	stageStart := p.now()
	counts := CollectCounts(snap)
	observability.ObserveStage(string(domain.StageCollecting), p.now().Sub(stageStart))
	if ctx.Err() != nil {
		return p.abort(result, violations, ctx.Err())
	}

	// Stratifying.
	stageStart = p.now()
	alloc, err := Stratify(snap, counts, p.cfg.Year, p.cfg.TotalSampleSize, p.cfg.MinGenreSample)
	if err != nil {
		violations = append(violations, domain.Violation{
			Kind:   domain.ViolationNoInstallBaseData,
			Detail: err.Error(),
		})
		return p.finish(result, domain.RunRejected, violations), err
	}
	observability.ObserveStage(string(domain.StageStratifying), p.now().Sub(stageStart))
	result.Strata = alloc.Strata
	violations = append(violations, alloc.Warnings...)
	if ctx.Err() != nil {
		return p.abort(result, violations, ctx.Err())
	}

	// Scaling, fanned out per country. Countries are independent; the only
	// join point is the aggregation below.
	stageStart = p.now()
	countries := make([]string, 0, len(alloc.CountryTargets))
	for country := range alloc.CountryTargets {
		countries = append(countries, country)
	}
	sort.Strings(countries)

	estimatesByCountry, scaleWarnings := p.scaleAll(ctx, snap, counts, countries)
	observability.ObserveStage(string(domain.StageScaling), p.now().Sub(stageStart))
	violations = append(violations, scaleWarnings...)
	if ctx.Err() != nil {
		return p.abort(result, violations, ctx.Err())
	}

	var estimates []domain.MAUEstimate
	for _, country := range countries {
		estimates = append(estimates, estimatesByCountry[country]...)
	}

	// IntervalEstimating.
	stageStart = p.now()
	kept, invariantViolations, err := AnnotateIntervals(estimates, counts.CountryDistinct, p.cfg.ConfidenceZ, p.cfg.InvariantAbortFraction)
	observability.ObserveStage(string(domain.StageIntervalEstimating), p.now().Sub(stageStart))
	violations = append(violations, invariantViolations...)
	if err != nil {
		return p.finish(result, domain.RunRejected, violations), err
	}
	result.Estimates = kept
	if ctx.Err() != nil {
		return p.abort(result, violations, ctx.Err())
	}

	// QualityGating.
	stageStart = p.now()
	status, gateViolations, err := p.gate.Inspect(ctx, snap, kept, p.cfg.Year)
	observability.ObserveStage(string(domain.StageQualityGating), p.now().Sub(stageStart))
	if err != nil {
		if ctx.Err() != nil {
			return p.abort(result, violations, ctx.Err())
		}
		violations = append(violations, domain.Violation{
			Kind:   domain.ViolationInvariant,
			Detail: fmt.Sprintf("quality gate failure: %v", err),
		})
		return p.finish(result, domain.RunRejected, violations), err
	}
	violations = append(violations, gateViolations...)

	return p.finish(result, status, violations), nil
}

// scaleAll runs ScaleCountry for every country across a bounded worker pool
// and aggregates the per-country outputs.
func (p *Pipeline) scaleAll(ctx context.Context, snap *domain.Snapshot, counts *SampleCounts, countries []string) (map[string][]domain.MAUEstimate, []domain.Violation) {
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(countries) {
		workers = len(countries)
	}

	type countryOut struct {
		country   string
		estimates []domain.MAUEstimate
		warnings  []domain.Violation
	}

	jobs := make(chan string)
	results := make(chan countryOut)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for country := range jobs {
				estimates, warnings := ScaleCountry(snap, counts, country, p.cfg.Year, p.reweight)
				results <- countryOut{country: country, estimates: estimates, warnings: warnings}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, country := range countries {
			select {
			case jobs <- country:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	byCountry := make(map[string][]domain.MAUEstimate, len(countries))
	warningsByCountry := make(map[string][]domain.Violation)
	for out := range results {
		byCountry[out.country] = out.estimates
		warningsByCountry[out.country] = out.warnings
	}

	// Warnings are re-ordered by country so repeated runs produce an
	// identical manifest regardless of worker scheduling.
	var warnings []domain.Violation
	for _, country := range countries {
		warnings = append(warnings, warningsByCountry[country]...)
	}
	return byCountry, warnings
}

func (p *Pipeline) abort(result *domain.RunResult, violations []domain.Violation, cause error) (*domain.RunResult, error) {
	detail := "run canceled"
	err := cause
	if errors.Is(cause, context.DeadlineExceeded) {
		detail = fmt.Sprintf("run exceeded time budget of %s", p.cfg.RunTimeout)
		err = domain.ErrRunTimeout
	}
	violations = append(violations, domain.Violation{Kind: domain.ViolationTimeout, Detail: detail})
	result.Estimates = nil
	return p.finish(result, domain.RunRejected, violations), err
}

func (p *Pipeline) finish(result *domain.RunResult, status domain.RunStatus, violations []domain.Violation) *domain.RunResult {
	result.Manifest.Status = status
	result.Manifest.Violations = violations
	result.Manifest.CompletedAt = p.now().UTC()

	for _, v := range violations {
		observability.RecordViolation(string(v.Kind))
	}
	published := status == domain.RunPublished || status == domain.RunPublishedWithWarnings
	observability.RecordRun(string(status), len(result.Estimates), result.Manifest.CompletedAt, published)

	p.logger.Printf("run %s finished status=%s estimates=%d violations=%d", result.Manifest.RunID, status, len(result.Estimates), len(violations))
	return result
}
