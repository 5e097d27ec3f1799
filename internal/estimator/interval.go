package estimator

import (
	"fmt"
	"math"

	"example.com/mau/internal/domain"
)

// MarginOfError computes the Wald half-width for a binomial proportion:
// z * sqrt(p(1-p)/n) with p = sampleMAU/sampleSize. sampleMAU greater than
// sampleSize would mean negative variance and signals corrupted input.
func MarginOfError(sampleMAU, sampleSize int, z float64) (float64, error) {
	if sampleSize <= 0 {
		return 0, fmt.Errorf("sample size %d: margin of error undefined", sampleSize)
	}
	if sampleMAU < 0 || sampleMAU > sampleSize {
		return 0, fmt.Errorf("sample MAU %d exceeds sample size %d: %w", sampleMAU, sampleSize, domain.ErrInvariantViolation)
	}
	p := float64(sampleMAU) / float64(sampleSize)
	return z * math.Sqrt(p*(1-p)/float64(sampleSize)), nil
}

// AnnotateIntervals fills the margin-of-error fields of each estimate using
// the country's sampled distinct-user count as the binomial sample size.
// Rows violating the sample invariant are dropped and reported; when the
// dropped fraction exceeds abortFraction the corruption is treated as
// systemic and the whole run fails.
func AnnotateIntervals(estimates []domain.MAUEstimate, countryDistinct map[string]int, z, abortFraction float64) ([]domain.MAUEstimate, []domain.Violation, error) {
	kept := make([]domain.MAUEstimate, 0, len(estimates))
	var violations []domain.Violation

	for _, est := range estimates {
		sampleSize := countryDistinct[est.CountryCode]
		moe, err := MarginOfError(est.SampleDistinctUsers, sampleSize, z)
		if err != nil {
			violations = append(violations, domain.Violation{
				Kind:   domain.ViolationInvariant,
				Detail: fmt.Sprintf("country %s title %s: %v", est.CountryCode, est.TitleID, err),
			})
			continue
		}
		est.MarginOfError = moe
		est.MarginOfErrorUsers = moe * est.ScalingFactor * float64(sampleSize)
		kept = append(kept, est)
	}

	if total := len(estimates); total > 0 {
		if frac := float64(len(violations)) / float64(total); frac > abortFraction {
			return kept, violations, fmt.Errorf("%.1f%% of rows dropped: %w", frac*100, domain.ErrInvariantViolation)
		}
	}
	return kept, violations, nil
}
