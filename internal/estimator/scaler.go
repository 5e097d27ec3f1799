package estimator

import (
	"fmt"
	"math"
	"sort"

	"example.com/mau/internal/domain"
)

// Reweighter adjusts per-title distinct counts for one country before
// scaling. It exists for sparse country/genre cells where plain proportional
// counts are considered too noisy; the default pipeline applies none.
type Reweighter func(country string, titleDistinct map[string]int) map[string]int

// ScaleCountry extrapolates the sampled counts of a single country to its
// population. The scaling factor is install base over observed distinct
// users; each title's distinct-user count times the factor is its MAU
// estimate. Margin of error is filled in by AnnotateIntervals.
func ScaleCountry(snap *domain.Snapshot, counts *SampleCounts, country string, year int, reweight Reweighter) ([]domain.MAUEstimate, []domain.Violation) {
	base, ok := snap.InstallBaseFor(country, year)
	if !ok || base <= 0 {
		// Already warned during stratification.
		return nil, nil
	}

	observed := counts.CountryDistinct[country]
	if observed == 0 {
		return nil, []domain.Violation{{
			Kind:   domain.ViolationNoObservedActivity,
			Detail: fmt.Sprintf("country %s: no distinct users observed in window, scaling factor undefined", country),
		}}
	}

	factor := float64(base) / float64(observed)

	titleDistinct := counts.TitleDistinct[country]
	if reweight != nil {
		titleDistinct = reweight(country, titleDistinct)
	}

	titles := make([]string, 0, len(titleDistinct))
	for title := range titleDistinct {
		titles = append(titles, title)
	}
	sort.Strings(titles)

	estimates := make([]domain.MAUEstimate, 0, len(titles))
	for _, title := range titles {
		sampleMAU := titleDistinct[title]
		if sampleMAU <= 0 {
			continue
		}
		mau := float64(sampleMAU) * factor
		estimates = append(estimates, domain.MAUEstimate{
			CountryCode:         country,
			TitleID:             title,
			SampleDistinctUsers: sampleMAU,
			ScalingFactor:       factor,
			FinalMAUEstimate:    mau,
			FinalMAURounded:     int64(math.Round(mau)),
		})
	}
	return estimates, nil
}
