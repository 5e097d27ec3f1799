package estimator

import (
	"fmt"
	"math"
	"sort"

	"example.com/mau/internal/domain"
)

// Allocation is the stratifier output: proportional sample targets per
// country and per (country, genre) cell.
type Allocation struct {
	Year           int
	CountryTargets map[string]int
	Strata         []domain.Stratum
	Warnings       []domain.Violation
}

// Stratify computes proportional-allocation sampling targets. Country targets
// follow install-base shares for the run year; within a country, genre targets
// follow observed distinct-user shares. Both allocations use largest-remainder
// rounding so totals sum exactly to their parent budget.
func Stratify(snap *domain.Snapshot, counts *SampleCounts, year, totalSampleSize, minGenreSample int) (*Allocation, error) {
	weights := make(map[string]float64)
	var totalBase int64
	for key, base := range snap.InstallBase {
		if key.Year != year || base <= 0 {
			continue
		}
		weights[key.CountryCode] = float64(base)
		totalBase += base
	}
	if totalBase == 0 {
		return nil, fmt.Errorf("year %d: %w", year, domain.ErrNoInstallBaseData)
	}

	alloc := &Allocation{
		Year:           year,
		CountryTargets: largestRemainder(totalSampleSize, weights),
	}

	// Countries we observed activity for but cannot weight are excluded
	// with a warning; their users still exist in the sample, they just get
	// no allocation and no estimates.
	for _, country := range counts.Countries() {
		if _, ok := weights[country]; !ok {
			alloc.Warnings = append(alloc.Warnings, domain.Violation{
				Kind:   domain.ViolationNoInstallBaseData,
				Detail: fmt.Sprintf("country %s: no install base for %d, excluded from allocation", country, year),
			})
		}
	}

	countries := make([]string, 0, len(alloc.CountryTargets))
	for country := range alloc.CountryTargets {
		countries = append(countries, country)
	}
	sort.Strings(countries)

	for _, country := range countries {
		countryTarget := alloc.CountryTargets[country]
		genreCounts := counts.GenreDistinct[country]

		genres := make([]string, 0, len(genreCounts))
		for genre := range genreCounts {
			genres = append(genres, genre)
		}
		sort.Strings(genres)

		genreWeights := make(map[string]float64)
		for _, genre := range genres {
			observed := genreCounts[genre]
			if observed < minGenreSample {
				alloc.Strata = append(alloc.Strata, domain.Stratum{
					CountryCode:           country,
					Genre:                 genre,
					ObservedDistinctUsers: observed,
					InsufficientSample:    true,
				})
				alloc.Warnings = append(alloc.Warnings, domain.Violation{
					Kind:   domain.ViolationInsufficientSample,
					Detail: fmt.Sprintf("country %s genre %q: %d observed users below minimum %d", country, genre, observed, minGenreSample),
				})
				continue
			}
			genreWeights[genre] = float64(observed)
		}

		genreTargets := largestRemainder(countryTarget, genreWeights)
		for _, genre := range genres {
			target, ok := genreTargets[genre]
			if !ok {
				continue
			}
			alloc.Strata = append(alloc.Strata, domain.Stratum{
				CountryCode:           country,
				Genre:                 genre,
				TargetSampleSize:      target,
				ObservedDistinctUsers: genreCounts[genre],
			})
		}
	}

	return alloc, nil
}

// largestRemainder distributes total proportionally to weights with no
// rounding drift: each key gets the floor of its exact share, then the
// leftover units go to the largest fractional remainders. Ties break on key
// order so allocation is deterministic.
func largestRemainder(total int, weights map[string]float64) map[string]int {
	out := make(map[string]int, len(weights))
	if total <= 0 || len(weights) == 0 {
		return out
	}

	var sum float64
	keys := make([]string, 0, len(weights))
	for key, w := range weights {
		keys = append(keys, key)
		sum += w
	}
	if sum <= 0 {
		return out
	}
	sort.Strings(keys)

	type cell struct {
		key  string
		frac float64
	}
	cells := make([]cell, 0, len(keys))

	allocated := 0
	for _, key := range keys {
		exact := float64(total) * weights[key] / sum
		base := int(math.Floor(exact))
		out[key] = base
		allocated += base
		cells = append(cells, cell{key: key, frac: exact - float64(base)})
	}

	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].frac != cells[j].frac {
			return cells[i].frac > cells[j].frac
		}
		return cells[i].key < cells[j].key
	})

	for i := 0; i < total-allocated && i < len(cells); i++ {
		out[cells[i].key]++
	}
	return out
}
