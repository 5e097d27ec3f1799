package estimator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/mau/internal/domain"
)

func TestScaleCountryExtrapolatesToPopulation(t *testing.T) {
	snap := testSnapshot(2025)
	snap.InstallBase[domain.InstallBaseKey{CountryCode: "US", Year: 2025}] = 1000000

	counts := &SampleCounts{
		CountryDistinct: map[string]int{"US": 10000},
		TitleDistinct:   map[string]map[string]int{"US": {"T1": 500}},
	}

	estimates, warnings := ScaleCountry(snap, counts, "US", 2025, nil)
	require.Empty(t, warnings)
	require.Len(t, estimates, 1)

	est := estimates[0]
	require.Equal(t, "T1", est.TitleID)
	require.Equal(t, 500, est.SampleDistinctUsers)
	require.InDelta(t, 100.0, est.ScalingFactor, 1e-9)
	require.InDelta(t, 50000.0, est.FinalMAUEstimate, 1e-9)
	require.Equal(t, int64(50000), est.FinalMAURounded)
}

func TestScaleCountryNoObservedActivity(t *testing.T) {
	snap := testSnapshot(2025)
	snap.InstallBase[domain.InstallBaseKey{CountryCode: "JP", Year: 2025}] = 500000

	counts := &SampleCounts{
		CountryDistinct: map[string]int{},
		TitleDistinct:   map[string]map[string]int{},
	}

	estimates, warnings := ScaleCountry(snap, counts, "JP", 2025, nil)
	require.Empty(t, estimates)
	require.Len(t, warnings, 1)
	require.Equal(t, domain.ViolationNoObservedActivity, warnings[0].Kind)
}

func TestScaleCountrySkipsMissingInstallBase(t *testing.T) {
	snap := testSnapshot(2025)

	counts := &SampleCounts{
		CountryDistinct: map[string]int{"BR": 120},
		TitleDistinct:   map[string]map[string]int{"BR": {"T1": 40}},
	}

	estimates, warnings := ScaleCountry(snap, counts, "BR", 2025, nil)
	require.Empty(t, estimates)
	require.Empty(t, warnings)
}

func TestScaleCountryAppliesReweighter(t *testing.T) {
	snap := testSnapshot(2025)
	snap.InstallBase[domain.InstallBaseKey{CountryCode: "US", Year: 2025}] = 100000

	counts := &SampleCounts{
		CountryDistinct: map[string]int{"US": 1000},
		TitleDistinct:   map[string]map[string]int{"US": {"T1": 10}},
	}

	double := func(country string, titleDistinct map[string]int) map[string]int {
		out := make(map[string]int, len(titleDistinct))
		for title, n := range titleDistinct {
			out[title] = n * 2
		}
		return out
	}

	estimates, _ := ScaleCountry(snap, counts, "US", 2025, double)
	require.Len(t, estimates, 1)
	require.Equal(t, 20, estimates[0].SampleDistinctUsers)
	require.InDelta(t, 2000.0, estimates[0].FinalMAUEstimate, 1e-9)
}
