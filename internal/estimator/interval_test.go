package estimator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/mau/internal/domain"
)

func TestMarginOfErrorWaldHalfWidth(t *testing.T) {
	// p = 0.05, n = 10000, z = 1.96 -> 1.96 * sqrt(0.05*0.95/10000)
	moe, err := MarginOfError(500, 10000, 1.96)
	require.NoError(t, err)
	require.InDelta(t, 0.00427, moe, 5e-5)
}

func TestMarginOfErrorShrinksWithSampleSize(t *testing.T) {
	// Hold p fixed at 0.2 and grow n; the half-width must strictly shrink.
	sizes := []int{100, 1000, 10000, 100000}
	prev := 1.0
	for _, n := range sizes {
		moe, err := MarginOfError(n/5, n, 1.96)
		require.NoError(t, err)
		require.Less(t, moe, prev, "n=%d", n)
		prev = moe
	}
}

func TestMarginOfErrorRejectsCorruptCounts(t *testing.T) {
	_, err := MarginOfError(101, 100, 1.96)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvariantViolation))
}

func TestMarginOfErrorUndefinedForEmptySample(t *testing.T) {
	_, err := MarginOfError(0, 0, 1.96)
	require.Error(t, err)
	require.False(t, errors.Is(err, domain.ErrInvariantViolation))
}

func TestAnnotateIntervalsFillsBothMargins(t *testing.T) {
	estimates := []domain.MAUEstimate{{
		CountryCode:         "US",
		TitleID:             "T1",
		SampleDistinctUsers: 500,
		ScalingFactor:       100,
		FinalMAUEstimate:    50000,
		FinalMAURounded:     50000,
	}}

	annotated, violations, err := AnnotateIntervals(estimates, map[string]int{"US": 10000}, 1.96, 0.01)
	require.NoError(t, err)
	require.Empty(t, violations)
	require.Len(t, annotated, 1)

	est := annotated[0]
	require.InDelta(t, 0.00427, est.MarginOfError, 5e-5)
	// Population margin scales proportionally: moe * install base.
	require.InDelta(t, est.MarginOfError*1000000, est.MarginOfErrorUsers, 1e-6)
}

func TestAnnotateIntervalsDropsViolatingRows(t *testing.T) {
	estimates := []domain.MAUEstimate{
		{CountryCode: "US", TitleID: "ok", SampleDistinctUsers: 50, ScalingFactor: 10},
		{CountryCode: "US", TitleID: "bad", SampleDistinctUsers: 200, ScalingFactor: 10},
	}

	// Half the rows corrupt is far past any sane abort fraction.
	annotated, violations, err := AnnotateIntervals(estimates, map[string]int{"US": 100}, 1.96, 0.6)
	require.NoError(t, err)
	require.Len(t, annotated, 1)
	require.Equal(t, "ok", annotated[0].TitleID)
	require.Len(t, violations, 1)
	require.Equal(t, domain.ViolationInvariant, violations[0].Kind)
}

func TestAnnotateIntervalsAbortsOnSystemicCorruption(t *testing.T) {
	estimates := []domain.MAUEstimate{
		{CountryCode: "US", TitleID: "bad1", SampleDistinctUsers: 200, ScalingFactor: 10},
		{CountryCode: "US", TitleID: "bad2", SampleDistinctUsers: 300, ScalingFactor: 10},
	}

	_, violations, err := AnnotateIntervals(estimates, map[string]int{"US": 100}, 1.96, 0.01)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvariantViolation))
	require.Len(t, violations, 2)
}
