package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, 30, cfg.LookbackWindowDays)
	require.InDelta(t, 1.96, cfg.ConfidenceZ, 1e-9)
	require.Equal(t, 30, cfg.MinGenreSample)
	require.Equal(t, time.Hour, cfg.StalenessBound)
	require.InDelta(t, 3.0, cfg.OutlierThresholdSigma, 1e-9)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 30*24*time.Hour, cfg.LookbackWindow())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOTAL_STUDY_SAMPLE_SIZE", "25000")
	t.Setenv("LOOKBACK_WINDOW_DAYS", "7")
	t.Setenv("STALENESS_BOUND", "30m")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("CONFIDENCE_Z", "2.58")

	cfg := Load()

	require.Equal(t, 25000, cfg.TotalStudySampleSize)
	require.Equal(t, 7, cfg.LookbackWindowDays)
	require.Equal(t, 30*time.Minute, cfg.StalenessBound)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.InDelta(t, 2.58, cfg.ConfidenceZ, 1e-9)
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresSampleSize(t *testing.T) {
	cfg := Load()
	require.Error(t, cfg.Validate(), "TOTAL_STUDY_SAMPLE_SIZE has no default")

	cfg.TotalStudySampleSize = 10000
	require.NoError(t, cfg.Validate())
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("LOOKBACK_WINDOW_DAYS", "not-a-number")
	t.Setenv("STALENESS_BOUND", "soon")

	cfg := Load()
	require.Equal(t, 30, cfg.LookbackWindowDays)
	require.Equal(t, time.Hour, cfg.StalenessBound)
}
