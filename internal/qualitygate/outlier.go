package qualitygate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"example.com/mau/internal/domain"
)

// outlierCheck flags estimates that moved implausibly far from their trailing
// history. With at least minSigmaHistory points the bound is the trailing
// mean plus or minus OutlierSigma standard deviations; with fewer points it
// falls back to a Tukey IQR fence. Flags never reject a run.
func (g *Gate) outlierCheck(ctx context.Context, estimates []domain.MAUEstimate) ([]domain.Violation, error) {
	if g.history == nil {
		return nil, nil
	}

	var out []domain.Violation
	for _, est := range estimates {
		history, err := g.history.TrailingEstimates(ctx, est.CountryCode, est.TitleID, g.cfg.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("country %s title %s: %w", est.CountryCode, est.TitleID, err)
		}

		flagged, detail := g.flag(est.FinalMAUEstimate, history)
		if flagged {
			out = append(out, domain.Violation{
				Kind:   domain.ViolationOutlierFlag,
				Detail: fmt.Sprintf("country %s title %s: %s", est.CountryCode, est.TitleID, detail),
			})
		}
	}
	return out, nil
}

func (g *Gate) flag(value float64, history []float64) (bool, string) {
	if len(history) >= minSigmaHistory {
		mean, stddev := meanStddev(history)
		if stddev == 0 {
			if value != mean {
				return true, fmt.Sprintf("estimate %.2f deviates from constant history %.2f", value, mean)
			}
			return false, ""
		}
		if dev := math.Abs(value - mean); dev > g.cfg.OutlierSigma*stddev {
			return true, fmt.Sprintf("estimate %.2f is %.1f sigma from trailing mean %.2f", value, dev/stddev, mean)
		}
		return false, ""
	}

	// Quartiles need at least four points; with less history there is no
	// defensible bound and the row passes.
	if len(history) < 4 {
		return false, ""
	}
	q1, q3 := quartiles(history)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	if value < lo || value > hi {
		return true, fmt.Sprintf("estimate %.2f outside IQR fence [%.2f, %.2f] over %d points", value, lo, hi, len(history))
	}
	return false, ""
}

func meanStddev(values []float64) (mean, stddev float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	stddev = math.Sqrt(sq / float64(len(values)))
	return mean, stddev
}

// quartiles computes Tukey hinges: the medians of the lower and upper halves.
func quartiles(values []float64) (q1, q3 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	half := n / 2
	q1 = median(sorted[:half])
	if n%2 == 0 {
		q3 = median(sorted[half:])
	} else {
		q3 = median(sorted[half+1:])
	}
	return q1, q3
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
