package anomaly

import (
	"math"
	"sort"
)

// Detector fits a single-feature outlier model on an actor's observation
// history. Implementations are interchangeable behind this interface so the
// statistical method can be swapped without touching callers.
type Detector interface {
	Fit(history []float64) Model
}

// Model classifies a single new observation against a fitted history.
// Margin is the outlier strength in [0, 0.5]; zero for inliers.
type Model interface {
	Classify(point float64) (outlier bool, margin float64)
}

// ZScoreDetector flags points whose z-score against the fitted history
// exceeds Threshold.
type ZScoreDetector struct {
	Threshold float64
}

// NewZScoreDetector returns a z-score detector with the conventional 2.5
// sigma cutoff.
func NewZScoreDetector() *ZScoreDetector {
	return &ZScoreDetector{Threshold: 2.5}
}

func (d *ZScoreDetector) Fit(history []float64) Model {
	var sum float64
	for _, v := range history {
		sum += v
	}
	mean := sum / float64(len(history))

	var variance float64
	for _, v := range history {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(history))

	return &zScoreModel{
		mean:      mean,
		stddev:    math.Sqrt(variance),
		threshold: d.Threshold,
	}
}

type zScoreModel struct {
	mean      float64
	stddev    float64
	threshold float64
}

func (m *zScoreModel) Classify(point float64) (bool, float64) {
	if m.stddev == 0 {
		// Degenerate history: every sample identical. Any deviation is
		// maximally surprising.
		if point == m.mean {
			return false, 0
		}
		return true, 0.5
	}

	z := math.Abs(point-m.mean) / m.stddev
	if z <= m.threshold {
		return false, 0
	}

	margin := (z - m.threshold) / (2 * m.threshold)
	if margin > 0.5 {
		margin = 0.5
	}
	return true, margin
}

// MADDetector flags points by modified z-score over the median absolute
// deviation, which tolerates outliers already present in the history.
type MADDetector struct {
	Threshold float64
}

// NewMADDetector returns a MAD detector with the conventional 3.5 cutoff.
func NewMADDetector() *MADDetector {
	return &MADDetector{Threshold: 3.5}
}

func (d *MADDetector) Fit(history []float64) Model {
	med := median(history)

	deviations := make([]float64, len(history))
	for i, v := range history {
		deviations[i] = math.Abs(v - med)
	}

	return &madModel{
		median:    med,
		mad:       median(deviations),
		threshold: d.Threshold,
	}
}

type madModel struct {
	median    float64
	mad       float64
	threshold float64
}

func (m *madModel) Classify(point float64) (bool, float64) {
	if m.mad == 0 {
		if point == m.median {
			return false, 0
		}
		return true, 0.5
	}

	// 0.6745 scales MAD to the standard deviation of a normal distribution.
	score := 0.6745 * math.Abs(point-m.median) / m.mad
	if score <= m.threshold {
		return false, 0
	}

	margin := (score - m.threshold) / (2 * m.threshold)
	if margin > 0.5 {
		margin = 0.5
	}
	return true, margin
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
