// Package mathutil holds small numeric helpers shared by the routing and graph layers.
package mathutil

import "math"

// CalcMeanStd returns the mean and population standard deviation of scores.
// Empty input and zero spread both yield std 1 so callers can divide safely.
func CalcMeanStd(scores []float64) (mean, std float64) {
	if len(scores) == 0 {
		return 0, 1
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean = sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		diff := s - mean
		variance += diff * diff
	}
	variance /= float64(len(scores))
	std = math.Sqrt(variance)

	if std == 0 {
		std = 1
	}
	return mean, std
}

// Sigmoid maps z onto (0, 1).
func Sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// Normalize z-scores scores and squashes them through Sigmoid, so values from
// stores with different score scales can be compared.
func Normalize(scores []float64) []float64 {
	mean, std := CalcMeanStd(scores)
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = Sigmoid((s - mean) / std)
	}
	return out
}

// ClampInt clamps value to [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampLimit applies a default when limit <= 0 and caps it at maxVal.
func ClampLimit(limit, defaultVal, maxVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > maxVal {
		return maxVal
	}
	return limit
}
