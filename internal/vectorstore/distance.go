package vectorstore

import (
	"fmt"
	"math"
	"strings"
)

// Metric names a distance function. Lower distances are closer matches.
type Metric string

const (
	// MetricL2 is squared Euclidean distance, the scale the confidence
	// thresholds are calibrated on.
	MetricL2        Metric = "l2"
	MetricEuclidean Metric = "euclidean"
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
)

// ParseMetric resolves a configured metric name. Empty means l2.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricL2:
		return MetricL2, nil
	case MetricEuclidean:
		return MetricEuclidean, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (want l2, euclidean or cosine)", s)
	}
}

// Distance computes the metric between a and b. Vectors of different length
// are compared over their common prefix.
func (m Metric) Distance(a, b []float64) float64 {
	switch m {
	case MetricEuclidean:
		return math.Sqrt(squaredL2(a, b))
	case MetricCosine:
		return cosineDistance(a, b)
	default:
		return squaredL2(a, b)
	}
}

func squaredL2(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func cosineDistance(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
