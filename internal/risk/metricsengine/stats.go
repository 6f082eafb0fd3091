package metricsengine

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev returns the sample standard deviation (n-1 denominator).
func stdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func skewness(xs []float64, mu, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := (x - mu) / sigma
		sum += d * d * d
	}
	return sum / float64(len(xs))
}

// excessKurtosis returns sample kurtosis minus 3.
func excessKurtosis(xs []float64, mu, sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := (x - mu) / sigma
		sum += d * d * d * d
	}
	return sum/float64(len(xs)) - 3.0
}

// percentile returns the q-th percentile (0-100) with linear interpolation,
// matching the numpy default.
func percentile(xs []float64, q float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return percentileSorted(sorted, q)
}

func percentileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := q / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// tailMeanBelow returns the mean of values <= cutoff. Falls back to the
// minimum element when nothing qualifies (cannot happen for an interpolated
// percentile cutoff, kept as a guard).
func tailMeanBelow(xs []float64, cutoff float64) float64 {
	sum, count := 0.0, 0
	minVal := math.Inf(1)
	for _, x := range xs {
		if x < minVal {
			minVal = x
		}
		if x <= cutoff {
			sum += x
			count++
		}
	}
	if count == 0 {
		return minVal
	}
	return sum / float64(count)
}

// tailMeanAbove returns the mean of values >= cutoff.
func tailMeanAbove(xs []float64, cutoff float64) float64 {
	sum, count := 0.0, 0
	maxVal := math.Inf(-1)
	for _, x := range xs {
		if x > maxVal {
			maxVal = x
		}
		if x >= cutoff {
			sum += x
			count++
		}
	}
	if count == 0 {
		return maxVal
	}
	return sum / float64(count)
}
