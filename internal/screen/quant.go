package screen

import "math"

// SMA returns the trailing simple moving average of values. Output is
// aligned to the end of the input: out[i] averages the window ending at
// values[i+window-1]. Returns nil when there are not enough values.
func SMA(values []float64, window int) []float64 {
	if window <= 0 || len(values) < window {
		return nil
	}

	out := make([]float64, 0, len(values)-window+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}

// Slope fits y = a + b*x by least squares over x = 0..n-1 and returns b.
func Slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// Returns converts a close series into day-over-day simple returns.
// Zero closes propagate a zero return rather than Inf.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}

	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// StdDev is the sample standard deviation (n-1 denominator).
func StdDev(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= n

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / (n - 1))
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
