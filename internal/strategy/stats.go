package strategy

import "math"

// SMA returns the simple moving average of the last n values, or NaN when there are fewer.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return math.NaN()
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// Mean averages every value, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return SMA(values, len(values))
}

// EWMAVolatility is the RiskMetrics exponentially weighted volatility of the log returns
// of the last window+1 closes, reported in percent. It needs at least two closes.
func EWMAVolatility(closes []float64, window int, lambda float64) float64 {
	if window <= 0 || len(closes) < 2 {
		return math.NaN()
	}
	if lambda <= 0 || lambda >= 1 {
		lambda = 0.94
	}
	start := len(closes) - window - 1
	if start < 0 {
		start = 0
	}
	series := closes[start:]

	variance := math.NaN()
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 || series[i] <= 0 {
			return math.NaN()
		}
		r := math.Log(series[i] / series[i-1])
		if math.IsNaN(variance) {
			variance = r * r
			continue
		}
		variance = lambda*variance + (1-lambda)*r*r
	}
	return math.Sqrt(variance) * 100
}
