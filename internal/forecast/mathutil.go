package forecast

import "math"

// z-score for a two-sided 95% interval
const z95 = 1.96

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleVariance uses the n-1 denominator; fewer than two values have no spread.
func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values)-1)
}

func stdDev(values []float64) float64 {
	return math.Sqrt(sampleVariance(values))
}

// difference applies first differencing; series of length <= 1 pass through unchanged.
func difference(values []float64) []float64 {
	if len(values) <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// autocorrelation returns the lag-k sample autocorrelation, 0 for degenerate input.
func autocorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || n <= lag {
		return 0
	}
	m := mean(values)

	var denom float64
	for _, v := range values {
		d := v - m
		denom += d * d
	}
	if denom == 0 {
		return 0
	}

	var numerator float64
	for t := lag; t < n; t++ {
		numerator += (values[t] - m) * (values[t-lag] - m)
	}

	corr := numerator / denom
	if corr > 1 {
		return 1
	}
	if corr < -1 {
		return -1
	}
	return corr
}

// centeredMovingAverage averages exactly window values around each index. An
// even window reaches one index further back than forward. Near the edges the
// window shrinks on both sides so the average stays centered.
func centeredMovingAverage(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if window < 1 {
		window = 1
	}
	before, after := window/2, (window-1)/2
	lean := before - after
	for i := range values {
		b, a := min(before, i), min(after, n-1-i)
		if b > a+lean {
			b = a + lean
		}
		if a > b {
			a = b
		}
		out[i] = mean(values[i-b : i+a+1])
	}
	return out
}

// leastSquaresSlope fits y = a + b*x over x = 0..n-1 and returns b.
func leastSquaresSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXX, sumXY float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXX += x * x
		sumXY += x * y
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func floorZero(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func lastN(values []float64, n int) []float64 {
	if n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}
