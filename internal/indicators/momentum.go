package indicators

import "math"

// Stoch computes the stochastic oscillator %K and %D (SMA of %K).
func Stoch(highs, lows, closes []float64, kPeriod, dPeriod int) (k, d []float64) {
	n := len(closes)
	k = make([]float64, n)
	for i := range k {
		k[i] = math.NaN()
		if i < kPeriod-1 {
			continue
		}
		hi, lo := math.Inf(-1), math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			hi = math.Max(hi, highs[j])
			lo = math.Min(lo, lows[j])
		}
		if hi == lo {
			k[i] = 50
			continue
		}
		k[i] = 100 * (closes[i] - lo) / (hi - lo)
	}

	d = make([]float64, n)
	for i := range d {
		d[i] = math.NaN()
		if i < kPeriod+dPeriod-2 {
			continue
		}
		var sum float64
		for j := i - dPeriod + 1; j <= i; j++ {
			sum += k[j]
		}
		d[i] = sum / float64(dPeriod)
	}
	return k, d
}

// Roc computes the rate of change in percent over the given lookback.
func Roc(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
		if i < period || values[i-period] == 0 {
			continue
		}
		out[i] = (values[i] - values[i-period]) / values[i-period] * 100
	}
	return out
}
