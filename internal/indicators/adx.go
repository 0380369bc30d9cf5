package indicators

import "math"

// Adx computes the Average Directional Index with Wilder smoothing.
// Values before index 2*period-1 are NaN.
func Adx(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < 2*period || period < 1 {
		return out
	}

	tr := make([]float64, n-1)
	plusDM := make([]float64, n-1)
	minusDM := make([]float64, n-1)
	for i := 1; i < n; i++ {
		highDiff := highs[i] - highs[i-1]
		lowDiff := lows[i-1] - lows[i]

		tr[i-1] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		if highDiff > lowDiff && highDiff > 0 {
			plusDM[i-1] = highDiff
		}
		if lowDiff > highDiff && lowDiff > 0 {
			minusDM[i-1] = lowDiff
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlus := smoothWilder(plusDM, period)
	smoothMinus := smoothWilder(minusDM, period)

	dx := make([]float64, len(tr))
	for i := range dx {
		dx[i] = math.NaN()
		if math.IsNaN(smoothTR[i]) || smoothTR[i] == 0 {
			continue
		}
		plusDI := 100 * smoothPlus[i] / smoothTR[i]
		minusDI := 100 * smoothMinus[i] / smoothTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	// ADX is the Wilder-smoothed DX; seed with a simple average of the
	// first period valid DX values.
	adxStart := 2*period - 2
	if adxStart >= len(dx) {
		return out
	}
	var seed float64
	for i := period - 1; i < adxStart+1; i++ {
		seed += dx[i]
	}
	seed /= float64(period)

	out[adxStart+1] = seed
	for i := adxStart + 1; i < len(dx); i++ {
		out[i+1] = (out[i]*float64(period-1) + dx[i]) / float64(period)
	}
	return out
}

// smoothWilder applies Wilder smoothing: a simple average seeds index
// period-1, then each value folds in one new sample.
func smoothWilder(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(data) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(data); i++ {
		out[i] = (out[i-1]*float64(period-1) + data[i]) / float64(period)
	}
	return out
}
