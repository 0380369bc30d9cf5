package indicators

import (
	"math"

	"github.com/coinforge/coinforge/internal/exchange"
)

// Vwap computes the volume-weighted average price, resetting the running
// sums at each UTC calendar day boundary. Zero-volume stretches at the
// start of a day produce NaN until the first traded bar.
func Vwap(candles []exchange.Candle) []float64 {
	out := make([]float64, len(candles))
	var pvSum, volSum float64
	var day int

	for i, c := range candles {
		d := c.OpenTime.UTC().YearDay() + c.OpenTime.UTC().Year()*1000
		if i == 0 || d != day {
			day = d
			pvSum, volSum = 0, 0
		}

		typical := (c.High + c.Low + c.Close) / 3
		pvSum += typical * c.Volume
		volSum += c.Volume

		if volSum == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = pvSum / volSum
	}
	return out
}

// VolumeRatio divides each bar's volume by the mean volume of the prior
// period bars. NaN until enough history exists or when the mean is zero.
func VolumeRatio(volumes []float64, period int) []float64 {
	out := make([]float64, len(volumes))
	for i := range out {
		out[i] = math.NaN()
		if i < period {
			continue
		}
		var sum float64
		for j := i - period; j < i; j++ {
			sum += volumes[j]
		}
		mean := sum / float64(period)
		if mean > 0 {
			out[i] = volumes[i] / mean
		}
	}
	return out
}

// CrossState reports the fast/slow EMA relationship at the last bar:
// +1 when a bullish cross happened on that bar, -1 for a bearish cross,
// 0 otherwise.
func CrossState(fast, slow []float64) int {
	n := len(fast)
	if n < 2 || len(slow) != n {
		return 0
	}
	prev := fast[n-2] - slow[n-2]
	curr := fast[n-1] - slow[n-1]
	if math.IsNaN(prev) || math.IsNaN(curr) {
		return 0
	}
	switch {
	case prev <= 0 && curr > 0:
		return 1
	case prev >= 0 && curr < 0:
		return -1
	}
	return 0
}
