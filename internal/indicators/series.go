package indicators

import (
	"math"
	"sync"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
)

// The cinar/indicator pipelines are channel based and emit only values past
// their warm-up window. These wrappers feed slices through and left-pad the
// output with NaN so every series stays index-aligned with its input.

func sliceToChan(values []float64) chan float64 {
	c := make(chan float64, len(values))
	for _, v := range values {
		c <- v
	}
	close(c)
	return c
}

func chanToSlice(c <-chan float64) []float64 {
	var out []float64
	for v := range c {
		out = append(out, v)
	}
	return out
}

// padLeft aligns a computed series to length n by prefixing NaN.
func padLeft(n int, series []float64) []float64 {
	if len(series) >= n {
		return series[len(series)-n:]
	}
	out := make([]float64, n)
	pad := n - len(series)
	for i := 0; i < pad; i++ {
		out[i] = math.NaN()
	}
	copy(out[pad:], series)
	return out
}

// Rsi computes Wilder's RSI, NaN for the warm-up rows.
func Rsi(values []float64, period int) []float64 {
	if len(values) <= period {
		return padLeft(len(values), nil)
	}
	out := chanToSlice(momentum.NewRsiWithPeriod[float64](period).Compute(sliceToChan(values)))
	return padLeft(len(values), out)
}

// Ema computes an exponential moving average with alpha 2/(N+1).
func Ema(values []float64, period int) []float64 {
	if len(values) < period {
		return padLeft(len(values), nil)
	}
	out := chanToSlice(trend.NewEmaWithPeriod[float64](period).Compute(sliceToChan(values)))
	return padLeft(len(values), out)
}

// Sma computes a simple moving average.
func Sma(values []float64, period int) []float64 {
	if len(values) < period {
		return padLeft(len(values), nil)
	}
	out := chanToSlice(trend.NewSmaWithPeriod[float64](period).Compute(sliceToChan(values)))
	return padLeft(len(values), out)
}

// Macd computes the MACD line and its signal line.
func Macd(values []float64, fast, slow, signal int) (macdLine, signalLine []float64) {
	n := len(values)
	if n < slow+signal {
		return padLeft(n, nil), padLeft(n, nil)
	}

	macdChan, signalChan := trend.NewMacdWithPeriod[float64](fast, slow, signal).
		Compute(sliceToChan(values))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		macdLine = chanToSlice(macdChan)
	}()
	go func() {
		defer wg.Done()
		signalLine = chanToSlice(signalChan)
	}()
	wg.Wait()

	return padLeft(n, macdLine), padLeft(n, signalLine)
}

// Bollinger computes the lower, middle, and upper bands.
func Bollinger(values []float64, period int) (lower, middle, upper []float64) {
	n := len(values)
	if n < period {
		empty := padLeft(n, nil)
		return empty, empty, empty
	}

	upperChan, middleChan, lowerChan := volatility.NewBollingerBandsWithPeriod[float64](period).
		Compute(sliceToChan(values))

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		lower = chanToSlice(lowerChan)
	}()
	go func() {
		defer wg.Done()
		middle = chanToSlice(middleChan)
	}()
	go func() {
		defer wg.Done()
		upper = chanToSlice(upperChan)
	}()
	wg.Wait()

	return padLeft(n, lower), padLeft(n, middle), padLeft(n, upper)
}

// Atr computes the average true range.
func Atr(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if n <= period {
		return padLeft(n, nil)
	}
	out := chanToSlice(volatility.NewAtrWithPeriod[float64](period).
		Compute(sliceToChan(highs), sliceToChan(lows), sliceToChan(closes)))
	return padLeft(n, out)
}
