package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/exchange"
)

func testConfig() config.IndicatorConfig {
	return config.IndicatorConfig{
		EmaFast:          9,
		EmaSlow:          21,
		RsiPeriod:        14,
		BollingerPeriod:  20,
		BollingerStdDev:  2.0,
		AtrPeriod:        14,
		VolumePeriod:     20,
		VolumeSurgeRatio: 1.5,
		MinCandles:       50,
	}
}

func syntheticCandles(n int) []exchange.Candle {
	candles := make([]exchange.Candle, n)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		// A gentle sine over an uptrend keeps every indicator well defined
		price := 100.0 + float64(i)*0.1 + 2*math.Sin(float64(i)/5)
		candles[i] = exchange.Candle{
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     price,
			High:     price + 0.5,
			Low:      price - 0.5,
			Close:    price + 0.1,
			Volume:   100 + 10*math.Sin(float64(i)/3),
		}
	}
	return candles
}

func TestPadLeftAlignment(t *testing.T) {
	out := padLeft(5, []float64{1, 2, 3})
	require.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.Equal(t, []float64{1, 2, 3}, out[2:])
}

func TestSeriesStayIndexAligned(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	assert.Len(t, Rsi(closes, 14), 80)
	assert.Len(t, Ema(closes, 21), 80)
	assert.Len(t, Sma(closes, 20), 80)

	macdLine, macdSignal := Macd(closes, 12, 26, 9)
	assert.Len(t, macdLine, 80)
	assert.Len(t, macdSignal, 80)

	lower, middle, upper := Bollinger(closes, 20)
	assert.Len(t, lower, 80)
	assert.Len(t, middle, 80)
	assert.Len(t, upper, 80)
}

func TestRsiSaturatesOnMonotonicSeries(t *testing.T) {
	up := make([]float64, 40)
	for i := range up {
		up[i] = 100 + float64(i)
	}
	rsi := Rsi(up, 14)
	last := rsi[len(rsi)-1]
	require.False(t, math.IsNaN(last))
	assert.InDelta(t, 100, last, 1e-6)
}

func TestBollingerBandOrdering(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + 3*math.Sin(float64(i)/4)
	}
	lower, middle, upper := Bollinger(closes, 20)
	last := len(closes) - 1
	require.False(t, math.IsNaN(middle[last]))
	assert.Less(t, lower[last], middle[last])
	assert.Less(t, middle[last], upper[last])
}

func TestVwapResetsAtDayBoundary(t *testing.T) {
	base := time.Date(2025, 6, 1, 23, 50, 0, 0, time.UTC)
	candles := []exchange.Candle{
		{OpenTime: base, High: 101, Low: 99, Close: 100, Volume: 10},
		{OpenTime: base.Add(5 * time.Minute), High: 103, Low: 101, Close: 102, Volume: 10},
		// Next UTC day: running sums start over
		{OpenTime: base.Add(10 * time.Minute), High: 201, Low: 199, Close: 200, Volume: 10},
	}

	vwap := Vwap(candles)
	require.Len(t, vwap, 3)
	assert.InDelta(t, 100, vwap[0], 1e-9)
	assert.InDelta(t, 101, vwap[1], 1e-9)
	assert.InDelta(t, 200, vwap[2], 1e-9)
}

func TestVolumeRatio(t *testing.T) {
	volumes := []float64{10, 10, 10, 10, 30}
	ratios := VolumeRatio(volumes, 4)
	require.Len(t, ratios, 5)
	assert.True(t, math.IsNaN(ratios[3]))
	assert.InDelta(t, 3.0, ratios[4], 1e-9)
}

func TestCrossState(t *testing.T) {
	assert.Equal(t, 1, CrossState([]float64{1, 3}, []float64{2, 2}))
	assert.Equal(t, -1, CrossState([]float64{3, 1}, []float64{2, 2}))
	assert.Equal(t, 0, CrossState([]float64{3, 4}, []float64{2, 2}))
	assert.Equal(t, 0, CrossState([]float64{math.NaN(), 3}, []float64{2, 2}))
}

func TestClassifyRegime(t *testing.T) {
	assert.Equal(t, RegimeLow, ClassifyRegime(0.005))
	assert.Equal(t, RegimeMedium, ClassifyRegime(0.02))
	assert.Equal(t, RegimeHigh, ClassifyRegime(0.04))
	assert.Equal(t, RegimeExtreme, ClassifyRegime(0.08))
	assert.Equal(t, RegimeUnknown, ClassifyRegime(math.NaN()))
}

func TestAdxStaysInBounds(t *testing.T) {
	candles := syntheticCandles(120)
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}

	adx := Adx(highs, lows, closes, 14)
	require.Len(t, adx, len(candles))

	last := adx[len(adx)-1]
	require.False(t, math.IsNaN(last))
	assert.GreaterOrEqual(t, last, 0.0)
	assert.LessOrEqual(t, last, 100.0)
	// Warm-up region stays NaN
	assert.True(t, math.IsNaN(adx[10]))
}

func TestEngineComputeSnapshot(t *testing.T) {
	engine := NewEngine(testConfig())
	candles := syntheticCandles(120)

	snap, err := engine.Compute("BTCUSDT", candles)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, candles[len(candles)-1].Close, snap.Close)

	for name, v := range map[string]float64{
		"ema_fast":     snap.EmaFast,
		"ema_slow":     snap.EmaSlow,
		"rsi":          snap.Rsi,
		"macd_hist":    snap.MacdHist,
		"bb_upper":     snap.BBUpper,
		"bb_lower":     snap.BBLower,
		"percent_b":    snap.PercentB,
		"atr":          snap.Atr,
		"atr_pct":      snap.AtrPct,
		"vwap":         snap.Vwap,
		"sma_20":       snap.Sma20,
		"sma_60":       snap.Sma60,
		"adx":          snap.Adx,
		"volume_ratio": snap.VolumeRatio,
	} {
		assert.False(t, math.IsNaN(v), "field %s should be computable", name)
	}

	assert.GreaterOrEqual(t, snap.Rsi, 0.0)
	assert.LessOrEqual(t, snap.Rsi, 100.0)
	assert.NotEqual(t, RegimeUnknown, snap.Profile().Regime)
}

func TestEngineComputeRejectsShortSeries(t *testing.T) {
	engine := NewEngine(testConfig())

	_, err := engine.Compute("BTCUSDT", syntheticCandles(20))
	assert.ErrorIs(t, err, ErrInsufficientData)
}
