package indicators

import (
	"errors"
	"math"
	"time"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/exchange"
)

// ErrInsufficientData means too few candles were supplied for a snapshot.
var ErrInsufficientData = errors.New("insufficient candle data")

// Snapshot is the full indicator state of one symbol at the latest bar.
// Fields that cannot be computed yet hold NaN.
type Snapshot struct {
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`
	Open   float64   `json:"open"`
	Close  float64   `json:"close"`

	EmaFast  float64 `json:"ema_fast"`
	EmaSlow  float64 `json:"ema_slow"`
	EmaCross int     `json:"ema_cross"` // +1 bullish cross, -1 bearish, 0 none

	Rsi        float64 `json:"rsi"`
	MacdLine   float64 `json:"macd_line"`
	MacdSignal float64 `json:"macd_signal"`
	MacdHist   float64 `json:"macd_hist"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`
	Roc        float64 `json:"roc"`

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`
	PercentB float64 `json:"percent_b"`
	BBWidth  float64 `json:"bb_width"`

	Atr    float64 `json:"atr"`
	AtrPct float64 `json:"atr_pct"`

	Vwap  float64 `json:"vwap"`
	Sma5  float64 `json:"sma_5"`
	Sma20 float64 `json:"sma_20"`
	Sma60 float64 `json:"sma_60"`
	Adx   float64 `json:"adx"`

	VolumeRatio float64 `json:"volume_ratio"`
	VolumeSurge bool    `json:"volume_surge"`
}

// Profile derives the volatility profile from the snapshot.
func (s *Snapshot) Profile() VolatilityProfile {
	return VolatilityProfile{
		Symbol:  s.Symbol,
		AtrPct:  s.AtrPct,
		BBWidth: s.BBWidth,
		Regime:  ClassifyRegime(s.AtrPct),
	}
}

// Engine computes indicator snapshots from candle series.
type Engine struct {
	cfg config.IndicatorConfig
}

// NewEngine creates an indicator engine.
func NewEngine(cfg config.IndicatorConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compute builds the snapshot for the latest bar of the series. The series
// must be ascending by open time and hold at least MinCandles rows.
func (e *Engine) Compute(symbol string, candles []exchange.Candle) (*Snapshot, error) {
	minCandles := e.cfg.MinCandles
	if minCandles <= 0 {
		minCandles = 50
	}
	if len(candles) < minCandles {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	last := n - 1

	emaFast := Ema(closes, e.cfg.EmaFast)
	emaSlow := Ema(closes, e.cfg.EmaSlow)
	macdLine, macdSignal := Macd(closes, 12, 26, 9)
	bbLower, bbMiddle, bbUpper := Bollinger(closes, e.cfg.BollingerPeriod)
	atr := Atr(highs, lows, closes, e.cfg.AtrPeriod)
	vwap := Vwap(candles)
	volRatio := VolumeRatio(volumes, e.cfg.VolumePeriod)
	stochK, stochD := Stoch(highs, lows, closes, 14, 3)
	roc := Roc(closes, 12)

	snap := &Snapshot{
		Symbol: symbol,
		At:     candles[last].OpenTime,
		Open:   candles[last].Open,
		Close:  closes[last],

		EmaFast:  emaFast[last],
		EmaSlow:  emaSlow[last],
		EmaCross: CrossState(emaFast, emaSlow),

		Rsi:        Rsi(closes, e.cfg.RsiPeriod)[last],
		MacdLine:   macdLine[last],
		MacdSignal: macdSignal[last],
		MacdHist:   macdLine[last] - macdSignal[last],
		StochK:     stochK[last],
		StochD:     stochD[last],
		Roc:        roc[last],

		BBUpper:  bbUpper[last],
		BBMiddle: bbMiddle[last],
		BBLower:  bbLower[last],

		Atr: atr[last],

		Vwap:  vwap[last],
		Sma5:  Sma(closes, 5)[last],
		Sma20: Sma(closes, 20)[last],
		Sma60: Sma(closes, 60)[last],
		Adx:   Adx(highs, lows, closes, e.cfg.AtrPeriod)[last],

		VolumeRatio: volRatio[last],
	}

	if band := snap.BBUpper - snap.BBLower; band > 0 {
		snap.PercentB = (snap.Close - snap.BBLower) / band
	} else {
		snap.PercentB = math.NaN()
	}
	if snap.BBMiddle > 0 {
		snap.BBWidth = (snap.BBUpper - snap.BBLower) / snap.BBMiddle
	} else {
		snap.BBWidth = math.NaN()
	}
	if snap.Close > 0 {
		snap.AtrPct = snap.Atr / snap.Close
	} else {
		snap.AtrPct = math.NaN()
	}

	surgeRatio := e.cfg.VolumeSurgeRatio
	if surgeRatio <= 0 {
		surgeRatio = 1.5
	}
	snap.VolumeSurge = !math.IsNaN(snap.VolumeRatio) && snap.VolumeRatio >= surgeRatio

	return snap, nil
}
