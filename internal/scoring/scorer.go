package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/indicators"
)

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Scorer folds an indicator snapshot plus optional volatility and sentiment
// inputs into a weighted 0-100 score and a trading signal. Scoring is pure:
// identical inputs yield identical results.
type Scorer struct {
	cfg    config.ScoringConfig
	logger zerolog.Logger
}

// NewScorer creates a scorer. The five factor weights must sum to 1.0
// within a 0.01 tolerance.
func NewScorer(cfg config.ScoringConfig, logger zerolog.Logger) (*Scorer, error) {
	if sum := cfg.Weights.Sum(); sum < 0.99 || sum > 1.01 {
		return nil, fmt.Errorf("factor weights must sum to 1.0, got %.4f", sum)
	}
	return &Scorer{cfg: cfg, logger: logger}, nil
}

// Score produces the result for one symbol. The indicator snapshot is
// required; volatility and sentiment default their factors to a neutral 50
// when absent.
func (s *Scorer) Score(snap *indicators.Snapshot, vol *indicators.VolatilityProfile, sent *SentimentSnapshot) (*Result, error) {
	if snap == nil {
		return nil, ErrMissingInputs
	}

	technical, techDetails := s.technicalScore(snap)
	momentum, momDetails := s.momentumScore(snap)
	volatility, volDetails := s.volatilityScore(vol)
	volume, volumeDetails := s.volumeScore(snap)
	sentiment, sentDetails := s.sentimentScore(sent)

	w := s.cfg.Weights
	total := clamp(w.Technical*technical +
		w.Momentum*momentum +
		w.Volatility*volatility +
		w.Volume*volume +
		w.Sentiment*sentiment)

	signal := s.determineSignal(total)
	subs := []float64{technical, momentum, volatility, volume, sentiment}
	confidence := calcConfidence(total, subs)

	result := &Result{
		Symbol:     snap.Symbol,
		Technical:  round2(technical),
		Momentum:   round2(momentum),
		Volatility: round2(volatility),
		Volume:     round2(volume),
		Sentiment:  round2(sentiment),
		Total:      round2(total),
		Signal:     signal,
		Confidence: round2(confidence),
		Rationale:  buildRationale(snap.Symbol, subs, signal),
		Details: map[string][]FactorDetail{
			"technical":  techDetails,
			"momentum":   momDetails,
			"volatility": volDetails,
			"volume":     volumeDetails,
			"sentiment":  sentDetails,
		},
		ScoredAt: time.Now().UTC(),
	}

	s.logger.Info().
		Str("symbol", snap.Symbol).
		Float64("total", result.Total).
		Str("signal", string(signal)).
		Float64("confidence", result.Confidence).
		Msg("Scored symbol")

	return result, nil
}

// SortByTotal orders results best first.
func SortByTotal(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Total > results[j].Total
	})
}

// BuyCandidates keeps only BUY and STRONG_BUY results, best first.
func BuyCandidates(results []*Result) []*Result {
	var out []*Result
	for _, r := range results {
		if r.Signal.IsBuy() {
			out = append(out, r)
		}
	}
	SortByTotal(out)
	return out
}

func (s *Scorer) technicalScore(snap *indicators.Snapshot) (float64, []FactorDetail) {
	score := 50.0
	var details []FactorDetail

	if !math.IsNaN(snap.Rsi) {
		var c float64
		switch {
		case snap.Rsi < 20:
			c = 30
		case snap.Rsi < 30:
			c = 20
		case snap.Rsi < 40:
			c = 10
		case snap.Rsi > 85:
			c = -30
		case snap.Rsi > 75:
			c = -20
		case snap.Rsi > 65:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"rsi", round2(snap.Rsi), c})
	}

	if !math.IsNaN(snap.MacdHist) && !math.IsNaN(snap.MacdSignal) {
		var c float64
		switch {
		case snap.MacdHist > 0 && snap.MacdSignal < 0:
			c = 15
		case snap.MacdHist > 0:
			c = 8
		case snap.MacdHist < 0 && snap.MacdSignal > 0:
			c = -12
		case snap.MacdHist < 0:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"macd_histogram", snap.MacdHist, c})
	}

	if !math.IsNaN(snap.PercentB) {
		var c float64
		switch {
		case snap.PercentB < 0.1:
			c = 20
		case snap.PercentB < 0.25:
			c = 12
		case snap.PercentB > 0.9:
			c = -15
		case snap.PercentB > 0.75:
			c = -8
		}
		score += c
		details = append(details, FactorDetail{"bollinger_position", round2(snap.PercentB), c})
	}

	if !math.IsNaN(snap.Sma5) && !math.IsNaN(snap.Sma20) && !math.IsNaN(snap.Sma60) {
		var c float64
		switch {
		case snap.Sma5 > snap.Sma20 && snap.Sma20 > snap.Sma60:
			c = 12
		case snap.Sma5 > snap.Sma20:
			c = 5
		case snap.Sma5 < snap.Sma20 && snap.Sma20 < snap.Sma60:
			c = -12
		case snap.Sma5 < snap.Sma20:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"sma_alignment", 0, c})
	}

	if !math.IsNaN(snap.EmaFast) && !math.IsNaN(snap.EmaSlow) && snap.EmaSlow > 0 {
		diffPct := (snap.EmaFast - snap.EmaSlow) / snap.EmaSlow * 100
		var c float64
		switch {
		case diffPct > 1.0:
			c = 5
		case diffPct < -1.0:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"ema_spread", round2(diffPct), c})
	}

	if !math.IsNaN(snap.Adx) {
		var c float64
		switch {
		case snap.Adx > 40:
			c = 5
		case snap.Adx < 15:
			c = -3
		}
		score += c
		details = append(details, FactorDetail{"adx", round2(snap.Adx), c})
	}

	return clamp(score), details
}

func (s *Scorer) momentumScore(snap *indicators.Snapshot) (float64, []FactorDetail) {
	score := 50.0
	var details []FactorDetail

	if snap.Open > 0 {
		gapPct := (snap.Close - snap.Open) / snap.Open * 100
		var c float64
		switch {
		case gapPct > -5 && gapPct <= -3:
			c = 15
		case gapPct > -3 && gapPct <= -0.5:
			c = 20
		case gapPct > -10 && gapPct <= -5:
			c = 5
		case gapPct <= -10:
			c = -15
		case gapPct > 0 && gapPct <= 2:
			c = 5
		case gapPct > 2 && gapPct <= 5:
			c = -3
		case gapPct > 5:
			c = -10
		}
		score += c
		details = append(details, FactorDetail{"price_gap", round2(gapPct), c})
	}

	if !math.IsNaN(snap.StochK) {
		var c float64
		switch {
		case snap.StochK < 15:
			c = 20
		case snap.StochK < 25:
			c = 12
		case snap.StochK > 85:
			c = -15
		case snap.StochK > 75:
			c = -8
		}
		if !math.IsNaN(snap.StochD) && snap.StochK > snap.StochD && snap.StochK < 30 {
			c += 5
		}
		score += c
		details = append(details, FactorDetail{"stoch_k", round2(snap.StochK), c})
	}

	if !math.IsNaN(snap.Roc) {
		var c float64
		switch {
		case snap.Roc < -5:
			c = 10
		case snap.Roc > 10:
			c = -5
		case snap.Roc > 0 && snap.Roc <= 5:
			c = 5
		}
		score += c
		details = append(details, FactorDetail{"roc", round2(snap.Roc), c})
	}

	return clamp(score), details
}

func (s *Scorer) volatilityScore(vol *indicators.VolatilityProfile) (float64, []FactorDetail) {
	if vol == nil {
		return 50, []FactorDetail{{Name: "volatility_data"}}
	}

	score := 50.0
	var details []FactorDetail

	var regimeContrib float64
	switch vol.Regime {
	case indicators.RegimeLow:
		regimeContrib = -10
	case indicators.RegimeMedium:
		regimeContrib = 25
	case indicators.RegimeHigh:
		regimeContrib = 5
	case indicators.RegimeExtreme:
		regimeContrib = -20
	}
	score += regimeContrib
	details = append(details, FactorDetail{"volatility_regime", 0, regimeContrib})

	if !math.IsNaN(vol.AtrPct) {
		atrPercent := vol.AtrPct * 100
		var c float64
		switch {
		case atrPercent >= 1.0 && atrPercent <= 3.0:
			c = 10
		case atrPercent > 5.0:
			c = -10
		case atrPercent < 0.5:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"atr_percent", round2(atrPercent), c})
	}

	if !math.IsNaN(vol.BBWidth) {
		var c float64
		switch {
		case vol.BBWidth > 0.02 && vol.BBWidth < 0.06:
			c = 5
		case vol.BBWidth >= 0.10:
			c = -5
		case vol.BBWidth <= 0.01:
			c = -3
		}
		score += c
		details = append(details, FactorDetail{"bb_width", vol.BBWidth, c})
	}

	return clamp(score), details
}

func (s *Scorer) volumeScore(snap *indicators.Snapshot) (float64, []FactorDetail) {
	score := 50.0
	var details []FactorDetail

	if !math.IsNaN(snap.VolumeRatio) {
		var c float64
		switch {
		case snap.VolumeRatio > 5.0:
			c = 30
		case snap.VolumeRatio > 3.0:
			c = 22
		case snap.VolumeRatio > 2.0:
			c = 15
		case snap.VolumeRatio > 1.5:
			c = 10
		case snap.VolumeRatio > 1.0:
			c = 3
		case snap.VolumeRatio < 0.3:
			c = -20
		case snap.VolumeRatio < 0.5:
			c = -12
		case snap.VolumeRatio < 0.7:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"volume_ratio", round2(snap.VolumeRatio), c})
	}

	if !math.IsNaN(snap.Vwap) && snap.Vwap > 0 && snap.Close > 0 {
		vwapPct := (snap.Close - snap.Vwap) / snap.Vwap * 100
		var c float64
		switch {
		case vwapPct < -2:
			c = 8
		case vwapPct > 3:
			c = -5
		}
		score += c
		details = append(details, FactorDetail{"vwap_deviation", round2(vwapPct), c})
	}

	return clamp(score), details
}

func (s *Scorer) sentimentScore(sent *SentimentSnapshot) (float64, []FactorDetail) {
	if sent == nil {
		return 50, []FactorDetail{{Name: "sentiment_data"}}
	}

	score := 50.0
	var details []FactorDetail

	fg := sent.FearGreedIndex
	var fgContrib float64
	switch {
	case fg < 15:
		fgContrib = 30
	case fg < 25:
		fgContrib = 20
	case fg < 35:
		fgContrib = 10
	case fg > 85:
		fgContrib = -25
	case fg > 75:
		fgContrib = -15
	case fg > 65:
		fgContrib = -8
	}
	score += fgContrib
	details = append(details, FactorDetail{"fear_greed_index", fg, fgContrib})

	var newsContrib float64
	switch {
	case sent.NewsSentiment > 0.5:
		newsContrib = 8
	case sent.NewsSentiment > 0.2:
		newsContrib = 4
	case sent.NewsSentiment < -0.5:
		newsContrib = -8
	case sent.NewsSentiment < -0.2:
		newsContrib = -4
	}
	score += newsContrib
	details = append(details, FactorDetail{"news_sentiment", sent.NewsSentiment, newsContrib})

	var socialContrib float64
	switch {
	case sent.SocialVolumeChange > 100:
		socialContrib = 5
	case sent.SocialVolumeChange < -50:
		socialContrib = -3
	}
	score += socialContrib
	details = append(details, FactorDetail{"social_volume_change", sent.SocialVolumeChange, socialContrib})

	return clamp(score), details
}

func (s *Scorer) determineSignal(total float64) Signal {
	switch {
	case total >= s.cfg.StrongBuyThreshold:
		return SignalStrongBuy
	case total >= s.cfg.BuyThreshold:
		return SignalBuy
	case total <= s.cfg.SellThreshold:
		return SignalSell
	}
	return SignalHold
}

// calcConfidence blends distance from neutral, inter-factor consistency,
// and factor agreement into a 0-100 confidence value.
func calcConfidence(total float64, subs []float64) float64 {
	var mean float64
	for _, v := range subs {
		mean += v
	}
	mean /= float64(len(subs))

	var variance float64
	for _, v := range subs {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(subs)))
	consistency := math.Max(0, 100-stdDev*2.5)

	distance := 40 + math.Abs(total-50)*1.2

	var buyAgree, sellAgree int
	for _, v := range subs {
		if v >= 60 {
			buyAgree++
		}
		if v <= 40 {
			sellAgree++
		}
	}
	agreement := float64(max(buyAgree, sellAgree)) * 5

	return clamp(distance*0.4 + consistency*0.4 + agreement*0.2)
}

var factorNames = []string{"technical", "momentum", "volatility", "volume", "sentiment"}

// buildRationale renders a deterministic explanation from the sub-scores.
func buildRationale(symbol string, subs []float64, signal Signal) string {
	var strengths, weaknesses []string
	for i, v := range subs {
		if v >= 65 {
			strengths = append(strengths, factorNames[i])
		}
		if v <= 40 {
			weaknesses = append(weaknesses, factorNames[i])
		}
	}

	parts := []string{fmt.Sprintf("[%s]", symbol)}
	switch signal {
	case SignalStrongBuy:
		parts = append(parts, "strong buy")
	case SignalBuy:
		parts = append(parts, "buy")
	case SignalSell:
		parts = append(parts, "sell")
	default:
		parts = append(parts, "hold")
	}
	if len(strengths) > 0 {
		parts = append(parts, "strengths: "+strings.Join(strengths, ", "))
	}
	if len(weaknesses) > 0 {
		parts = append(parts, "caution: "+strings.Join(weaknesses, ", "))
	}

	switch signal {
	case SignalStrongBuy:
		parts = append(parts, "multiple factors signal a buy at the same time")
	case SignalBuy:
		parts = append(parts, "overall positive with some factors to watch")
	case SignalSell:
		parts = append(parts, "most factors point down")
	default:
		parts = append(parts, "no clear direction")
	}

	return strings.Join(parts, " | ")
}

func round2(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Round(v*100) / 100
}
