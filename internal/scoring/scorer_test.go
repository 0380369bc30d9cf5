package scoring

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/coinforge/internal/config"
	"github.com/coinforge/coinforge/internal/indicators"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Weights: config.WeightConfig{
			Technical:  0.30,
			Momentum:   0.25,
			Volatility: 0.15,
			Volume:     0.15,
			Sentiment:  0.15,
		},
		BuyThreshold:       70,
		StrongBuyThreshold: 80,
		SellThreshold:      30,
	}
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	scorer, err := NewScorer(testScoringConfig(), zerolog.Nop())
	require.NoError(t, err)
	return scorer
}

// oversoldSnapshot builds inputs where every factor screams buy.
func oversoldSnapshot() *indicators.Snapshot {
	return &indicators.Snapshot{
		Symbol:      "BTCUSDT",
		Open:        101,
		Close:       100,
		EmaFast:     99,
		EmaSlow:     98,
		Rsi:         18,
		MacdHist:    0.5,
		MacdSignal:  -0.2,
		StochK:      10,
		StochD:      8,
		Roc:         -6,
		PercentB:    0.05,
		Sma5:        101,
		Sma20:       100,
		Sma60:       99,
		Adx:         45,
		Vwap:        104,
		VolumeRatio: 4.0,
	}
}

func neutralSnapshot() *indicators.Snapshot {
	nan := math.NaN()
	return &indicators.Snapshot{
		Symbol:     "ETHUSDT",
		Close:      100,
		Open:       100,
		EmaFast:    nan,
		EmaSlow:    nan,
		Rsi:        nan,
		MacdHist:   nan,
		MacdSignal: nan,
		StochK:     nan,
		StochD:     nan,
		Roc:        nan,
		PercentB:   nan,
		Sma5:       nan,
		Sma20:      nan,
		Sma60:      nan,
		Adx:        nan,
		Vwap:       nan,

		VolumeRatio: nan,
	}
}

func TestNewScorerRejectsBadWeights(t *testing.T) {
	cfg := testScoringConfig()
	cfg.Weights.Technical = 0.50

	_, err := NewScorer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestScoreRequiresSnapshot(t *testing.T) {
	_, err := newTestScorer(t).Score(nil, nil, nil)
	assert.ErrorIs(t, err, ErrMissingInputs)
}

func TestMissingOptionalInputsScoreNeutral(t *testing.T) {
	result, err := newTestScorer(t).Score(neutralSnapshot(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 50.0, result.Volatility)
	assert.Equal(t, 50.0, result.Sentiment)
	assert.Equal(t, SignalHold, result.Signal)
}

func TestOversoldInputsProduceBuySignal(t *testing.T) {
	vol := &indicators.VolatilityProfile{
		Symbol:  "BTCUSDT",
		AtrPct:  0.02,
		BBWidth: 0.04,
		Regime:  indicators.RegimeMedium,
	}
	sent := &SentimentSnapshot{FearGreedIndex: 12, NewsSentiment: 0.3}

	result, err := newTestScorer(t).Score(oversoldSnapshot(), vol, sent)
	require.NoError(t, err)

	assert.True(t, result.Signal.IsBuy(), "got %s with total %.1f", result.Signal, result.Total)
	assert.Greater(t, result.Total, 70.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 100.0)
	assert.Contains(t, result.Rationale, "BTCUSDT")
}

func TestAllSubScoresStayBounded(t *testing.T) {
	result, err := newTestScorer(t).Score(oversoldSnapshot(), nil, nil)
	require.NoError(t, err)

	for name, v := range map[string]float64{
		"technical":  result.Technical,
		"momentum":   result.Momentum,
		"volatility": result.Volatility,
		"volume":     result.Volume,
		"sentiment":  result.Sentiment,
		"total":      result.Total,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 100.0, name)
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	scorer := newTestScorer(t)
	snap := oversoldSnapshot()

	a, err := scorer.Score(snap, nil, nil)
	require.NoError(t, err)
	b, err := scorer.Score(snap, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, a.Total, b.Total)
	assert.Equal(t, a.Signal, b.Signal)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Rationale, b.Rationale)
	assert.Equal(t, a.Details, b.Details)
}

func TestSignalThresholds(t *testing.T) {
	scorer := newTestScorer(t)

	assert.Equal(t, SignalStrongBuy, scorer.determineSignal(85))
	assert.Equal(t, SignalStrongBuy, scorer.determineSignal(80))
	assert.Equal(t, SignalBuy, scorer.determineSignal(75))
	assert.Equal(t, SignalHold, scorer.determineSignal(50))
	assert.Equal(t, SignalSell, scorer.determineSignal(30))
	assert.Equal(t, SignalSell, scorer.determineSignal(10))
}

func TestBuyCandidatesFilterAndOrder(t *testing.T) {
	results := []*Result{
		{Symbol: "A", Total: 72, Signal: SignalBuy},
		{Symbol: "B", Total: 45, Signal: SignalHold},
		{Symbol: "C", Total: 88, Signal: SignalStrongBuy},
		{Symbol: "D", Total: 20, Signal: SignalSell},
	}

	candidates := BuyCandidates(results)
	require.Len(t, candidates, 2)
	assert.Equal(t, "C", candidates[0].Symbol)
	assert.Equal(t, "A", candidates[1].Symbol)
}

func TestConfidenceRewardsConsistency(t *testing.T) {
	aligned := calcConfidence(80, []float64{80, 80, 80, 80, 80})
	scattered := calcConfidence(80, []float64{100, 30, 95, 40, 85})

	assert.Greater(t, aligned, scattered)
}
