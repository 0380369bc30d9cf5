package scoring

import (
	"errors"
	"time"
)

// ErrMissingInputs means the required indicator snapshot was absent.
var ErrMissingInputs = errors.New("missing indicator inputs")

// Signal is the trading recommendation derived from the total score.
type Signal string

const (
	SignalStrongBuy Signal = "STRONG_BUY"
	SignalBuy       Signal = "BUY"
	SignalHold      Signal = "HOLD"
	SignalSell      Signal = "SELL"
)

// IsBuy reports whether the signal qualifies a symbol for allocation.
func (s Signal) IsBuy() bool {
	return s == SignalBuy || s == SignalStrongBuy
}

// FactorDetail records one predicate's contribution to a factor score.
type FactorDetail struct {
	Name         string  `json:"name"`
	Raw          float64 `json:"raw"`
	Contribution float64 `json:"contribution"`
}

// SentimentSnapshot carries optional market-wide sentiment inputs.
type SentimentSnapshot struct {
	FearGreedIndex     float64   `json:"fear_greed_index"`      // 0-100
	NewsSentiment      float64   `json:"news_sentiment"`        // -1.0 to 1.0
	SocialVolumeChange float64   `json:"social_volume_change"`  // percent
	At                 time.Time `json:"at"`
}

// Result is the multi-factor score of one symbol.
type Result struct {
	Symbol     string                    `json:"symbol"`
	Technical  float64                   `json:"technical_score"`
	Momentum   float64                   `json:"momentum_score"`
	Volatility float64                   `json:"volatility_score"`
	Volume     float64                   `json:"volume_score"`
	Sentiment  float64                   `json:"sentiment_score"`
	Total      float64                   `json:"total_score"`
	Signal     Signal                    `json:"signal"`
	Confidence float64                   `json:"confidence"`
	Rationale  string                    `json:"rationale"`
	Details    map[string][]FactorDetail `json:"details"`
	ScoredAt   time.Time                 `json:"scored_at"`
}
