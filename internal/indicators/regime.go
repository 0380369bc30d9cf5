package indicators

import "math"

// Regime buckets the current volatility level.
type Regime string

const (
	RegimeLow     Regime = "LOW"
	RegimeMedium  Regime = "MEDIUM"
	RegimeHigh    Regime = "HIGH"
	RegimeExtreme Regime = "EXTREME"
	RegimeUnknown Regime = "UNKNOWN"
)

// VolatilityProfile describes how volatile a symbol currently is.
type VolatilityProfile struct {
	Symbol  string  `json:"symbol"`
	AtrPct  float64 `json:"atr_pct"`
	BBWidth float64 `json:"bb_width"`
	Regime  Regime  `json:"regime"`
}

// ClassifyRegime maps ATR as a fraction of price to a volatility regime.
func ClassifyRegime(atrPct float64) Regime {
	switch {
	case math.IsNaN(atrPct):
		return RegimeUnknown
	case atrPct < 0.01:
		return RegimeLow
	case atrPct < 0.025:
		return RegimeMedium
	case atrPct < 0.05:
		return RegimeHigh
	}
	return RegimeExtreme
}
