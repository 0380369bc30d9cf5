package risk

import "fmt"

// SizingInput carries the account view needed to size one entry.
type SizingInput struct {
	Symbol           string
	EntryPrice       float64
	AtrPct           float64 // ATR as a fraction of price, 0 when unknown
	TotalEquity      float64
	AvailableBalance float64
	TotalUsedMargin  float64
	Leverage         int
	MinOrderNotional float64
}

// Sizing is the computed order size for one entry.
type Sizing struct {
	Notional  float64 `json:"notional"`
	Quantity  float64 `json:"quantity"`
	Margin    float64 `json:"margin"`
	MarginPct float64 `json:"margin_pct"`
}

// SizePosition computes the margin-based order size with volatility
// scaling: the base per-ticker margin shrinks as ATR rises above the
// target and is capped per ticker. Returns an error when portfolio-level
// safety limits forbid the entry.
func (e *Engine) SizePosition(in SizingInput) (*Sizing, error) {
	if in.TotalUsedMargin > in.TotalEquity*e.cfg.MaxTotalMarginPct {
		return nil, fmt.Errorf("total used margin %.2f exceeds %.0f%% of equity",
			in.TotalUsedMargin, e.cfg.MaxTotalMarginPct*100)
	}
	if in.AvailableBalance < in.TotalEquity*e.cfg.MinAvailablePct {
		return nil, fmt.Errorf("available balance %.2f below %.0f%% of equity",
			in.AvailableBalance, e.cfg.MinAvailablePct*100)
	}

	marginPct := e.cfg.MarginPerTickerPct
	if in.AtrPct > 0 {
		marginPct = e.cfg.MarginPerTickerPct * (e.cfg.TargetAtrPct / in.AtrPct)
		if marginPct > e.cfg.MaxPerTickerPct {
			marginPct = e.cfg.MaxPerTickerPct
		}
	}

	leverage := in.Leverage
	if leverage < 1 {
		leverage = 1
	}
	margin := in.TotalEquity * marginPct
	notional := margin * float64(leverage)

	if notional < in.MinOrderNotional {
		return nil, fmt.Errorf("sized notional %.2f below minimum order %.2f",
			notional, in.MinOrderNotional)
	}

	e.logger.Info().
		Str("symbol", in.Symbol).
		Float64("margin", margin).
		Float64("margin_pct", marginPct).
		Float64("notional", notional).
		Int("leverage", leverage).
		Msg("Sized position")

	return &Sizing{
		Notional:  notional,
		Quantity:  notional / in.EntryPrice,
		Margin:    margin,
		MarginPct: marginPct,
	}, nil
}
