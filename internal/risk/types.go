package risk

// ActionType is the exit decision for an open position.
type ActionType string

const (
	ActionHold         ActionType = "HOLD"
	ActionStopLoss     ActionType = "STOP_LOSS"
	ActionTakeProfit   ActionType = "TAKE_PROFIT"
	ActionTrailingStop ActionType = "TRAILING_STOP"
	ActionMaxHold      ActionType = "MAX_HOLD"
)

// Action is the result of evaluating one position against the latest price.
type Action struct {
	Symbol      string     `json:"symbol"`
	Action      ActionType `json:"action"`
	QuantityPct float64    `json:"quantity_pct"` // fraction of the initial quantity to close
	NewTpStage  int        `json:"new_tp_stage,omitempty"`
	PnlPct      float64    `json:"pnl_pct"`
	Pnl         float64    `json:"pnl"` // notional, full position at current price
	Reason      string     `json:"reason"`
	Urgency     int        `json:"urgency"` // 0 hold, 1 low, 2 medium, 3 high
}

// IsExit reports whether the action closes any quantity.
func (a Action) IsExit() bool {
	return a.Action != ActionHold && a.QuantityPct > 0
}
