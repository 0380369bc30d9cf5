package exchange

import "time"

// OrderSide represents buy or sell
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// PositionSide distinguishes long from short exposure
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// OrderType represents market or limit order
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus represents the final state of an order attempt
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusFailed   OrderStatus = "failed"
)

// Candle is one fixed-timeframe OHLCV bar
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Valid reports whether the bar satisfies the OHLCV ordering invariant.
func (c Candle) Valid() bool {
	if c.Volume < 0 {
		return false
	}
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	return c.Low <= lo && hi <= c.High
}

// Ticker is the latest public market snapshot for one symbol
type Ticker struct {
	Symbol         string    `json:"symbol"`
	Last           float64   `json:"last"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	ChangeRate24h  float64   `json:"change_rate_24h"`
	QuoteVolume24h float64   `json:"quote_volume_24h"`
	At             time.Time `json:"at"`
}

// Balance holds per-currency account funds
type Balance struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// BalancesSnapshot is the full account view returned by GetBalances
type BalancesSnapshot struct {
	Currencies  map[string]Balance `json:"currencies"`
	TotalEquity float64            `json:"total_equity,omitempty"`
	At          time.Time          `json:"at"`
}

// PriceLevel is one orderbook level
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Orderbook holds the top-of-book levels for one symbol
type Orderbook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
	At     time.Time    `json:"at"`
}

// PlaceOrderRequest represents a request to place an order.
// Exactly one of Quantity or Notional must be set for market orders;
// limit orders require both Quantity and Price.
type PlaceOrderRequest struct {
	Symbol       string       `json:"symbol"`
	Side         OrderSide    `json:"side"`
	PositionSide PositionSide `json:"position_side"`
	Type         OrderType    `json:"type"`
	Quantity     float64      `json:"quantity,omitempty"`
	Notional     float64      `json:"notional,omitempty"`
	Price        float64      `json:"price,omitempty"`
}

// OrderResult is the parsed outcome of a placed order
type OrderResult struct {
	OrderID       string       `json:"order_id"`
	Symbol        string       `json:"symbol"`
	Side          OrderSide    `json:"side"`
	PositionSide  PositionSide `json:"position_side"`
	Status        OrderStatus  `json:"status"`
	ExecutedPrice float64      `json:"executed_price"`
	ExecutedQty   float64      `json:"executed_qty"`
	Notional      float64      `json:"notional"`
	Fee           float64      `json:"fee"`
	At            time.Time    `json:"at"`
}

// PositionSnapshot is the exchange's authoritative view of one open position,
// normalized for the reconciler.
type PositionSnapshot struct {
	Symbol   string       `json:"symbol"`
	Side     PositionSide `json:"side"`
	Quantity float64      `json:"quantity"`
}
