package exchange

import "context"

// Exchange defines the venue contract shared by the live and simulated
// implementations. Callers never branch on the mode.
type Exchange interface {
	// GetCandles returns time-ascending OHLCV bars for a symbol.
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// GetTicker returns the latest public snapshot for one symbol.
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)

	// GetTickers returns snapshots for several symbols in one call.
	GetTickers(ctx context.Context, symbols []string) (map[string]Ticker, error)

	// GetOrderbook returns the top depth levels for a symbol.
	GetOrderbook(ctx context.Context, symbol string, depth int) (*Orderbook, error)

	// GetBalances returns the per-currency account balances.
	GetBalances(ctx context.Context) (*BalancesSnapshot, error)

	// PlaceOrder submits an order and returns the parsed execution result.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error)

	// CancelAll cancels open orders, optionally restricted to one symbol
	// (empty symbol cancels everywhere).
	CancelAll(ctx context.Context, symbol string) error

	// OpenPositions returns the venue's authoritative open positions,
	// normalized for reconciliation.
	OpenPositions(ctx context.Context) ([]PositionSnapshot, error)
}
