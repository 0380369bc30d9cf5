package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/coinforge/coinforge/internal/metrics"
)

// BinanceExchange implements Exchange against the live venue.
type BinanceExchange struct {
	client        *binance.Client
	quoteCurrency string
	symbols       []string
	retryConfig   RetryConfig
	breaker       *gobreaker.CircuitBreaker
	logger        zerolog.Logger
}

// BinanceConfig contains connectivity settings for the live venue
type BinanceConfig struct {
	APIKey        string
	SecretKey     string
	Testnet       bool
	QuoteCurrency string
	Symbols       []string
	RetryConfig   RetryConfig
}

// NewBinanceExchange creates a live venue client. Order placement runs
// behind a circuit breaker so a flapping venue fails fast instead of
// stacking retries.
func NewBinanceExchange(cfg BinanceConfig, logger zerolog.Logger) *BinanceExchange {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	if cfg.Testnet {
		binance.UseTestnet = true
		logger.Info().Msg("Live exchange initialized (TESTNET mode)")
	} else {
		logger.Warn().Msg("Live exchange initialized (LIVE TRADING mode)")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange-orders",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.ExchangeBreakerOpen.Set(1)
			} else {
				metrics.ExchangeBreakerOpen.Set(0)
			}
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Order circuit breaker state changed")
		},
	})

	return &BinanceExchange{
		client:        client,
		quoteCurrency: cfg.QuoteCurrency,
		symbols:       cfg.Symbols,
		retryConfig:   cfg.RetryConfig,
		breaker:       breaker,
		logger:        logger,
	}
}

// GetCandles returns time-ascending OHLCV bars.
func (b *BinanceExchange) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	var klines []*binance.Kline
	err := WithRetry(ctx, b.retryConfig, func() error {
		var callErr error
		klines, callErr = b.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			Limit(limit).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s %s: %v", ErrUpstreamUnavailable, symbol, timeframe, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
		})
	}
	return candles, nil
}

// GetTicker returns the full 24h stats snapshot for one symbol.
func (b *BinanceExchange) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var stats []*binance.PriceChangeStats
	err := WithRetry(ctx, b.retryConfig, func() error {
		var callErr error
		stats, callErr = b.client.NewListPriceChangeStatsService().
			Symbol(symbol).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ticker %s: %v", ErrUpstreamUnavailable, symbol, err)
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: no ticker returned for %s", ErrUpstreamRejected, symbol)
	}
	return convertStats(stats[0]), nil
}

// GetTickers performs one batch price fetch for several symbols.
func (b *BinanceExchange) GetTickers(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	var prices []*binance.SymbolPrice
	err := WithRetry(ctx, b.retryConfig, func() error {
		var callErr error
		prices, callErr = b.client.NewListPricesService().
			Symbols(symbols).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: batch tickers: %v", ErrUpstreamUnavailable, err)
	}

	now := time.Now()
	result := make(map[string]Ticker, len(prices))
	for _, p := range prices {
		last, _ := strconv.ParseFloat(p.Price, 64)
		if last <= 0 {
			continue
		}
		result[p.Symbol] = Ticker{Symbol: p.Symbol, Last: last, At: now}
	}
	return result, nil
}

// GetOrderbook returns the top depth levels for a symbol.
func (b *BinanceExchange) GetOrderbook(ctx context.Context, symbol string, depth int) (*Orderbook, error) {
	var res *binance.DepthResponse
	err := WithRetry(ctx, b.retryConfig, func() error {
		var callErr error
		res, callErr = b.client.NewDepthService().
			Symbol(symbol).
			Limit(depth).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: orderbook %s: %v", ErrUpstreamUnavailable, symbol, err)
	}

	book := &Orderbook{Symbol: symbol, At: time.Now()}
	for _, bid := range res.Bids {
		price, _ := strconv.ParseFloat(bid.Price, 64)
		qty, _ := strconv.ParseFloat(bid.Quantity, 64)
		book.Bids = append(book.Bids, PriceLevel{Price: price, Quantity: qty})
	}
	for _, ask := range res.Asks {
		price, _ := strconv.ParseFloat(ask.Price, 64)
		qty, _ := strconv.ParseFloat(ask.Quantity, 64)
		book.Asks = append(book.Asks, PriceLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

// GetBalances returns per-currency account balances.
func (b *BinanceExchange) GetBalances(ctx context.Context) (*BalancesSnapshot, error) {
	var account *binance.Account
	err := WithRetry(ctx, b.retryConfig, func() error {
		var callErr error
		account, callErr = b.client.NewGetAccountService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: account: %v", ErrUpstreamUnavailable, err)
	}

	snapshot := &BalancesSnapshot{
		Currencies: make(map[string]Balance),
		At:         time.Now(),
	}
	for _, bal := range account.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		total := free + locked
		if total <= 0 {
			continue
		}
		snapshot.Currencies[bal.Asset] = Balance{Free: free, Used: locked, Total: total}
	}
	return snapshot, nil
}

// PlaceOrder submits an order and parses the executed fills.
func (b *BinanceExchange) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}

	side := binance.SideTypeBuy
	if req.Side == SideSell {
		side = binance.SideTypeSell
	}

	res, err := b.breaker.Execute(func() (interface{}, error) {
		var order *binance.CreateOrderResponse
		callErr := WithRetry(ctx, b.retryConfig, func() error {
			svc := b.client.NewCreateOrderService().
				Symbol(req.Symbol).
				Side(side)

			var doErr error
			if req.Type == OrderTypeMarket {
				svc = svc.Type(binance.OrderTypeMarket)
				if req.Notional > 0 {
					svc = svc.QuoteOrderQty(strconv.FormatFloat(req.Notional, 'f', 8, 64))
				} else {
					svc = svc.Quantity(strconv.FormatFloat(req.Quantity, 'f', 8, 64))
				}
			} else {
				svc = svc.Type(binance.OrderTypeLimit).
					TimeInForce(binance.TimeInForceTypeGTC).
					Quantity(strconv.FormatFloat(req.Quantity, 'f', 8, 64)).
					Price(strconv.FormatFloat(req.Price, 'f', 8, 64))
			}
			order, doErr = svc.Do(ctx)
			return doErr
		})
		return order, callErr
	})
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Msg("Order placement failed")
		return nil, fmt.Errorf("%w: place order %s %s: %v", classifyVenueError(err), req.Symbol, req.Side, err)
	}

	order := res.(*binance.CreateOrderResponse)
	result := b.convertOrder(order, req)

	b.logger.Info().
		Str("order_id", result.OrderID).
		Str("symbol", result.Symbol).
		Str("side", string(result.Side)).
		Float64("executed_price", result.ExecutedPrice).
		Float64("executed_qty", result.ExecutedQty).
		Float64("fee", result.Fee).
		Msg("Order placed")

	return result, nil
}

// CancelAll cancels open orders for one symbol, or every configured symbol
// when symbol is empty.
func (b *BinanceExchange) CancelAll(ctx context.Context, symbol string) error {
	targets := []string{symbol}
	if symbol == "" {
		targets = b.symbols
	}

	for _, s := range targets {
		err := WithRetry(ctx, b.retryConfig, func() error {
			_, callErr := b.client.NewCancelOpenOrdersService().
				Symbol(s).
				Do(ctx)
			return callErr
		})
		if err != nil {
			// "no open orders" style rejections are not a failure here
			b.logger.Debug().Err(err).Str("symbol", s).Msg("Cancel open orders returned error")
		}
	}
	return nil
}

// OpenPositions derives spot exposure from non-quote balances.
func (b *BinanceExchange) OpenPositions(ctx context.Context) ([]PositionSnapshot, error) {
	balances, err := b.GetBalances(ctx)
	if err != nil {
		return nil, err
	}

	const dust = 1e-8
	var positions []PositionSnapshot
	for asset, bal := range balances.Currencies {
		if asset == b.quoteCurrency || bal.Total <= dust {
			continue
		}
		positions = append(positions, PositionSnapshot{
			Symbol:   asset + b.quoteCurrency,
			Side:     PositionLong,
			Quantity: bal.Total,
		})
	}
	return positions, nil
}

func (b *BinanceExchange) convertOrder(order *binance.CreateOrderResponse, req PlaceOrderRequest) *OrderResult {
	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)

	var avgPrice float64
	if executedQty > 0 {
		avgPrice = quoteQty / executedQty
	}

	var fee float64
	for _, fill := range order.Fills {
		commission, _ := strconv.ParseFloat(fill.Commission, 64)
		if fill.CommissionAsset == b.quoteCurrency {
			fee += commission
		} else {
			fillPrice, _ := strconv.ParseFloat(fill.Price, 64)
			fee += commission * fillPrice
		}
	}

	status := OrderStatusOpen
	switch order.Status {
	case binance.OrderStatusTypeFilled:
		status = OrderStatusFilled
	case binance.OrderStatusTypeRejected:
		status = OrderStatusRejected
	}

	return &OrderResult{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		Symbol:        order.Symbol,
		Side:          req.Side,
		PositionSide:  req.PositionSide,
		Status:        status,
		ExecutedPrice: avgPrice,
		ExecutedQty:   executedQty,
		Notional:      quoteQty,
		Fee:           fee,
		At:            time.Now(),
	}
}

func convertStats(s *binance.PriceChangeStats) *Ticker {
	last, _ := strconv.ParseFloat(s.LastPrice, 64)
	open, _ := strconv.ParseFloat(s.OpenPrice, 64)
	high, _ := strconv.ParseFloat(s.HighPrice, 64)
	low, _ := strconv.ParseFloat(s.LowPrice, 64)
	changePct, _ := strconv.ParseFloat(s.PriceChangePercent, 64)
	quoteVolume, _ := strconv.ParseFloat(s.QuoteVolume, 64)

	return &Ticker{
		Symbol:         s.Symbol,
		Last:           last,
		Open:           open,
		High:           high,
		Low:            low,
		ChangeRate24h:  changePct / 100,
		QuoteVolume24h: quoteVolume,
		At:             time.Now(),
	}
}

func validateOrderRequest(req PlaceOrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrUpstreamRejected)
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return fmt.Errorf("%w: invalid order side %q", ErrUpstreamRejected, req.Side)
	}
	if req.Type == OrderTypeLimit && req.Price <= 0 {
		return fmt.Errorf("%w: limit orders require a positive price", ErrUpstreamRejected)
	}
	if req.Quantity <= 0 && req.Notional <= 0 {
		return fmt.Errorf("%w: order requires a positive quantity or notional", ErrUpstreamRejected)
	}
	return nil
}

// classifyVenueError maps an order-placement failure onto the error
// taxonomy. A parsed API error means the venue answered and refused, so it
// counts as a rejection unless the code is a known transient one; anything
// without an API error is a transport fault.
func classifyVenueError(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return ErrUpstreamUnavailable
	}
	switch apiErr.Code {
	case -1001, -1003, -1021: // internal error, throttled, recvWindow skew
		return ErrUpstreamUnavailable
	case -2010:
		if strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
			return ErrInsufficientFunds
		}
		return ErrUpstreamRejected
	}
	return ErrUpstreamRejected
}
