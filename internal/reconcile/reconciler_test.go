package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/coinforge/internal/alerts"
	"github.com/coinforge/coinforge/internal/exchange"
	"github.com/coinforge/coinforge/internal/executor"
	"github.com/coinforge/coinforge/internal/position"
)

type stubVenue struct {
	positions []exchange.PositionSnapshot
	err       error
}

func (s *stubVenue) GetCandles(context.Context, string, string, int) ([]exchange.Candle, error) {
	return nil, nil
}
func (s *stubVenue) GetTicker(context.Context, string) (*exchange.Ticker, error) { return nil, nil }
func (s *stubVenue) GetTickers(context.Context, []string) (map[string]exchange.Ticker, error) {
	return nil, nil
}
func (s *stubVenue) GetOrderbook(context.Context, string, int) (*exchange.Orderbook, error) {
	return nil, nil
}
func (s *stubVenue) GetBalances(context.Context) (*exchange.BalancesSnapshot, error) {
	return nil, nil
}
func (s *stubVenue) PlaceOrder(context.Context, exchange.PlaceOrderRequest) (*exchange.OrderResult, error) {
	return nil, nil
}
func (s *stubVenue) CancelAll(context.Context, string) error { return nil }
func (s *stubVenue) OpenPositions(context.Context) ([]exchange.PositionSnapshot, error) {
	return s.positions, s.err
}

type stubCloser struct {
	closed []string
	err    error
}

func (s *stubCloser) Close(_ context.Context, symbol string, quantity float64, _ exchange.PositionSide) (*executor.Fill, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.closed = append(s.closed, symbol)
	return &executor.Fill{Symbol: symbol, Quantity: quantity}, nil
}

type captureAlerter struct {
	alerts []alerts.Alert
}

func (c *captureAlerter) Send(_ context.Context, alert alerts.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

func newTestReconciler(t *testing.T, venue *stubVenue) (*Reconciler, *position.Tracker, *stubCloser, *captureAlerter) {
	t.Helper()
	tracker, err := position.NewTracker(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	capture := &captureAlerter{}
	closer := &stubCloser{}
	r := New(venue, tracker, closer, alerts.NewManager(zerolog.Nop(), capture), zerolog.Nop())
	return r, tracker, closer, capture
}

func openLong(t *testing.T, tracker *position.Tracker, symbol string) {
	t.Helper()
	require.NoError(t, tracker.Open(&position.Position{
		Symbol:     symbol,
		Side:       exchange.PositionLong,
		EntryPrice: 100,
		Volume:     1,
		EntryTime:  time.Now().UTC(),
	}))
}

func TestMatchingPositionsAreLeftAlone(t *testing.T) {
	venue := &stubVenue{positions: []exchange.PositionSnapshot{
		{Symbol: "BTCUSDT", Side: exchange.PositionLong, Quantity: 1},
	}}
	r, tracker, closer, capture := newTestReconciler(t, venue)
	openLong(t, tracker, "BTCUSDT")

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, tracker.Count())
	assert.Empty(t, closer.closed)
	assert.Empty(t, capture.alerts)
}

func TestDisappearedPositionIsEvicted(t *testing.T) {
	venue := &stubVenue{}
	r, tracker, closer, capture := newTestReconciler(t, venue)
	openLong(t, tracker, "BTCUSDT")

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 0, tracker.Count())
	assert.Empty(t, closer.closed)
	require.Len(t, capture.alerts, 1)
	assert.Equal(t, alerts.SeverityCritical, capture.alerts[0].Severity)
	assert.Equal(t, "position disappeared", capture.alerts[0].Title)
}

func TestUnmanagedPositionIsClosed(t *testing.T) {
	venue := &stubVenue{positions: []exchange.PositionSnapshot{
		{Symbol: "ETHUSDT", Side: exchange.PositionLong, Quantity: 2.5},
	}}
	r, tracker, closer, capture := newTestReconciler(t, venue)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 0, tracker.Count())
	assert.Equal(t, []string{"ETHUSDT"}, closer.closed)
	require.Len(t, capture.alerts, 1)
	assert.Equal(t, "unmanaged position closed", capture.alerts[0].Title)
}

func TestSideMismatchEvictsAndCloses(t *testing.T) {
	venue := &stubVenue{positions: []exchange.PositionSnapshot{
		{Symbol: "BTCUSDT", Side: exchange.PositionShort, Quantity: 1},
	}}
	r, tracker, closer, capture := newTestReconciler(t, venue)
	openLong(t, tracker, "BTCUSDT")

	require.NoError(t, r.Run(context.Background()))
	// The tracked long is evicted; the exchange short is unmanaged and closed
	assert.Equal(t, 0, tracker.Count())
	assert.Equal(t, []string{"BTCUSDT"}, closer.closed)
	assert.Len(t, capture.alerts, 2)
}

func TestVenueErrorPropagates(t *testing.T) {
	venue := &stubVenue{err: errors.New("timeout")}
	r, tracker, _, _ := newTestReconciler(t, venue)
	openLong(t, tracker, "BTCUSDT")

	assert.Error(t, r.Run(context.Background()))
	// Nothing is evicted on a fetch failure
	assert.Equal(t, 1, tracker.Count())
}

func TestCloseFailureKeepsGoing(t *testing.T) {
	venue := &stubVenue{positions: []exchange.PositionSnapshot{
		{Symbol: "ETHUSDT", Side: exchange.PositionLong, Quantity: 2.5},
	}}
	r, _, closer, capture := newTestReconciler(t, venue)
	closer.err = errors.New("rejected")

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, capture.alerts, 1)
	assert.Equal(t, "unmanaged close failed", capture.alerts[0].Title)
}
