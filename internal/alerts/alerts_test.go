package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	alerts []Alert
	err    error
}

func (c *captureAlerter) Send(_ context.Context, alert Alert) error {
	c.alerts = append(c.alerts, alert)
	return c.err
}

func TestManagerFansOutToAllChannels(t *testing.T) {
	a, b := &captureAlerter{}, &captureAlerter{}
	manager := NewManager(zerolog.Nop(), a, b)

	err := manager.SendWarning(context.Background(), "rate limit", "upstream throttling", nil)
	require.NoError(t, err)

	require.Len(t, a.alerts, 1)
	require.Len(t, b.alerts, 1)
	assert.Equal(t, SeverityWarning, a.alerts[0].Severity)
	assert.False(t, a.alerts[0].Timestamp.IsZero())
}

func TestManagerContinuesPastFailingChannel(t *testing.T) {
	failing := &captureAlerter{err: errors.New("channel down")}
	healthy := &captureAlerter{}
	manager := NewManager(zerolog.Nop(), failing, healthy)

	err := manager.SendCritical(context.Background(), "position disappeared", "BTCUSDT missing on exchange", map[string]interface{}{
		"symbol": "BTCUSDT",
	})
	assert.Error(t, err)
	assert.Len(t, healthy.alerts, 1, "healthy channel still receives the alert")
}

func TestLogAlerterNeverFails(t *testing.T) {
	alerter := NewLogAlerter(zerolog.Nop())

	err := alerter.Send(context.Background(), Alert{
		Title:    "daily summary",
		Message:  "pnl -1.2%",
		Severity: SeverityInfo,
		Metadata: map[string]interface{}{"pnl_pct": -0.012},
	})
	assert.NoError(t, err)
}
