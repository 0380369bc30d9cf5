package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSAlerter publishes alerts as JSON to a per-severity NATS subject so
// external consumers (dashboards, notifiers) can subscribe selectively.
type NATSAlerter struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// DefaultSubjectPrefix is the root of the alert subject hierarchy.
const DefaultSubjectPrefix = "coinforge.alerts"

// NewNATSAlerter connects to NATS and returns an alerter publishing under
// the given subject prefix (empty means DefaultSubjectPrefix).
func NewNATSAlerter(url, subjectPrefix string, logger zerolog.Logger) (*NATSAlerter, error) {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}

	conn, err := nats.Connect(url,
		nats.Name("coinforge-alerts"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSAlerter{
		conn:    conn,
		subject: subjectPrefix,
		logger:  logger.With().Str("component", "nats_alerter").Logger(),
	}, nil
}

func (n *NATSAlerter) Send(_ context.Context, alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	subject := n.subject + "." + strings.ToLower(string(alert.Severity))
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Close drains the connection.
func (n *NATSAlerter) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}
