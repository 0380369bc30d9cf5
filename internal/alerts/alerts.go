// Package alerts fans operational events out to the configured channels.
package alerts

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one operational event worth telling a human about.
type Alert struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Alerter delivers alerts over one channel.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans alerts out to all configured channels. A failing channel
// never blocks the others.
type Manager struct {
	alerters []Alerter
	logger   zerolog.Logger
}

// NewManager creates an alert manager.
func NewManager(logger zerolog.Logger, alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters, logger: logger}
}

// Send delivers an alert to every channel and returns the last error.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			m.logger.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// SendCritical sends a critical alert.
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityCritical, Metadata: metadata})
}

// SendWarning sends a warning alert.
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityWarning, Metadata: metadata})
}

// SendInfo sends an informational alert.
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityInfo, Metadata: metadata})
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct {
	logger zerolog.Logger
}

// NewLogAlerter creates a log-based alerter.
func NewLogAlerter(logger zerolog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Send(_ context.Context, alert Alert) error {
	var event *zerolog.Event
	switch alert.Severity {
	case SeverityCritical:
		event = l.logger.Error()
	case SeverityWarning:
		event = l.logger.Warn()
	default:
		event = l.logger.Info()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg("ALERT: " + alert.Message)

	return nil
}
