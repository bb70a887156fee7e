// Package notify defines the structured notification intents the engine
// emits on terminal execution outcomes, plus sink implementations. Delivery
// UX (chat formatting, dashboards) is the consuming side's concern.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Level classifies an alert's urgency.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is a structured notification intent.
type Alert struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`

	// ManualReview marks outcomes that leave live financial exposure and
	// require operator intervention (a partially placed arbitrage). Consuming
	// surfaces must render these distinctly from plain successes/failures.
	ManualReview bool `json:"manual_review,omitempty"`

	// Fields carries outcome-specific detail (profit, leg counts, reasons).
	Fields map[string]any `json:"fields,omitempty"`
}

// Notifier delivers alerts. Implementations must be safe for concurrent use.
type Notifier interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the engine log. It is the default sink and
// the fallback when no external sink is configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

// SendAlert logs the alert at a level matching its urgency. It never fails.
func (n *LogNotifier) SendAlert(_ context.Context, alert Alert) error {
	fields := []zap.Field{
		zap.String("source", alert.Source),
		zap.Bool("manual_review", alert.ManualReview),
		zap.Any("fields", alert.Fields),
	}
	switch alert.Level {
	case LevelCritical:
		n.log.Error(alert.Message, fields...)
	case LevelWarning:
		n.log.Warn(alert.Message, fields...)
	default:
		n.log.Info(alert.Message, fields...)
	}
	return nil
}

// Fanout delivers each alert to every configured sink. Sink errors are
// logged and do not block the other sinks; alerting must never take down
// the execution path.
type Fanout struct {
	sinks []Notifier
	log   *zap.Logger
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(log *zap.Logger, sinks ...Notifier) *Fanout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fanout{sinks: sinks, log: log}
}

// SendAlert forwards to all sinks, returning nil always.
func (f *Fanout) SendAlert(ctx context.Context, alert Alert) error {
	for _, sink := range f.sinks {
		if err := sink.SendAlert(ctx, alert); err != nil {
			f.log.Warn("alert sink failed", zap.Error(err))
		}
	}
	return nil
}
