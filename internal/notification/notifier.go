// Package notification delivers operator alerts (Telegram, webhooks, log)
// for trading events such as skipped entries, missing indicator data and
// persistence failures.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// Infof, Warnf and Criticalf build alerts with a formatted message.
func Infof(title, format string, args ...any) Alert {
	return Alert{Level: AlertInfo, Title: title, Message: fmt.Sprintf(format, args...)}
}

func Warnf(title, format string, args ...any) Alert {
	return Alert{Level: AlertWarning, Title: title, Message: fmt.Sprintf(format, args...)}
}

func Criticalf(title, format string, args ...any) Alert {
	return Alert{Level: AlertCritical, Title: title, Message: fmt.Sprintf(format, args...)}
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, "alert", "title", alert.Title, "message", alert.Message, "symbol", alert.Symbol)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs error
	for _, n := range m {
		errs = multierr.Append(errs, n.Send(ctx, alert))
	}
	return errs
}

// LevelFilter drops alerts below Min before passing them to Next.
type LevelFilter struct {
	Min  AlertLevel
	Next Notifier
}

func (f LevelFilter) Send(ctx context.Context, alert Alert) error {
	if rank(alert.Level) < rank(f.Min) {
		return nil
	}
	return f.Next.Send(ctx, alert)
}

func rank(l AlertLevel) int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	default:
		return 0
	}
}
