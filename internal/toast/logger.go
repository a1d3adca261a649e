package toast

import (
	"context"
	"log/slog"
)

// Logger writes toasts to a structured log. It is used when no desktop
// notification server is reachable. Actions are never activated.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a log-only toaster.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Show logs the toast at Info.
func (l *Logger) Show(ctx context.Context, message string, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if message == "" {
		return ErrEmptyMessage
	}

	attrs := []any{
		"message", message,
		"variant", opts.Variant,
		"duration", opts.Duration,
	}
	if opts.Description != "" {
		attrs = append(attrs, "description", opts.Description)
	}
	if opts.Action != nil {
		attrs = append(attrs, "action", opts.Action.Label)
	}
	l.logger.Info("toast", attrs...)
	return nil
}
