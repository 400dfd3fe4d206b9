package worker

import (
	"context"
	"log/slog"

	"github.com/shiftlyhq/backend/internal/events"
)

// NotificationProcessor delivers user notifications. Delivery here is a
// structured log record; the push and email channels hang off the same
// entry point once their providers are wired up.
type NotificationProcessor struct {
	logger *slog.Logger
}

// NewNotificationProcessor creates a new NotificationProcessor instance
func NewNotificationProcessor(logger *slog.Logger) *NotificationProcessor {
	return &NotificationProcessor{logger: logger}
}

// Process delivers one notification.
func (p *NotificationProcessor) Process(ctx context.Context, notification events.Notification) error {
	if notification.UserID == "" || notification.Kind == "" {
		p.logger.Warn("Dropping notification without user or kind",
			slog.String("user_id", notification.UserID),
			slog.String("kind", notification.Kind),
		)
		return nil
	}

	p.logger.Info("Notification delivered",
		slog.String("user_id", notification.UserID),
		slog.String("kind", notification.Kind),
		slog.Any("payload", notification.Payload),
	)

	return nil
}
