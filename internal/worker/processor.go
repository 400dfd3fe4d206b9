package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shiftlyhq/backend/internal/events"
)

// Processor routes decoded envelopes to the per-kind handlers.
type Processor struct {
	notifications *NotificationProcessor
	fraud         *FraudDetector
	logger        *slog.Logger
}

// NewProcessor creates a new Processor instance
func NewProcessor(notifications *NotificationProcessor, fraud *FraudDetector, logger *slog.Logger) *Processor {
	return &Processor{
		notifications: notifications,
		fraud:         fraud,
		logger:        logger,
	}
}

// Process handles one envelope. Unknown kinds are dropped after logging so
// they do not loop through the queue forever.
func (p *Processor) Process(ctx context.Context, envelope events.Envelope) error {
	switch envelope.Kind {
	case events.KindNotification:
		var notification events.Notification
		if err := json.Unmarshal(envelope.Payload, &notification); err != nil {
			return fmt.Errorf("failed to parse notification payload: %w", err)
		}
		return p.notifications.Process(ctx, notification)

	case events.KindFraudSignal:
		var signal events.FraudSignal
		if err := json.Unmarshal(envelope.Payload, &signal); err != nil {
			return fmt.Errorf("failed to parse fraud signal payload: %w", err)
		}
		return p.fraud.Process(ctx, signal)

	default:
		p.logger.Warn("Unknown event kind, dropping",
			slog.String("event_id", envelope.ID),
			slog.String("kind", envelope.Kind),
		)
		return nil
	}
}
