package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/psp"
)

// Provider event types routed by the webhook processor.
const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventTransferPaid    = "transfer.paid"
	eventTransferFailed  = "transfer.failed"
)

// WebhookService authenticates and routes provider webhooks. Events that
// reference nothing we know, and event types we do not handle, are logged
// and discarded: the provider keeps retrying a non-success response, and a
// replayed or foreign event must not turn into an endless retry loop.
type WebhookService struct {
	gateway    psp.Gateway
	settlement *SettlementEngine
	logger     *slog.Logger
}

// NewWebhookService builds the service.
func NewWebhookService(gateway psp.Gateway, settlement *SettlementEngine, logger *slog.Logger) *WebhookService {
	return &WebhookService{
		gateway:    gateway,
		settlement: settlement,
		logger:     logger,
	}
}

// Process verifies the payload signature and applies the event. It returns
// ErrInvalidSignature for unauthenticated payloads; everything else that
// cannot be applied cleanly is swallowed after logging.
func (s *WebhookService) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	s.logger.Info("webhook received",
		slog.String("event_id", event.ID),
		slog.String("event_type", event.Type),
	)

	switch event.Type {
	case eventIntentSucceeded:
		err = s.settlement.ConfirmHold(ctx, event.ObjectID())
	case eventIntentFailed:
		err = s.settlement.FailHold(ctx, event.ObjectID())
	case eventTransferPaid:
		err = s.settlement.CompletePayout(ctx, event.ObjectID())
	case eventTransferFailed:
		reason := event.ObjectString("failure_message")
		if reason == "" {
			reason = "transfer failed"
		}
		err = s.settlement.FailPayout(ctx, event.ObjectID(), reason)
	default:
		s.logger.Info("ignoring unhandled webhook event type",
			slog.String("event_type", event.Type),
		)
		return nil
	}

	if err != nil {
		if isUnknownEntity(err) {
			s.logger.Warn("webhook references unknown entity, discarding",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.Type),
				slog.String("object_id", event.ObjectID()),
			)
			return nil
		}
		return err
	}

	return nil
}

func isUnknownEntity(err error) bool {
	return errors.Is(err, domain.ErrTransactionNotFound) ||
		errors.Is(err, domain.ErrEscrowNotFound) ||
		errors.Is(err, domain.ErrPayoutNotFound)
}
