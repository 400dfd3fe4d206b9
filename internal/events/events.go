// Package events defines the messages exchanged between the API service
// and the worker service over RabbitMQ, and the publisher that emits them.
// Everything published here is advisory: a publish failure is logged by the
// caller and never fails the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/shared/rabbitmq"
)

// Envelope kinds routed by the worker.
const (
	KindNotification = "notification"
	KindFraudSignal  = "fraud_signal"
)

// Notification kinds delivered to users.
const (
	NotificationApplicationReceived  = "application_received"
	NotificationApplicationAccepted  = "application_accepted"
	NotificationApplicationRejected  = "application_rejected"
	NotificationApplicationWithdrawn = "application_withdrawn"
	NotificationWorkerCheckedIn      = "worker_checked_in"
	NotificationWorkerCheckedOut     = "worker_checked_out"
	NotificationJobCancelled         = "job_cancelled"
	NotificationPaymentReleased      = "payment_released"
	NotificationPayoutCompleted      = "payout_completed"
	NotificationPayoutFailed         = "payout_failed"
)

// Fraud signal names consumed by the velocity processor.
const (
	SignalJobPosted            = "job_posted"
	SignalApplicationSubmitted = "application_submitted"
	SignalApplicationAccepted  = "application_accepted"
	SignalJobCompletedPair     = "job_completed_pair"
)

// Envelope is the wire frame for every message on the queue.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Notification asks the worker to deliver a message to one user.
type Notification struct {
	UserID  string          `json:"user_id"`
	Kind    string          `json:"kind"`
	Payload domain.Metadata `json:"payload,omitempty"`
}

// FraudSignal reports one countable action for velocity analysis.
type FraudSignal struct {
	UserID     string          `json:"user_id"`
	Signal     string          `json:"signal"`
	RelatedID  string          `json:"related_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    domain.Metadata `json:"payload,omitempty"`
}

// Publisher emits envelopes to the worker queue.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewPublisher wraps a connected RabbitMQ client.
func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// Notify publishes a user notification.
func (p *Publisher) Notify(ctx context.Context, notification Notification) error {
	return p.publish(ctx, KindNotification, notification)
}

// Record publishes a fraud signal.
func (p *Publisher) Record(ctx context.Context, signal FraudSignal) error {
	if signal.OccurredAt.IsZero() {
		signal.OccurredAt = time.Now().UTC()
	}
	return p.publish(ctx, KindFraudSignal, signal)
}

func (p *Publisher) publish(ctx context.Context, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	envelope := Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}

	frame, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := p.client.PublishWithRetry(ctx, frame, "application/json"); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}

	p.logger.Debug("event published",
		slog.String("kind", kind),
		slog.String("event_id", envelope.ID),
	)

	return nil
}
