// Package psp abstracts the external payment service provider. The
// settlement engine is written against the Gateway interface only; the
// concrete adapter (mock or Stripe-style) is chosen at construction time
// from configuration.
package psp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shiftlyhq/backend/internal/config"
)

// ErrInvalidSignature is returned by VerifyWebhook when the payload cannot
// be authenticated. No event is processed in that case.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// HoldResult is the outcome of reserving funds.
type HoldResult struct {
	IntentID     string
	ClientSecret string
	Status       string
}

// CaptureResult is the outcome of charging a previously held amount.
// Provider-side declines set Success=false with ErrorMessage; only
// transport or configuration problems surface as an error.
type CaptureResult struct {
	Success      bool
	ChargeID     string
	Status       string
	ErrorMessage string
}

// RefundResult is the outcome of returning held funds to the payer.
type RefundResult struct {
	Success      bool
	RefundID     string
	ErrorMessage string
}

// TransferResult is the outcome of moving captured funds to a worker's
// destination account.
type TransferResult struct {
	Success      bool
	TransferID   string
	Status       string
	ErrorMessage string
}

// Event is a parsed provider webhook event.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object map[string]any `json:"object"`
	} `json:"data"`
}

// ObjectID returns the id of the event's payload object, if present.
func (e *Event) ObjectID() string {
	id, _ := e.Data.Object["id"].(string)
	return id
}

// ObjectString returns a string field from the event's payload object.
func (e *Event) ObjectString(key string) string {
	s, _ := e.Data.Object[key].(string)
	return s
}

// Gateway is the capability interface over a payment provider. Amounts are
// minor currency units. A zero capture amount means "capture the full held
// amount".
type Gateway interface {
	CreateHold(ctx context.Context, amount int64, currency string, metadata map[string]string) (HoldResult, error)
	Capture(ctx context.Context, intentID string, amount int64) (CaptureResult, error)
	Refund(ctx context.Context, intentID, reason string) (RefundResult, error)
	Transfer(ctx context.Context, amount int64, destination string, metadata map[string]string) (TransferResult, error)
	VerifyWebhook(payload []byte, signature string) (Event, error)
}

// NewGateway builds the configured Gateway implementation.
func NewGateway(cfg *config.PaymentsConfig, logger *slog.Logger) (Gateway, error) {
	switch cfg.Provider {
	case "", "mock":
		return NewMockGateway(cfg.MockWebhookSecret, logger), nil
	case "stripe":
		return NewStripeGateway(&StripeConfig{
			APIKey:        cfg.StripeAPIKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			BaseURL:       cfg.StripeBaseURL,
			Timeout:       cfg.StripeTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown psp provider: %q", cfg.Provider)
	}
}

// parseEvent decodes a raw webhook body into an Event.
func parseEvent(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	return event, nil
}
