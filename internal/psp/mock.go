package psp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// intentState tracks a mock payment intent through its lifecycle.
type intentState struct {
	amount   int64
	currency string
	status   string
	chargeID string
	metadata map[string]string
}

// MockGateway is an in-memory Gateway for development and tests. Each
// instance owns its state; two gateways never observe each other's intents
// or transfers.
type MockGateway struct {
	mu            sync.Mutex
	intents       map[string]*intentState
	transfers     map[string]int64
	webhookSecret string
	logger        *slog.Logger
}

// NewMockGateway builds an empty mock gateway. If webhookSecret is empty,
// VerifyWebhook accepts any signature.
func NewMockGateway(webhookSecret string, logger *slog.Logger) *MockGateway {
	return &MockGateway{
		intents:       make(map[string]*intentState),
		transfers:     make(map[string]int64),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (g *MockGateway) CreateHold(_ context.Context, amount int64, currency string, metadata map[string]string) (HoldResult, error) {
	if amount <= 0 {
		return HoldResult{}, fmt.Errorf("hold amount must be positive, got %d", amount)
	}

	intentID := "pi_" + uuid.NewString()

	g.mu.Lock()
	g.intents[intentID] = &intentState{
		amount:   amount,
		currency: currency,
		status:   "requires_capture",
		metadata: metadata,
	}
	g.mu.Unlock()

	g.logger.Info("mock hold created",
		slog.String("intent_id", intentID),
		slog.Int64("amount", amount),
		slog.String("currency", currency),
	)

	return HoldResult{
		IntentID:     intentID,
		ClientSecret: intentID + "_secret_" + uuid.NewString(),
		Status:       "requires_capture",
	}, nil
}

func (g *MockGateway) Capture(_ context.Context, intentID string, amount int64) (CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.intents[intentID]
	if !ok {
		return CaptureResult{Success: false, ErrorMessage: "no such payment intent: " + intentID}, nil
	}
	if state.status != "requires_capture" {
		return CaptureResult{Success: false, ErrorMessage: "intent not capturable in status " + state.status}, nil
	}
	if amount > state.amount {
		return CaptureResult{Success: false, ErrorMessage: fmt.Sprintf("capture amount %d exceeds held amount %d", amount, state.amount)}, nil
	}

	state.status = "succeeded"
	state.chargeID = "ch_" + uuid.NewString()

	return CaptureResult{
		Success:  true,
		ChargeID: state.chargeID,
		Status:   "succeeded",
	}, nil
}

func (g *MockGateway) Refund(_ context.Context, intentID, reason string) (RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, ok := g.intents[intentID]
	if !ok {
		return RefundResult{Success: false, ErrorMessage: "no such payment intent: " + intentID}, nil
	}
	if state.status == "refunded" {
		return RefundResult{Success: false, ErrorMessage: "intent already refunded"}, nil
	}

	state.status = "refunded"

	g.logger.Info("mock refund issued",
		slog.String("intent_id", intentID),
		slog.String("reason", reason),
	)

	return RefundResult{
		Success:  true,
		RefundID: "re_" + uuid.NewString(),
	}, nil
}

func (g *MockGateway) Transfer(_ context.Context, amount int64, destination string, metadata map[string]string) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{Success: false, ErrorMessage: fmt.Sprintf("transfer amount must be positive, got %d", amount)}, nil
	}
	if destination == "" {
		return TransferResult{Success: false, ErrorMessage: "transfer destination is required"}, nil
	}

	transferID := "tr_" + uuid.NewString()

	g.mu.Lock()
	g.transfers[transferID] = amount
	g.mu.Unlock()

	g.logger.Info("mock transfer created",
		slog.String("transfer_id", transferID),
		slog.Int64("amount", amount),
		slog.String("destination", destination),
	)

	return TransferResult{
		Success:    true,
		TransferID: transferID,
		Status:     "paid",
	}, nil
}

// VerifyWebhook checks the payload against the configured secret using
// HMAC-SHA256 over the raw body. With no secret configured the check is
// skipped, which keeps local development friction-free.
func (g *MockGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	if g.webhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(g.webhookSecret))
		mac.Write(payload)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return Event{}, ErrInvalidSignature
		}
	}
	return parseEvent(payload)
}

// IntentStatus reports the current status of an intent. Useful in tests.
func (g *MockGateway) IntentStatus(intentID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.intents[intentID]
	if !ok {
		return "", false
	}
	return state.status, true
}

// SignPayload computes the signature VerifyWebhook expects for payload.
func (g *MockGateway) SignPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
