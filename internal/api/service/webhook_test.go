package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/psp"
)

func webhookPayload(eventType, objectID string, extra string) []byte {
	if extra != "" {
		extra = "," + extra
	}
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"data":{"object":{"id":%q%s}}}`, eventType, objectID, extra))
}

func TestWebhookService_RejectsBadSignature(t *testing.T) {
	e := newEnv()
	logger := e.settlement.logger
	signedGateway := psp.NewMockGateway("whsec_test", logger)
	svc := NewWebhookService(signedGateway, e.settlement, logger)

	payload := webhookPayload("transfer.paid", "tr_1", "")
	err := svc.Process(context.Background(), payload, "bogus")
	assert.ErrorIs(t, err, psp.ErrInvalidSignature)
}

func TestWebhookService_TransferPaid(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, app := seedAcceptedApplication(e)
	seedCheckedOut(e, app.ID, 5)
	require.NoError(t, e.settlement.ReleaseEscrowAfterCheckout(ctx, app.ID))

	var payout *domain.Payout
	for _, p := range e.payments.payouts {
		payout = p
	}
	require.NotNil(t, payout)

	err := e.webhookSvc.Process(ctx, webhookPayload("transfer.paid", payout.TransferID, ""), "any")
	require.NoError(t, err)

	updated, err := e.payments.GetPayoutByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusCompleted, updated.Status)

	txn, err := e.payments.GetTransactionByID(ctx, payout.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
}

func TestWebhookService_TransferFailed(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, app := seedAcceptedApplication(e)
	seedCheckedOut(e, app.ID, 5)
	require.NoError(t, e.settlement.ReleaseEscrowAfterCheckout(ctx, app.ID))

	var payout *domain.Payout
	for _, p := range e.payments.payouts {
		payout = p
	}
	require.NotNil(t, payout)

	payload := webhookPayload("transfer.failed", payout.TransferID, `"failure_message":"account closed"`)
	require.NoError(t, e.webhookSvc.Process(ctx, payload, "any"))

	updated, err := e.payments.GetPayoutByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusFailed, updated.Status)
	assert.Equal(t, "account closed", updated.FailureReason)
}

func TestWebhookService_IntentFailedRefundsEscrow(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, app := seedAcceptedApplication(e)

	escrow, err := e.payments.GetEscrowByApplication(ctx, app.ID)
	require.NoError(t, err)
	txn, err := e.payments.GetTransactionByID(ctx, escrow.TransactionID)
	require.NoError(t, err)

	payload := webhookPayload("payment_intent.payment_failed", txn.PaymentIntentID, "")
	require.NoError(t, e.webhookSvc.Process(ctx, payload, "any"))

	txn, err = e.payments.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)

	escrow, err = e.payments.GetEscrowByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusRefunded, escrow.Status)
}

func TestWebhookService_IntentSucceededIsIdempotent(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, app := seedAcceptedApplication(e)

	escrow, err := e.payments.GetEscrowByApplication(ctx, app.ID)
	require.NoError(t, err)
	txn, err := e.payments.GetTransactionByID(ctx, escrow.TransactionID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusHeld, txn.Status)

	// The hold was confirmed synchronously; the webhook replay changes
	// nothing.
	payload := webhookPayload("payment_intent.succeeded", txn.PaymentIntentID, "")
	require.NoError(t, e.webhookSvc.Process(ctx, payload, "any"))

	txn, err = e.payments.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusHeld, txn.Status)
}

func TestWebhookService_UnknownEntityIsDiscarded(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	tests := []struct {
		name    string
		payload []byte
	}{
		{"unknown transfer", webhookPayload("transfer.paid", "tr_ghost", "")},
		{"unknown intent", webhookPayload("payment_intent.succeeded", "pi_ghost", "")},
		{"unknown failed intent", webhookPayload("payment_intent.payment_failed", "pi_ghost", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, e.webhookSvc.Process(ctx, tt.payload, "any"))
		})
	}
}

func TestWebhookService_UnhandledEventTypeIsIgnored(t *testing.T) {
	e := newEnv()

	payload := webhookPayload("customer.created", "cus_1", "")
	assert.NoError(t, e.webhookSvc.Process(context.Background(), payload, "any"))
}
