package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/backend/internal/api/domain"
)

func TestPaymentService_GetTransaction(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, app := seedAcceptedApplication(e)
	escrow, err := e.payments.GetEscrowByApplication(ctx, app.ID)
	require.NoError(t, err)

	t.Run("business party sees it", func(t *testing.T) {
		txn, err := e.paymentSvc.GetTransaction(ctx, business, escrow.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusHeld, txn.Status)
	})

	t.Run("worker party sees it", func(t *testing.T) {
		txn, err := e.paymentSvc.GetTransaction(ctx, worker, escrow.TransactionID)
		require.NoError(t, err)
		assert.Equal(t, worker.ID, txn.WorkerID)
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		stranger := domain.Actor{ID: "wrk-9", Type: "worker", Verified: true}
		_, err := e.paymentSvc.GetTransaction(ctx, stranger, escrow.TransactionID)
		assert.True(t, domain.IsUnauthorized(err))
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := e.paymentSvc.GetTransaction(ctx, business, "txn-missing")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})
}

func TestPaymentService_RetryPayout(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	stub := &stubGateway{MockGateway: e.gateway, transferErr: errors.New("network timeout")}
	e.useStubGateway(stub)

	_, app := seedAcceptedApplication(e)
	seedCheckedOut(e, app.ID, 5)
	require.NoError(t, e.settlement.ReleaseEscrowAfterCheckout(ctx, app.ID))

	var payoutID string
	for id := range e.payments.payouts {
		payoutID = id
	}

	t.Run("stranger is rejected", func(t *testing.T) {
		stranger := domain.Actor{ID: "biz-9", Type: "business", Verified: true}
		_, err := e.paymentSvc.RetryPayout(ctx, stranger, payoutID)
		assert.True(t, domain.IsUnauthorized(err))
	})

	t.Run("worker retries own payout", func(t *testing.T) {
		stub.transferErr = nil
		payout, err := e.paymentSvc.RetryPayout(ctx, worker, payoutID)
		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusProcessing, payout.Status)
		assert.NotEmpty(t, payout.TransferID)
	})

	t.Run("processing payout cannot retry", func(t *testing.T) {
		_, err := e.paymentSvc.RetryPayout(ctx, business, payoutID)
		assert.True(t, domain.IsConflict(err))
	})
}
