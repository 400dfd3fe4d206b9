package service

import (
	"context"
	"log/slog"

	"github.com/shiftlyhq/backend/internal/api/domain"
)

// PaymentService is the read-and-retry surface over the settlement state.
// Mutation stays in the engine; this service only adds party authorization.
type PaymentService struct {
	payments   PaymentStore
	settlement *SettlementEngine
	logger     *slog.Logger
}

// NewPaymentService builds the service.
func NewPaymentService(payments PaymentStore, settlement *SettlementEngine, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		payments:   payments,
		settlement: settlement,
		logger:     logger,
	}
}

// GetTransaction returns the transaction when the actor is a party to it.
func (s *PaymentService) GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (*domain.Transaction, error) {
	txn, err := s.payments.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.BusinessID != actor.ID && txn.WorkerID != actor.ID {
		return nil, domain.NewUnauthorized("transaction %s does not involve user %s", transactionID, actor.ID)
	}
	return txn, nil
}

// RetryPayout re-runs the transfer for a failed payout. Only the worker the
// payout pays or the business that funded it may trigger a retry.
func (s *PaymentService) RetryPayout(ctx context.Context, actor domain.Actor, payoutID string) (*domain.Payout, error) {
	payout, err := s.payments.GetPayoutByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	if payout.WorkerID != actor.ID {
		txn, err := s.payments.GetTransactionByID(ctx, payout.TransactionID)
		if err != nil {
			return nil, err
		}
		if txn.BusinessID != actor.ID {
			return nil, domain.NewUnauthorized("payout %s does not involve user %s", payoutID, actor.ID)
		}
	}

	if err := s.settlement.RetryPayout(ctx, payoutID); err != nil {
		return nil, err
	}

	s.logger.Info("payout retried",
		slog.String("payout_id", payoutID),
		slog.String("requested_by", actor.ID),
	)

	return s.payments.GetPayoutByID(ctx, payoutID)
}
