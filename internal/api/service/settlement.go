package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/events"
	"github.com/shiftlyhq/backend/internal/psp"
)

// SettlementConfig carries the money parameters of the engine.
type SettlementConfig struct {
	Currency         string
	PlatformFeeRate  float64
	AutoReleaseHours int
	MaxPayoutRetries int
}

// SettlementEngine owns the escrow lifecycle: hold on accept, capture and
// payout after checkout, refund on cancellation or withdrawal. Every
// collaborator is injected at construction.
type SettlementEngine struct {
	payments PaymentStore
	checkins CheckInStore
	jobs     JobStore
	gateway  psp.Gateway
	accounts AccountResolver
	notifier Notifier
	logger   *slog.Logger
	config   SettlementConfig
}

// NewSettlementEngine builds the engine.
func NewSettlementEngine(
	payments PaymentStore,
	checkins CheckInStore,
	jobs JobStore,
	gateway psp.Gateway,
	accounts AccountResolver,
	notifier Notifier,
	logger *slog.Logger,
	config SettlementConfig,
) *SettlementEngine {
	return &SettlementEngine{
		payments: payments,
		checkins: checkins,
		jobs:     jobs,
		gateway:  gateway,
		accounts: accounts,
		notifier: notifier,
		logger:   logger,
		config:   config,
	}
}

// escrowIdempotencyKey derives the transaction idempotency key from the
// application id, so retried escrow creation converges on one transaction.
func escrowIdempotencyKey(applicationID string) string {
	return "escrow_create_" + applicationID
}

// CreateEscrowForApplication places a hold for the job's estimated amount
// and records the transaction and escrow. Safe to retry: a concurrent or
// repeated call for the same application returns the already-created
// escrow.
func (e *SettlementEngine) CreateEscrowForApplication(ctx context.Context, job *domain.Job, app *domain.JobApplication) (*domain.Escrow, error) {
	amount, err := job.EstimatedAmount()
	if err != nil {
		return nil, domain.NewValidationError("cannot price job %s: %v", job.ID, err)
	}
	if amount <= 0 {
		return nil, domain.NewValidationError("job %s has a non-positive escrow amount", job.ID)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		BusinessID:     job.BusinessID,
		WorkerID:       app.WorkerID,
		Amount:         amount,
		Status:         domain.TransactionStatusPending,
		IdempotencyKey: escrowIdempotencyKey(app.ID),
		Metadata:       domain.Metadata{"application_id": app.ID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	txn.CalculateFees(e.config.PlatformFeeRate)

	txn, created, err := e.payments.CreateTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}
	if !created {
		// A previous attempt got here first. Return its escrow if it
		// finished; otherwise fall through and finish the lifecycle for
		// the existing transaction.
		escrow, getErr := e.payments.GetEscrowByTransaction(ctx, txn.ID)
		if getErr == nil {
			return escrow, nil
		}
		if !errors.Is(getErr, domain.ErrEscrowNotFound) {
			return nil, getErr
		}
	}

	if txn.PaymentIntentID == "" {
		hold, holdErr := e.gateway.CreateHold(ctx, txn.Amount, e.config.Currency, map[string]string{
			"application_id": app.ID,
			"job_id":         job.ID,
		})
		if holdErr != nil {
			// The transaction stays pending. A later call for the same
			// application reuses it via the idempotency key and resumes
			// from the hold.
			return nil, domain.NewUpstream("create_hold", holdErr)
		}

		if err := e.payments.MarkTransactionHeld(ctx, txn.ID, hold.IntentID); err != nil {
			return nil, err
		}
	}

	escrow := &domain.Escrow{
		ID:               uuid.NewString(),
		TransactionID:    txn.ID,
		ApplicationID:    app.ID,
		HeldAmount:       txn.Amount,
		Status:           domain.EscrowStatusHeld,
		HeldAt:           time.Now().UTC(),
		AutoReleaseHours: e.config.AutoReleaseHours,
	}

	if err := e.payments.CreateEscrow(ctx, escrow); err != nil {
		if domain.IsConflict(err) {
			return e.payments.GetEscrowByApplication(ctx, app.ID)
		}
		return nil, err
	}

	e.logger.Info("escrow created",
		slog.String("escrow_id", escrow.ID),
		slog.String("application_id", app.ID),
		slog.Int64("amount", escrow.HeldAmount),
	)

	return escrow, nil
}

// ReleaseEscrowAfterCheckout settles one application after the worker has
// checked out: recompute the amount from the hours actually worked,
// capture that amount, record the capture, initiate the worker payout,
// and only then mark the escrow released. A transfer failure does not
// fail the release; the payout stays failed and is retried later.
func (e *SettlementEngine) ReleaseEscrowAfterCheckout(ctx context.Context, applicationID string) error {
	checkIn, err := e.checkins.GetCheckInByApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	workedHours, checkedOut := checkIn.WorkedHours()
	if !checkedOut {
		return domain.NewConflict("application %s has not checked out", applicationID)
	}

	escrow, err := e.payments.GetEscrowByApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if escrow.Status != domain.EscrowStatusHeld {
		return domain.NewConflict("escrow for application %s is already %s", applicationID, escrow.Status)
	}

	txn, err := e.payments.GetTransactionByID(ctx, escrow.TransactionID)
	if err != nil {
		return err
	}
	if txn.Status != domain.TransactionStatusHeld {
		return domain.NewInvalidTransition("transaction", string(txn.Status), string(domain.TransactionStatusCaptured))
	}

	job, err := e.jobs.GetJobByID(ctx, txn.JobID)
	if err != nil {
		return err
	}

	// Settle for the time actually worked, not the scheduled estimate
	// the hold was placed for.
	txn.Amount = int64(math.Round(workedHours * float64(job.HourlyRate)))
	txn.CalculateFees(e.config.PlatformFeeRate)
	if err := e.payments.UpdateTransactionAmounts(ctx, txn.ID, txn.Amount, txn.PlatformFee, txn.WorkerPayout); err != nil {
		return err
	}

	capture, err := e.gateway.Capture(ctx, txn.PaymentIntentID, txn.Amount)
	if err != nil {
		return domain.NewUpstream("capture", err)
	}
	if !capture.Success {
		return domain.NewUpstream("capture", fmt.Errorf("%s", capture.ErrorMessage))
	}

	if err := e.payments.TransitionTransaction(ctx, txn.ID, domain.TransactionStatusHeld, domain.TransactionStatusCaptured); err != nil {
		return err
	}

	if err := e.initiatePayout(ctx, txn, 0); err != nil {
		// The capture stands; the payout will be retried by the sweeper.
		e.logger.Error("payout initiation failed after capture",
			slog.String("transaction_id", txn.ID),
			slog.Any("error", err),
		)
	}

	if err := e.payments.ResolveEscrow(ctx, escrow.ID, domain.EscrowStatusReleased); err != nil {
		return err
	}

	e.logger.Info("escrow released",
		slog.String("escrow_id", escrow.ID),
		slog.String("transaction_id", txn.ID),
		slog.Float64("worked_hours", workedHours),
		slog.Int64("amount", txn.Amount),
	)

	e.notify(ctx, events.Notification{
		UserID: txn.WorkerID,
		Kind:   events.NotificationPaymentReleased,
		Payload: domain.Metadata{
			"transaction_id": txn.ID,
			"amount":         txn.WorkerPayout,
		},
	})

	return nil
}

// initiatePayout creates a payout record and requests the provider
// transfer. retryCount seeds the record for payouts re-created by retries.
func (e *SettlementEngine) initiatePayout(ctx context.Context, txn *domain.Transaction, retryCount int) error {
	destination := e.resolveDestination(ctx, txn.WorkerID)

	payout := &domain.Payout{
		ID:                 uuid.NewString(),
		TransactionID:      txn.ID,
		WorkerID:           txn.WorkerID,
		Amount:             txn.WorkerPayout,
		Status:             domain.PayoutStatusPending,
		DestinationAccount: destination,
		RetryCount:         retryCount,
		InitiatedAt:        time.Now().UTC(),
	}

	if err := e.payments.CreatePayout(ctx, payout); err != nil {
		return err
	}

	return e.requestTransfer(ctx, payout)
}

// requestTransfer asks the provider to move the payout amount and records
// the outcome on the payout row.
func (e *SettlementEngine) requestTransfer(ctx context.Context, payout *domain.Payout) error {
	result, err := e.gateway.Transfer(ctx, payout.Amount, payout.DestinationAccount, map[string]string{
		"payout_id":      payout.ID,
		"transaction_id": payout.TransactionID,
	})
	if err != nil {
		if markErr := e.payments.MarkPayoutFailed(ctx, payout.ID, err.Error()); markErr != nil {
			return markErr
		}
		return domain.NewUpstream("transfer", err)
	}
	if !result.Success {
		if markErr := e.payments.MarkPayoutFailed(ctx, payout.ID, result.ErrorMessage); markErr != nil {
			return markErr
		}
		return domain.NewUpstream("transfer", fmt.Errorf("%s", result.ErrorMessage))
	}

	return e.payments.MarkPayoutProcessing(ctx, payout.ID, result.TransferID)
}

// resolveDestination looks up the worker's payout account, falling back to
// a deterministic placeholder so settlement never stalls on a missing
// account record.
func (e *SettlementEngine) resolveDestination(ctx context.Context, workerID string) string {
	destination, err := e.accounts.DestinationAccount(ctx, workerID)
	if err != nil || destination == "" {
		if err != nil {
			e.logger.Warn("destination account lookup failed, using placeholder",
				slog.String("worker_id", workerID),
				slog.Any("error", err),
			)
		}
		return "acct_placeholder_" + workerID
	}
	return destination
}

// RefundEscrow returns held funds to the business. Used on job
// cancellation and on withdrawal of an accepted application.
func (e *SettlementEngine) RefundEscrow(ctx context.Context, applicationID, reason string) error {
	escrow, err := e.payments.GetEscrowByApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if escrow.Status != domain.EscrowStatusHeld {
		return domain.NewConflict("escrow for application %s is already %s", applicationID, escrow.Status)
	}

	txn, err := e.payments.GetTransactionByID(ctx, escrow.TransactionID)
	if err != nil {
		return err
	}
	if !txn.IsRefundable() {
		return domain.NewInvalidTransition("transaction", string(txn.Status), string(domain.TransactionStatusRefunded))
	}

	if txn.PaymentIntentID != "" {
		result, refundErr := e.gateway.Refund(ctx, txn.PaymentIntentID, reason)
		if refundErr != nil {
			return domain.NewUpstream("refund", refundErr)
		}
		if !result.Success {
			return domain.NewUpstream("refund", fmt.Errorf("%s", result.ErrorMessage))
		}
	}

	if err := e.payments.TransitionTransaction(ctx, txn.ID, txn.Status, domain.TransactionStatusRefunded); err != nil {
		return err
	}
	if err := e.payments.ResolveEscrow(ctx, escrow.ID, domain.EscrowStatusRefunded); err != nil {
		return err
	}

	e.logger.Info("escrow refunded",
		slog.String("escrow_id", escrow.ID),
		slog.String("transaction_id", txn.ID),
		slog.String("reason", reason),
	)

	return nil
}

// RetryPayout re-requests the transfer for a failed payout, bounded by the
// configured retry ceiling.
func (e *SettlementEngine) RetryPayout(ctx context.Context, payoutID string) error {
	payout, err := e.payments.GetPayoutByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout.Status != domain.PayoutStatusFailed {
		return domain.NewConflict("payout %s is %s, not failed", payoutID, payout.Status)
	}
	if payout.RetryCount >= e.config.MaxPayoutRetries {
		return domain.NewConflict("payout %s exhausted its %d retries", payoutID, e.config.MaxPayoutRetries)
	}

	if payout.DestinationAccount == "" {
		payout.DestinationAccount = e.resolveDestination(ctx, payout.WorkerID)
	}

	return e.requestTransfer(ctx, payout)
}

// RetryFailedPayouts is the sweeper entry point: retries every failed
// payout still under the ceiling. Individual failures are logged and do
// not stop the sweep.
func (e *SettlementEngine) RetryFailedPayouts(ctx context.Context, limit int) (int, error) {
	payouts, err := e.payments.ListFailedPayouts(ctx, e.config.MaxPayoutRetries, limit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range payouts {
		if err := e.RetryPayout(ctx, payouts[i].ID); err != nil {
			e.logger.Warn("payout retry failed",
				slog.String("payout_id", payouts[i].ID),
				slog.Any("error", err),
			)
			continue
		}
		retried++
	}

	return retried, nil
}

// ReleaseExpiredEscrows settles escrows whose auto-release window lapsed:
// checked-out shifts where the synchronous settlement did not finish.
// Escrows with no checkout on record are skipped; cancellation and
// refunds own those.
func (e *SettlementEngine) ReleaseExpiredEscrows(ctx context.Context, limit int) (int, error) {
	escrows, err := e.payments.ListExpiredHeldEscrows(ctx, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range escrows {
		if err := e.ReleaseEscrowAfterCheckout(ctx, escrows[i].ApplicationID); err != nil {
			e.logger.Warn("auto-release failed",
				slog.String("escrow_id", escrows[i].ID),
				slog.Any("error", err),
			)
			continue
		}
		released++
	}

	return released, nil
}

// ConfirmHold processes the provider's asynchronous hold confirmation. A
// transaction already held (the synchronous path) is left untouched.
func (e *SettlementEngine) ConfirmHold(ctx context.Context, intentID string) error {
	txn, err := e.payments.GetTransactionByIntentID(ctx, intentID)
	if err != nil {
		return err
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil
	}
	return e.payments.TransitionTransaction(ctx, txn.ID, domain.TransactionStatusPending, domain.TransactionStatusHeld)
}

// FailHold processes a provider-side hold failure: the transaction is
// marked failed and any escrow recorded against it is refunded.
func (e *SettlementEngine) FailHold(ctx context.Context, intentID string) error {
	txn, err := e.payments.GetTransactionByIntentID(ctx, intentID)
	if err != nil {
		return err
	}
	if txn.Status != domain.TransactionStatusPending && txn.Status != domain.TransactionStatusHeld {
		return nil
	}

	if err := e.payments.TransitionTransaction(ctx, txn.ID, txn.Status, domain.TransactionStatusFailed); err != nil {
		return err
	}

	escrow, err := e.payments.GetEscrowByTransaction(ctx, txn.ID)
	if err != nil {
		if errors.Is(err, domain.ErrEscrowNotFound) {
			return nil
		}
		return err
	}
	if escrow.Status == domain.EscrowStatusHeld {
		if err := e.payments.ResolveEscrow(ctx, escrow.ID, domain.EscrowStatusRefunded); err != nil {
			return err
		}
	}

	return nil
}

// CompletePayout processes the provider's transfer confirmation. Replays
// are harmless: the payout update is idempotent and a transaction already
// completed is left alone.
func (e *SettlementEngine) CompletePayout(ctx context.Context, transferID string) error {
	payout, err := e.payments.GetPayoutByTransferID(ctx, transferID)
	if err != nil {
		return err
	}

	if err := e.payments.MarkPayoutCompleted(ctx, payout.ID, time.Now().UTC()); err != nil {
		return err
	}

	if err := e.payments.TransitionTransaction(ctx, payout.TransactionID, domain.TransactionStatusCaptured, domain.TransactionStatusCompleted); err != nil {
		if domain.IsInvalidTransition(err) {
			return nil
		}
		return err
	}

	e.notify(ctx, events.Notification{
		UserID: payout.WorkerID,
		Kind:   events.NotificationPayoutCompleted,
		Payload: domain.Metadata{
			"payout_id": payout.ID,
			"amount":    payout.Amount,
		},
	})

	return nil
}

// FailPayout processes the provider's transfer failure notice.
func (e *SettlementEngine) FailPayout(ctx context.Context, transferID, reason string) error {
	payout, err := e.payments.GetPayoutByTransferID(ctx, transferID)
	if err != nil {
		return err
	}

	if err := e.payments.MarkPayoutFailed(ctx, payout.ID, reason); err != nil {
		return err
	}

	e.notify(ctx, events.Notification{
		UserID: payout.WorkerID,
		Kind:   events.NotificationPayoutFailed,
		Payload: domain.Metadata{
			"payout_id": payout.ID,
			"reason":    reason,
		},
	})

	return nil
}

func (e *SettlementEngine) notify(ctx context.Context, notification events.Notification) {
	if err := e.notifier.Notify(ctx, notification); err != nil {
		e.logger.Warn("notification publish failed",
			slog.String("kind", notification.Kind),
			slog.String("user_id", notification.UserID),
			slog.Any("error", err),
		)
	}
}

// PlaceholderAccountResolver returns no account for any worker, forcing
// the deterministic placeholder destination. A real directory service
// replaces it in production wiring.
type PlaceholderAccountResolver struct{}

func (PlaceholderAccountResolver) DestinationAccount(context.Context, string) (string, error) {
	return "", nil
}
