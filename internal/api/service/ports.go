// Package service implements the marketplace core: job lifecycle,
// applications, check-in/out, settlement, matching, and webhook processing.
// Services depend on narrow store and side-effect interfaces so the
// PostgreSQL layer, the payment provider, and the event bus can all be
// swapped in tests.
package service

import (
	"context"
	"time"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/storage"
	"github.com/shiftlyhq/backend/internal/events"
)

// JobStore persists jobs and their capacity counters.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	TransitionJob(ctx context.Context, jobID string, from, to domain.JobStatus) error
	IncrementWorkersAccepted(ctx context.Context, jobID string) error
	DecrementWorkersAccepted(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	SearchPublished(ctx context.Context, filter storage.SearchFilter) ([]domain.Job, error)
}

// ApplicationStore persists worker applications.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app *domain.JobApplication) error
	GetApplicationByID(ctx context.Context, applicationID string) (*domain.JobApplication, error)
	ListApplicationsByJob(ctx context.Context, jobID string) ([]domain.JobApplication, error)
	ListApplicationsByWorker(ctx context.Context, workerID string) ([]domain.JobApplication, error)
	ListAcceptedByJob(ctx context.Context, jobID string) ([]domain.JobApplication, error)
	TransitionApplication(ctx context.Context, applicationID string, from, to domain.ApplicationStatus) error
}

// CheckInStore persists presence records.
type CheckInStore interface {
	CreateCheckIn(ctx context.Context, checkIn *domain.CheckIn) error
	GetCheckInByApplication(ctx context.Context, applicationID string) (*domain.CheckIn, error)
	CompleteCheckOut(ctx context.Context, applicationID string, checkedOutAt time.Time, lat, lng float64, deviceInfo domain.Metadata) error
}

// PaymentStore persists transactions, escrows, and payouts.
type PaymentStore interface {
	CreateTransaction(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error)
	GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error)
	GetTransactionByIntentID(ctx context.Context, intentID string) (*domain.Transaction, error)
	MarkTransactionHeld(ctx context.Context, transactionID, intentID string) error
	UpdateTransactionAmounts(ctx context.Context, transactionID string, amount, platformFee, workerPayout int64) error
	TransitionTransaction(ctx context.Context, transactionID string, from, to domain.TransactionStatus) error
	ListRefundableByJob(ctx context.Context, jobID string) ([]domain.Transaction, error)

	CreateEscrow(ctx context.Context, escrow *domain.Escrow) error
	GetEscrowByApplication(ctx context.Context, applicationID string) (*domain.Escrow, error)
	GetEscrowByTransaction(ctx context.Context, transactionID string) (*domain.Escrow, error)
	ResolveEscrow(ctx context.Context, escrowID string, to domain.EscrowStatus) error
	ListExpiredHeldEscrows(ctx context.Context, limit int) ([]domain.Escrow, error)

	CreatePayout(ctx context.Context, payout *domain.Payout) error
	GetPayoutByID(ctx context.Context, payoutID string) (*domain.Payout, error)
	GetPayoutByTransferID(ctx context.Context, transferID string) (*domain.Payout, error)
	MarkPayoutProcessing(ctx context.Context, payoutID, transferID string) error
	MarkPayoutCompleted(ctx context.Context, payoutID string, completedAt time.Time) error
	MarkPayoutFailed(ctx context.Context, payoutID, reason string) error
	ListFailedPayouts(ctx context.Context, maxRetries, limit int) ([]domain.Payout, error)
}

// Notifier delivers user notifications. Failures are logged by callers and
// never fail the primary operation.
type Notifier interface {
	Notify(ctx context.Context, notification events.Notification) error
}

// FraudSink records advisory fraud signals off the hot path.
type FraudSink interface {
	Record(ctx context.Context, signal events.FraudSignal) error
}

// AccountResolver maps a worker to a payout destination account.
type AccountResolver interface {
	DestinationAccount(ctx context.Context, workerID string) (string, error)
}
