package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/shared/postgresql"
)

const transactionColumns = `
	id, job_id, business_id, worker_id, amount, platform_fee, worker_payout,
	status, payment_intent_id, idempotency_key, metadata,
	created_at, updated_at, completed_at
`

const escrowColumns = `
	id, transaction_id, application_id, held_amount, status,
	held_at, released_at, auto_release_hours
`

const payoutColumns = `
	id, transaction_id, worker_id, amount, status, transfer_id,
	destination_account, failure_reason, retry_count,
	initiated_at, completed_at, failed_at
`

type PaymentStorage struct {
	db *sqlx.DB
}

func NewPaymentStorage(pg *postgresql.Client) *PaymentStorage {
	return &PaymentStorage{
		db: pg.GetDB(),
	}
}

// CreateTransaction inserts a transaction. When the idempotency key is
// already taken the existing row is returned instead, so concurrent hold
// creation for the same application converges on one transaction.
func (s *PaymentStorage) CreateTransaction(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error) {
	query := `
		INSERT INTO transactions (
			id, job_id, business_id, worker_id, amount, platform_fee, worker_payout,
			status, payment_intent_id, idempotency_key, metadata,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		txn.ID,
		txn.JobID,
		txn.BusinessID,
		txn.WorkerID,
		txn.Amount,
		txn.PlatformFee,
		txn.WorkerPayout,
		txn.Status,
		txn.PaymentIntentID,
		txn.IdempotencyKey,
		txn.Metadata,
		txn.CreatedAt,
		txn.UpdatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			existing, getErr := s.GetTransactionByIdempotencyKey(ctx, txn.IdempotencyKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create transaction: %w", err)
	}

	return txn, true, nil
}

func (s *PaymentStorage) GetTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var txn domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	err := s.db.GetContext(ctx, &txn, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &txn, nil
}

func (s *PaymentStorage) GetTransactionByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	var txn domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_key = $1`

	err := s.db.GetContext(ctx, &txn, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}

	return &txn, nil
}

func (s *PaymentStorage) GetTransactionByIntentID(ctx context.Context, intentID string) (*domain.Transaction, error) {
	var txn domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE payment_intent_id = $1`

	err := s.db.GetContext(ctx, &txn, query, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by intent: %w", err)
	}

	return &txn, nil
}

// TransitionTransaction moves a transaction between statuses with a
// conditional update. completed_at is stamped when the target status is
// terminal-successful.
func (s *PaymentStorage) TransitionTransaction(ctx context.Context, transactionID string, from, to domain.TransactionStatus) error {
	query := `
		UPDATE transactions
		SET status = $1,
		    updated_at = NOW(),
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to, transactionID, from)
	if err != nil {
		return fmt.Errorf("failed to transition transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetTransactionByID(ctx, transactionID)
		if getErr != nil {
			return getErr
		}
		return domain.NewInvalidTransition("transaction", string(current.Status), string(to))
	}

	return nil
}

// MarkTransactionHeld records the provider intent and moves the
// transaction from pending to held once the hold is confirmed.
func (s *PaymentStorage) MarkTransactionHeld(ctx context.Context, transactionID, intentID string) error {
	query := `
		UPDATE transactions
		SET status = 'held',
		    payment_intent_id = $1,
		    updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`

	result, err := s.db.ExecContext(ctx, query, intentID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to mark transaction held: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetTransactionByID(ctx, transactionID)
		if getErr != nil {
			return getErr
		}
		return domain.NewInvalidTransition("transaction", string(current.Status), string(domain.TransactionStatusHeld))
	}

	return nil
}

// UpdateTransactionAmounts rewrites the amount and fee split once the
// worked time is known, just before capture. Legal only while the funds
// are merely held.
func (s *PaymentStorage) UpdateTransactionAmounts(ctx context.Context, transactionID string, amount, platformFee, workerPayout int64) error {
	query := `
		UPDATE transactions
		SET amount = $1,
		    platform_fee = $2,
		    worker_payout = $3,
		    updated_at = NOW()
		WHERE id = $4 AND status = 'held'
	`

	result, err := s.db.ExecContext(ctx, query, amount, platformFee, workerPayout, transactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction amounts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetTransactionByID(ctx, transactionID)
		if getErr != nil {
			return getErr
		}
		return domain.NewConflict("transaction %s is %s, amounts are frozen", transactionID, current.Status)
	}

	return nil
}

// ListRefundableByJob returns the job's transactions still in a refundable
// status, the set a cancellation walks.
func (s *PaymentStorage) ListRefundableByJob(ctx context.Context, jobID string) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE job_id = $1 AND status IN ('pending', 'held')
		ORDER BY created_at ASC`

	txns := []domain.Transaction{}
	if err := s.db.SelectContext(ctx, &txns, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list refundable transactions: %w", err)
	}

	return txns, nil
}

func (s *PaymentStorage) CreateEscrow(ctx context.Context, escrow *domain.Escrow) error {
	query := `
		INSERT INTO escrows (
			id, transaction_id, application_id, held_amount, status,
			held_at, auto_release_hours
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		escrow.ID,
		escrow.TransactionID,
		escrow.ApplicationID,
		escrow.HeldAmount,
		escrow.Status,
		escrow.HeldAt,
		escrow.AutoReleaseHours,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.NewConflict("escrow already exists for application %s", escrow.ApplicationID)
		}
		return fmt.Errorf("failed to create escrow: %w", err)
	}

	return nil
}

func (s *PaymentStorage) GetEscrowByApplication(ctx context.Context, applicationID string) (*domain.Escrow, error) {
	var escrow domain.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE application_id = $1`

	err := s.db.GetContext(ctx, &escrow, query, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("failed to get escrow: %w", err)
	}

	return &escrow, nil
}

func (s *PaymentStorage) GetEscrowByTransaction(ctx context.Context, transactionID string) (*domain.Escrow, error) {
	var escrow domain.Escrow
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE transaction_id = $1`

	err := s.db.GetContext(ctx, &escrow, query, transactionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEscrowNotFound
		}
		return nil, fmt.Errorf("failed to get escrow by transaction: %w", err)
	}

	return &escrow, nil
}

// ResolveEscrow moves an escrow out of held, to released or refunded. Both
// exits stamp released_at. A 0-row update means another writer already
// resolved it, reported as a ConflictError so the loser stops.
func (s *PaymentStorage) ResolveEscrow(ctx context.Context, escrowID string, to domain.EscrowStatus) error {
	query := `
		UPDATE escrows
		SET status = $1,
		    released_at = NOW()
		WHERE id = $2 AND status = 'held'
	`

	result, err := s.db.ExecContext(ctx, query, to, escrowID)
	if err != nil {
		return fmt.Errorf("failed to resolve escrow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.NewConflict("escrow %s is no longer held", escrowID)
	}

	return nil
}

// ListExpiredHeldEscrows returns held escrows whose auto-release window has
// lapsed. The sweeper processes these in small batches.
func (s *PaymentStorage) ListExpiredHeldEscrows(ctx context.Context, limit int) ([]domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows
		WHERE status = 'held'
		  AND held_at + make_interval(hours => auto_release_hours) < NOW()
		ORDER BY held_at ASC
		LIMIT $1`

	escrows := []domain.Escrow{}
	if err := s.db.SelectContext(ctx, &escrows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired escrows: %w", err)
	}

	return escrows, nil
}

func (s *PaymentStorage) CreatePayout(ctx context.Context, payout *domain.Payout) error {
	query := `
		INSERT INTO payouts (
			id, transaction_id, worker_id, amount, status, transfer_id,
			destination_account, failure_reason, retry_count, initiated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		payout.ID,
		payout.TransactionID,
		payout.WorkerID,
		payout.Amount,
		payout.Status,
		payout.TransferID,
		payout.DestinationAccount,
		payout.FailureReason,
		payout.RetryCount,
		payout.InitiatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}

	return nil
}

func (s *PaymentStorage) GetPayoutByID(ctx context.Context, payoutID string) (*domain.Payout, error) {
	var payout domain.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`

	err := s.db.GetContext(ctx, &payout, query, payoutID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}

	return &payout, nil
}

func (s *PaymentStorage) GetPayoutByTransferID(ctx context.Context, transferID string) (*domain.Payout, error) {
	var payout domain.Payout
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE transfer_id = $1`

	err := s.db.GetContext(ctx, &payout, query, transferID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("failed to get payout by transfer: %w", err)
	}

	return &payout, nil
}

// MarkPayoutProcessing records the provider transfer id once the transfer
// request has been accepted.
func (s *PaymentStorage) MarkPayoutProcessing(ctx context.Context, payoutID, transferID string) error {
	query := `
		UPDATE payouts
		SET status = 'processing',
		    transfer_id = $1
		WHERE id = $2 AND status IN ('pending', 'failed')
	`

	result, err := s.db.ExecContext(ctx, query, transferID, payoutID)
	if err != nil {
		return fmt.Errorf("failed to mark payout processing: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.NewConflict("payout %s is not awaiting transfer", payoutID)
	}

	return nil
}

// MarkPayoutCompleted is idempotent: completing an already-completed payout
// affects zero rows and returns nil, so webhook replays are harmless.
func (s *PaymentStorage) MarkPayoutCompleted(ctx context.Context, payoutID string, completedAt time.Time) error {
	query := `
		UPDATE payouts
		SET status = 'completed',
		    completed_at = $1,
		    failure_reason = ''
		WHERE id = $2 AND status <> 'completed'
	`

	if _, err := s.db.ExecContext(ctx, query, completedAt, payoutID); err != nil {
		return fmt.Errorf("failed to mark payout completed: %w", err)
	}

	return nil
}

// MarkPayoutFailed records a failed attempt and bumps the retry counter.
func (s *PaymentStorage) MarkPayoutFailed(ctx context.Context, payoutID, reason string) error {
	query := `
		UPDATE payouts
		SET status = 'failed',
		    failure_reason = $1,
		    failed_at = NOW(),
		    retry_count = retry_count + 1
		WHERE id = $2 AND status <> 'completed'
	`

	if _, err := s.db.ExecContext(ctx, query, reason, payoutID); err != nil {
		return fmt.Errorf("failed to mark payout failed: %w", err)
	}

	return nil
}

// ListFailedPayouts returns failed payouts still under the retry ceiling,
// oldest first.
func (s *PaymentStorage) ListFailedPayouts(ctx context.Context, maxRetries, limit int) ([]domain.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts
		WHERE status = 'failed' AND retry_count < $1
		ORDER BY failed_at ASC
		LIMIT $2`

	payouts := []domain.Payout{}
	if err := s.db.SelectContext(ctx, &payouts, query, maxRetries, limit); err != nil {
		return nil, fmt.Errorf("failed to list failed payouts: %w", err)
	}

	return payouts, nil
}

// CreateSuspiciousActivity appends a fraud audit record.
func (s *PaymentStorage) CreateSuspiciousActivity(ctx context.Context, activity *domain.SuspiciousActivity) error {
	query := `
		INSERT INTO suspicious_activities (
			id, user_id, reason, severity, payload, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		activity.ID,
		activity.UserID,
		activity.Reason,
		activity.Severity,
		activity.Payload,
		activity.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create suspicious activity: %w", err)
	}

	return nil
}
