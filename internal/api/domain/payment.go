package domain

import (
	"math"
	"time"
)

// TransactionStatus is the money-movement state of one transaction.
//
// pending means the hold was requested but not yet confirmed by the
// provider; held means funds are reserved but not charged; captured means
// the charge went through and settlement to the worker is in flight. The
// captured state is deliberately distinct from held so a transaction's
// record always says whether the business has actually been charged.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusHeld      TransactionStatus = "held"
	TransactionStatusCaptured  TransactionStatus = "captured"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// EscrowStatus is the hold state. held→released and held→refunded are the
// only legal transitions; neither is ever reversed.
type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
)

// PayoutStatus is the transfer-to-worker state.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// Transaction is the ledger record of money owed from business to worker
// for one application. All amounts are in minor currency units. The
// idempotency key is derived deterministically from the application id, so
// retried hold creation converges on one row.
type Transaction struct {
	ID              string            `db:"id"`
	JobID           string            `db:"job_id"`
	BusinessID      string            `db:"business_id"`
	WorkerID        string            `db:"worker_id"`
	Amount          int64             `db:"amount"`
	PlatformFee     int64             `db:"platform_fee"`
	WorkerPayout    int64             `db:"worker_payout"`
	Status          TransactionStatus `db:"status"`
	PaymentIntentID string            `db:"payment_intent_id"`
	IdempotencyKey  string            `db:"idempotency_key"`
	Metadata        Metadata          `db:"metadata"`
	CreatedAt       time.Time         `db:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at"`
	CompletedAt     *time.Time        `db:"completed_at"`
}

// CalculateFees splits Amount into the platform fee and the worker payout
// at the given fee rate.
func (t *Transaction) CalculateFees(feeRate float64) {
	t.PlatformFee = int64(math.Round(float64(t.Amount) * feeRate))
	t.WorkerPayout = t.Amount - t.PlatformFee
}

// IsRefundable reports whether the transaction may still be refunded: only
// before capture, while the funds are merely reserved.
func (t *Transaction) IsRefundable() bool {
	return t.Status == TransactionStatusPending || t.Status == TransactionStatusHeld
}

// Escrow is the hold record, 1:1 with a transaction and 1:1 with an
// application. ReleasedAt doubles as the refund timestamp when the escrow
// is refunded instead of released.
type Escrow struct {
	ID               string       `db:"id"`
	TransactionID    string       `db:"transaction_id"`
	ApplicationID    string       `db:"application_id"`
	HeldAmount       int64        `db:"held_amount"`
	Status           EscrowStatus `db:"status"`
	HeldAt           time.Time    `db:"held_at"`
	ReleasedAt       *time.Time   `db:"released_at"`
	AutoReleaseHours int          `db:"auto_release_hours"`
}

// Payout is one transfer attempt to the worker's destination account. A
// transaction may accumulate several payouts across retries; retry_count
// increments only when an attempt is marked failed.
type Payout struct {
	ID                 string       `db:"id"`
	TransactionID      string       `db:"transaction_id"`
	WorkerID           string       `db:"worker_id"`
	Amount             int64        `db:"amount"`
	Status             PayoutStatus `db:"status"`
	TransferID         string       `db:"transfer_id"`
	DestinationAccount string       `db:"destination_account"`
	FailureReason      string       `db:"failure_reason"`
	RetryCount         int          `db:"retry_count"`
	InitiatedAt        time.Time    `db:"initiated_at"`
	CompletedAt        *time.Time   `db:"completed_at"`
	FailedAt           *time.Time   `db:"failed_at"`
}

// SuspiciousActivity is a write-only audit record produced by the fraud
// pipeline. It never blocks or fails a primary operation.
type SuspiciousActivity struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Reason    string    `db:"reason"`
	Severity  string    `db:"severity"`
	Payload   Metadata  `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// Suspicious activity severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)
