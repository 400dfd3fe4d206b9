package dto

import (
	"time"

	"github.com/shiftlyhq/backend/internal/api/domain"
)

type TransactionDTO struct {
	ID              string          `json:"id"`
	JobID           string          `json:"job_id"`
	BusinessID      string          `json:"business_id"`
	WorkerID        string          `json:"worker_id"`
	Amount          int64           `json:"amount"`
	PlatformFee     int64           `json:"platform_fee"`
	WorkerPayout    int64           `json:"worker_payout"`
	Status          string          `json:"status"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	Metadata        domain.Metadata `json:"metadata,omitempty"`
	CreatedAt       string          `json:"created_at"`
	CompletedAt     string          `json:"completed_at,omitempty"`
}

type PayoutDTO struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	WorkerID      string `json:"worker_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	TransferID    string `json:"transfer_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	RetryCount    int    `json:"retry_count"`
	InitiatedAt   string `json:"initiated_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// NewTransactionDTO converts a domain transaction to its API shape.
func NewTransactionDTO(txn *domain.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:              txn.ID,
		JobID:           txn.JobID,
		BusinessID:      txn.BusinessID,
		WorkerID:        txn.WorkerID,
		Amount:          txn.Amount,
		PlatformFee:     txn.PlatformFee,
		WorkerPayout:    txn.WorkerPayout,
		Status:          string(txn.Status),
		PaymentIntentID: txn.PaymentIntentID,
		Metadata:        txn.Metadata,
		CreatedAt:       txn.CreatedAt.Format(time.RFC3339),
	}
	if txn.CompletedAt != nil {
		dto.CompletedAt = txn.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// NewPayoutDTO converts a domain payout to its API shape.
func NewPayoutDTO(payout *domain.Payout) PayoutDTO {
	dto := PayoutDTO{
		ID:            payout.ID,
		TransactionID: payout.TransactionID,
		WorkerID:      payout.WorkerID,
		Amount:        payout.Amount,
		Status:        string(payout.Status),
		TransferID:    payout.TransferID,
		FailureReason: payout.FailureReason,
		RetryCount:    payout.RetryCount,
		InitiatedAt:   payout.InitiatedAt.Format(time.RFC3339),
	}
	if payout.CompletedAt != nil {
		dto.CompletedAt = payout.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
