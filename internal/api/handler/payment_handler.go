package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/dto"
	"github.com/shiftlyhq/backend/internal/api/service"
)

// PaymentHandler handles settlement read and retry HTTP requests.
type PaymentHandler struct {
	logger   *slog.Logger
	payments *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler instance.
func NewPaymentHandler(deps *Dependencies) *PaymentHandler {
	return &PaymentHandler{
		logger:   deps.Logger,
		payments: deps.Payments,
	}
}

// GetTransaction handles GET /api/v1/payments/transactions/:transaction_id
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	txn, err := h.payments.GetTransaction(c.Request.Context(), actor, c.Param("transaction_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionDTO(txn))
}

// RetryPayout handles POST /api/v1/payouts/:payout_id/retry
func (h *PaymentHandler) RetryPayout(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	payout, err := h.payments.RetryPayout(c.Request.Context(), actor, c.Param("payout_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPayoutDTO(payout))
}
