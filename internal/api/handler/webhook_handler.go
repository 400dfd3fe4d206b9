package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/service"
	"github.com/shiftlyhq/backend/internal/psp"
)

const headerWebhookSignature = "X-Webhook-Signature"

// WebhookHandler receives payment provider callbacks.
type WebhookHandler struct {
	logger   *slog.Logger
	webhooks *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:   deps.Logger,
		webhooks: deps.Webhooks,
	}
}

// HandlePSP handles POST /api/v1/webhooks/psp. The raw body is verified
// against the provider signature before any event is processed.
func (h *WebhookHandler) HandlePSP(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read request body",
		})
		return
	}

	signature := c.GetHeader(headerWebhookSignature)
	if signature == "" {
		signature = c.GetHeader("Stripe-Signature")
	}

	if err := h.webhooks.Process(c.Request.Context(), payload, signature); err != nil {
		if errors.Is(err, psp.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid webhook signature",
			})
			return
		}
		h.logger.Error("failed to process webhook", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to process webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
