package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/service"
)

// Identity headers supplied by the gateway in front of this service. The
// core trusts them as given; authentication happens upstream.
const (
	headerUserID   = "X-User-ID"
	headerUserType = "X-User-Type"
	headerVerified = "X-Verified"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger       *slog.Logger
	Jobs         *service.JobService
	Applications *service.ApplicationService
	CheckIns     *service.CheckInService
	Matching     *service.MatchingService
	Webhooks     *service.WebhookService
	Payments     *service.PaymentService
}

// actorFromHeaders reads the caller identity from the gateway headers.
func actorFromHeaders(c *gin.Context) (domain.Actor, bool) {
	actor := domain.Actor{
		ID:       c.GetHeader(headerUserID),
		Type:     c.GetHeader(headerUserType),
		Verified: c.GetHeader(headerVerified) == "true",
	}
	if actor.ID == "" || (actor.Type != "business" && actor.Type != "worker") {
		return domain.Actor{}, false
	}
	return actor, true
}

// requireActor aborts with 401 when identity headers are missing or
// malformed.
func requireActor(c *gin.Context) (domain.Actor, bool) {
	actor, ok := actorFromHeaders(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing or invalid identity headers",
		})
	}
	return actor, ok
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsUnauthorized(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case isNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsConflict(err), domain.IsInvalidTransition(err), domain.IsTooFar(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsUpstream(err):
		logger.Error("payment provider error",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider error"})
	default:
		logger.Error("internal error",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrJobNotFound) ||
		errors.Is(err, domain.ErrApplicationNotFound) ||
		errors.Is(err, domain.ErrCheckInNotFound) ||
		errors.Is(err, domain.ErrTransactionNotFound) ||
		errors.Is(err, domain.ErrEscrowNotFound) ||
		errors.Is(err, domain.ErrPayoutNotFound)
}
