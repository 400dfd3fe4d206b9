package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/dto"
	"github.com/shiftlyhq/backend/internal/api/service"
)

// CheckInHandler handles shift check-in and check-out HTTP requests.
type CheckInHandler struct {
	logger   *slog.Logger
	checkIns *service.CheckInService
}

// NewCheckInHandler creates a new CheckInHandler instance.
func NewCheckInHandler(deps *Dependencies) *CheckInHandler {
	return &CheckInHandler{
		logger:   deps.Logger,
		checkIns: deps.CheckIns,
	}
}

// CheckIn handles POST /api/v1/applications/:application_id/check-in
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.checkIns.CheckIn(c.Request.Context(), actor, c.Param("application_id"), req.Lat, req.Lng, req.DeviceInfo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CheckInResponse{
		CheckIn:     dto.NewCheckInDTO(result.CheckIn),
		TimeWarning: result.TimeWarning,
	})
}

// CheckOut handles POST /api/v1/applications/:application_id/check-out
func (h *CheckInHandler) CheckOut(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.checkIns.CheckOut(c.Request.Context(), actor, c.Param("application_id"), req.Lat, req.Lng, req.DeviceInfo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.CheckOutResponse{
		CheckIn:        dto.NewCheckInDTO(result.CheckIn),
		WorkedHours:    result.WorkedHours,
		PaymentPending: result.PaymentPending,
	})
}

// GetCheckIn handles GET /api/v1/applications/:application_id/check-in
func (h *CheckInHandler) GetCheckIn(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	checkIn, err := h.checkIns.Get(c.Request.Context(), actor, c.Param("application_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewCheckInDTO(checkIn))
}
