package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/dto"
	"github.com/shiftlyhq/backend/internal/api/service"
)

// ApplicationHandler handles application lifecycle HTTP requests.
type ApplicationHandler struct {
	logger *slog.Logger
	apps   *service.ApplicationService
}

// NewApplicationHandler creates a new ApplicationHandler instance.
func NewApplicationHandler(deps *Dependencies) *ApplicationHandler {
	return &ApplicationHandler{
		logger: deps.Logger,
		apps:   deps.Applications,
	}
}

// Apply handles POST /api/v1/jobs/:job_id/apply
func (h *ApplicationHandler) Apply(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	app, err := h.apps.Apply(c.Request.Context(), actor, c.Param("job_id"), req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewApplicationDTO(app))
}

// Accept handles POST /api/v1/applications/:application_id/accept
func (h *ApplicationHandler) Accept(c *gin.Context) {
	h.respond(c, h.apps.Accept)
}

// Reject handles POST /api/v1/applications/:application_id/reject
func (h *ApplicationHandler) Reject(c *gin.Context) {
	h.respond(c, h.apps.Reject)
}

// Withdraw handles POST /api/v1/applications/:application_id/withdraw
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	h.respond(c, h.apps.Withdraw)
}

func (h *ApplicationHandler) respond(c *gin.Context, op func(ctx context.Context, actor domain.Actor, applicationID string) (*domain.JobApplication, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	app, err := op(c.Request.Context(), actor, c.Param("application_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewApplicationDTO(app))
}

// ListForJob handles GET /api/v1/jobs/:job_id/applications
func (h *ApplicationHandler) ListForJob(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	apps, err := h.apps.ListForJob(c.Request.Context(), actor, c.Param("job_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toListResponse(apps))
}

// ListMine handles GET /api/v1/applications
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	apps, err := h.apps.ListForWorker(c.Request.Context(), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toListResponse(apps))
}

func toListResponse(apps []domain.JobApplication) dto.ListApplicationsResponse {
	resp := dto.ListApplicationsResponse{
		Applications: make([]dto.ApplicationDTO, 0, len(apps)),
	}
	for i := range apps {
		resp.Applications = append(resp.Applications, dto.NewApplicationDTO(&apps[i]))
	}
	return resp
}
