package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/dto"
	"github.com/shiftlyhq/backend/internal/api/service"
	"github.com/shiftlyhq/backend/internal/api/storage"
)

// JobHandler handles job lifecycle HTTP requests.
type JobHandler struct {
	logger   *slog.Logger
	jobs     *service.JobService
	matching *service.MatchingService
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		matching: deps.Matching,
	}
}

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "date must be YYYY-MM-DD",
		})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), actor, service.CreateJobInput{
		JobType:         req.JobType,
		Title:           req.Title,
		Description:     req.Description,
		Date:            date,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		HourlyRate:      req.HourlyRate,
		WorkersNeeded:   req.WorkersNeeded,
		LocationName:    req.LocationName,
		LocationAddress: req.LocationAddress,
		LocationLat:     req.LocationLat,
		LocationLng:     req.LocationLng,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists the calling business's jobs with filtering and cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), storage.JobFilter{
		BusinessID: actor.ID,
		JobType:    req.JobType,
		Status:     req.Status,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, 0, len(jobs))}
	for i := range jobs {
		resp.Jobs = append(resp.Jobs, dto.NewJobDTO(&jobs[i]))
	}
	if len(jobs) == req.PageSize {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// PublishJob handles POST /api/v1/jobs/:job_id/publish
func (h *JobHandler) PublishJob(c *gin.Context) {
	h.transition(c, h.jobs.Publish)
}

// CompleteJob handles POST /api/v1/jobs/:job_id/complete
func (h *JobHandler) CompleteJob(c *gin.Context) {
	h.transition(c, h.jobs.Complete)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	h.transition(c, h.jobs.Cancel)
}

func (h *JobHandler) transition(c *gin.Context, op func(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error)) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	job, err := op(c.Request.Context(), actor, c.Param("job_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// SearchJobs handles GET /api/v1/jobs/nearby
func (h *JobHandler) SearchJobs(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.SearchJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	matches, err := h.matching.FindNearby(c.Request.Context(), actor, service.SearchInput{
		Lat:      req.Lat,
		Lng:      req.Lng,
		RadiusKm: req.RadiusKm,
		JobType:  req.JobType,
		Limit:    req.Limit,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.SearchJobsResponse{Matches: make([]dto.JobMatchDTO, 0, len(matches))}
	for i := range matches {
		resp.Matches = append(resp.Matches, dto.JobMatchDTO{
			Job:        dto.NewJobDTO(&matches[i].Job),
			DistanceKm: matches[i].DistanceKm,
		})
	}

	c.JSON(http.StatusOK, resp)
}
