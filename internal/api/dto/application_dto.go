package dto

import (
	"time"

	"github.com/shiftlyhq/backend/internal/api/domain"
)

type ApplyRequest struct {
	Message string `json:"message"`
}

type ApplicationDTO struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	WorkerID    string `json:"worker_id"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	AppliedAt   string `json:"applied_at"`
	RespondedAt string `json:"responded_at,omitempty"`
}

type ListApplicationsResponse struct {
	Applications []ApplicationDTO `json:"applications"`
}

// NewApplicationDTO converts a domain application to its API shape.
func NewApplicationDTO(app *domain.JobApplication) ApplicationDTO {
	dto := ApplicationDTO{
		ID:        app.ID,
		JobID:     app.JobID,
		WorkerID:  app.WorkerID,
		Status:    string(app.Status),
		Message:   app.Message,
		AppliedAt: app.AppliedAt.Format(time.RFC3339),
	}
	if app.RespondedAt != nil {
		dto.RespondedAt = app.RespondedAt.Format(time.RFC3339)
	}
	return dto
}
