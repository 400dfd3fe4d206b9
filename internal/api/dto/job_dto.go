package dto

import (
	"time"

	"github.com/shiftlyhq/backend/internal/api/domain"
)

type CreateJobRequest struct {
	JobType         string  `json:"job_type" binding:"required"`
	Title           string  `json:"title" binding:"required"`
	Description     string  `json:"description"`
	Date            string  `json:"date" binding:"required"`
	StartTime       string  `json:"start_time" binding:"required"`
	EndTime         string  `json:"end_time" binding:"required"`
	HourlyRate      int64   `json:"hourly_rate" binding:"required"`
	WorkersNeeded   int     `json:"workers_needed" binding:"required"`
	LocationName    string  `json:"location_name"`
	LocationAddress string  `json:"location_address"`
	LocationLat     float64 `json:"location_lat"`
	LocationLng     float64 `json:"location_lng"`
}

type ListJobsRequest struct {
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type SearchJobsRequest struct {
	Lat      float64 `form:"lat"`
	Lng      float64 `form:"lng"`
	RadiusKm float64 `form:"radius_km"`
	JobType  string  `form:"job_type"`
	Limit    int     `form:"limit"`
}

type JobMatchDTO struct {
	Job        JobDTO  `json:"job"`
	DistanceKm float64 `json:"distance_km"`
}

type SearchJobsResponse struct {
	Matches []JobMatchDTO `json:"matches"`
}

type JobDTO struct {
	ID              string  `json:"id"`
	BusinessID      string  `json:"business_id"`
	JobType         string  `json:"job_type"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	HourlyRate      int64   `json:"hourly_rate"`
	WorkersNeeded   int     `json:"workers_needed"`
	WorkersAccepted int     `json:"workers_accepted"`
	LocationName    string  `json:"location_name"`
	LocationAddress string  `json:"location_address"`
	LocationLat     float64 `json:"location_lat"`
	LocationLng     float64 `json:"location_lng"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	PublishedAt     string  `json:"published_at,omitempty"`
}

// NewJobDTO converts a domain job to its API shape.
func NewJobDTO(job *domain.Job) JobDTO {
	dto := JobDTO{
		ID:              job.ID,
		BusinessID:      job.BusinessID,
		JobType:         job.JobType,
		Title:           job.Title,
		Description:     job.Description,
		Date:            job.Date.Format("2006-01-02"),
		StartTime:       job.StartTime,
		EndTime:         job.EndTime,
		HourlyRate:      job.HourlyRate,
		WorkersNeeded:   job.WorkersNeeded,
		WorkersAccepted: job.WorkersAccepted,
		LocationName:    job.LocationName,
		LocationAddress: job.LocationAddress,
		LocationLat:     job.LocationLat,
		LocationLng:     job.LocationLng,
		Status:          string(job.Status),
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
	}
	if job.PublishedAt != nil {
		dto.PublishedAt = job.PublishedAt.Format(time.RFC3339)
	}
	return dto
}
