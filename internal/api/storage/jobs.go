// Package storage implements the persistence layer over PostgreSQL. State
// machine transitions and capacity changes are expressed as conditional
// UPDATEs so that concurrent writers race safely inside the database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/geo"
	"github.com/shiftlyhq/backend/shared/postgresql"
)

const jobColumns = `
	id, business_id, job_type, title, description,
	date, start_time, end_time, hourly_rate,
	workers_needed, workers_accepted,
	location_name, location_address, location_lat, location_lng,
	status, created_at, updated_at, published_at
`

type JobStorage struct {
	db *sqlx.DB
}

func NewJobStorage(pg *postgresql.Client) *JobStorage {
	return &JobStorage{
		db: pg.GetDB(),
	}
}

func (s *JobStorage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, business_id, job_type, title, description,
			date, start_time, end_time, hourly_rate,
			workers_needed, workers_accepted,
			location_name, location_address, location_lat, location_lng,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13, $14, $15,
			$16, $17, $18
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.BusinessID,
		job.JobType,
		job.Title,
		job.Description,
		job.Date,
		job.StartTime,
		job.EndTime,
		job.HourlyRate,
		job.WorkersNeeded,
		job.WorkersAccepted,
		job.LocationName,
		job.LocationAddress,
		job.LocationLat,
		job.LocationLng,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *JobStorage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// TransitionJob moves a job from one status to another with a single
// conditional update. The returned error is an InvalidTransitionError when
// the job is no longer in the expected status, so concurrent transitions
// resolve to exactly one winner.
func (s *JobStorage) TransitionJob(ctx context.Context, jobID string, from, to domain.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW(),
		    published_at = CASE WHEN $1 = 'published' THEN NOW() ELSE published_at END
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to, jobID, from)
	if err != nil {
		return fmt.Errorf("failed to transition job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetJobByID(ctx, jobID)
		if getErr != nil {
			return getErr
		}
		return domain.NewInvalidTransition("job", string(current.Status), string(to))
	}

	return nil
}

// IncrementWorkersAccepted claims one worker slot. It fails with a
// ConflictError when the job is already full or no longer published, which
// is how concurrent accepts on the last slot are serialized.
func (s *JobStorage) IncrementWorkersAccepted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET workers_accepted = workers_accepted + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'published'
		  AND workers_accepted < workers_needed
	`

	result, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to claim worker slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.NewConflict("job %s has no available worker slots", jobID)
	}

	return nil
}

// DecrementWorkersAccepted releases one worker slot. The zero floor is
// enforced in the predicate: a counter already at zero is left untouched
// rather than driven negative.
func (s *JobStorage) DecrementWorkersAccepted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET workers_accepted = workers_accepted - 1,
		    updated_at = NOW()
		WHERE id = $1 AND workers_accepted > 0
	`

	_, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("failed to release worker slot: %w", err)
	}

	return nil
}

type JobFilter struct {
	BusinessID string
	JobType    string
	Status     string
	PageSize   int
	Cursor     *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *JobStorage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.BusinessID != "" {
		query += fmt.Sprintf(" AND business_id = $%d", argIdx)
		args = append(args, filter.BusinessID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIdx)
	args = append(args, filter.PageSize)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// SearchFilter narrows a nearby-jobs search. ExcludeWorkerID drops jobs the
// worker has already applied to, in any application status.
type SearchFilter struct {
	Box             geo.BoundingBox
	JobType         string
	ExcludeWorkerID string
	Limit           int
}

// SearchPublished returns published jobs with open slots inside the
// bounding box. The box is a coarse prefilter; the caller applies the exact
// radius check.
func (s *JobStorage) SearchPublished(ctx context.Context, filter SearchFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'published'
		  AND workers_accepted < workers_needed
		  AND date >= CURRENT_DATE
		  AND location_lat BETWEEN $1 AND $2
		  AND location_lng BETWEEN $3 AND $4
	`
	args := []interface{}{filter.Box.MinLat, filter.Box.MaxLat, filter.Box.MinLng, filter.Box.MaxLng}
	argIdx := 5

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.ExcludeWorkerID != "" {
		query += fmt.Sprintf(` AND NOT EXISTS (
			SELECT 1 FROM job_applications a
			WHERE a.job_id = jobs.id AND a.worker_id = $%d
		)`, argIdx)
		args = append(args, filter.ExcludeWorkerID)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY date ASC, created_at DESC LIMIT $%d", argIdx)
	args = append(args, filter.Limit)

	jobs := []domain.Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search jobs: %w", err)
	}

	return jobs, nil
}
