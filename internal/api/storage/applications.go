package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/shared/postgresql"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

const applicationColumns = `
	id, job_id, worker_id, status, message, applied_at, responded_at
`

type ApplicationStorage struct {
	db *sqlx.DB
}

func NewApplicationStorage(pg *postgresql.Client) *ApplicationStorage {
	return &ApplicationStorage{
		db: pg.GetDB(),
	}
}

// CreateApplication inserts a new application. The (job_id, worker_id)
// unique index turns a duplicate apply into a ConflictError, regardless of
// the prior application's status.
func (s *ApplicationStorage) CreateApplication(ctx context.Context, app *domain.JobApplication) error {
	query := `
		INSERT INTO job_applications (
			id, job_id, worker_id, status, message, applied_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		app.ID,
		app.JobID,
		app.WorkerID,
		app.Status,
		app.Message,
		app.AppliedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.NewConflict("worker %s has already applied to job %s", app.WorkerID, app.JobID)
		}
		return fmt.Errorf("failed to create application: %w", err)
	}

	return nil
}

func (s *ApplicationStorage) GetApplicationByID(ctx context.Context, applicationID string) (*domain.JobApplication, error) {
	var app domain.JobApplication
	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE id = $1`

	err := s.db.GetContext(ctx, &app, query, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	return &app, nil
}

func (s *ApplicationStorage) ListApplicationsByJob(ctx context.Context, jobID string) ([]domain.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications
		WHERE job_id = $1
		ORDER BY applied_at ASC`

	apps := []domain.JobApplication{}
	if err := s.db.SelectContext(ctx, &apps, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list applications for job: %w", err)
	}

	return apps, nil
}

func (s *ApplicationStorage) ListApplicationsByWorker(ctx context.Context, workerID string) ([]domain.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications
		WHERE worker_id = $1
		ORDER BY applied_at DESC`

	apps := []domain.JobApplication{}
	if err := s.db.SelectContext(ctx, &apps, query, workerID); err != nil {
		return nil, fmt.Errorf("failed to list applications for worker: %w", err)
	}

	return apps, nil
}

// ListAcceptedByJob returns the accepted applications for a job, the set
// whose held escrows a cancellation must refund.
func (s *ApplicationStorage) ListAcceptedByJob(ctx context.Context, jobID string) ([]domain.JobApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM job_applications
		WHERE job_id = $1 AND status = 'accepted'
		ORDER BY applied_at ASC`

	apps := []domain.JobApplication{}
	if err := s.db.SelectContext(ctx, &apps, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list accepted applications: %w", err)
	}

	return apps, nil
}

// TransitionApplication moves an application from one status to another
// with a conditional update. responded_at is stamped on the first move out
// of pending.
func (s *ApplicationStorage) TransitionApplication(ctx context.Context, applicationID string, from, to domain.ApplicationStatus) error {
	query := `
		UPDATE job_applications
		SET status = $1,
		    responded_at = COALESCE(responded_at, NOW())
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, to, applicationID, from)
	if err != nil {
		return fmt.Errorf("failed to transition application: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		current, getErr := s.GetApplicationByID(ctx, applicationID)
		if getErr != nil {
			return getErr
		}
		return domain.NewInvalidTransition("application", string(current.Status), string(to))
	}

	return nil
}

// CountRecentByWorker returns how many applications the worker filed inside
// the trailing window. Used by the fraud pipeline, never on the hot path.
func (s *ApplicationStorage) CountRecentByWorker(ctx context.Context, workerID string, windowMinutes int) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM job_applications
		WHERE worker_id = $1
		  AND applied_at > NOW() - make_interval(mins => $2)
	`

	if err := s.db.GetContext(ctx, &count, query, workerID, windowMinutes); err != nil {
		return 0, fmt.Errorf("failed to count recent applications: %w", err)
	}

	return count, nil
}
