package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/shared/postgresql"
)

const checkInColumns = `
	id, application_id, checked_in_at, check_in_lat, check_in_lng,
	checked_out_at, check_out_lat, check_out_lng, device_info, created_at
`

type CheckInStorage struct {
	db *sqlx.DB
}

func NewCheckInStorage(pg *postgresql.Client) *CheckInStorage {
	return &CheckInStorage{
		db: pg.GetDB(),
	}
}

// CreateCheckIn inserts the presence record for an application. The unique
// index on application_id turns a second check-in into a ConflictError.
func (s *CheckInStorage) CreateCheckIn(ctx context.Context, checkIn *domain.CheckIn) error {
	query := `
		INSERT INTO check_ins (
			id, application_id, checked_in_at, check_in_lat, check_in_lng,
			device_info, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		checkIn.ID,
		checkIn.ApplicationID,
		checkIn.CheckedInAt,
		checkIn.CheckInLat,
		checkIn.CheckInLng,
		checkIn.DeviceInfo,
		checkIn.CreatedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.NewConflict("application %s is already checked in", checkIn.ApplicationID)
		}
		return fmt.Errorf("failed to create check-in: %w", err)
	}

	return nil
}

func (s *CheckInStorage) GetCheckInByApplication(ctx context.Context, applicationID string) (*domain.CheckIn, error) {
	var checkIn domain.CheckIn
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE application_id = $1`

	err := s.db.GetContext(ctx, &checkIn, query, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckInNotFound
		}
		return nil, fmt.Errorf("failed to get check-in: %w", err)
	}

	return &checkIn, nil
}

// CompleteCheckOut stamps the checkout fields exactly once. The
// checked_out_at IS NULL predicate makes a second checkout a ConflictError
// instead of an overwrite.
func (s *CheckInStorage) CompleteCheckOut(ctx context.Context, applicationID string, checkedOutAt time.Time, lat, lng float64, deviceInfo domain.Metadata) error {
	query := `
		UPDATE check_ins
		SET checked_out_at = $1,
		    check_out_lat = $2,
		    check_out_lng = $3,
		    device_info = $4
		WHERE application_id = $5 AND checked_out_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, checkedOutAt, lat, lng, deviceInfo, applicationID)
	if err != nil {
		return fmt.Errorf("failed to complete check-out: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.GetCheckInByApplication(ctx, applicationID); getErr != nil {
			return getErr
		}
		return domain.NewConflict("application %s is already checked out", applicationID)
	}

	return nil
}

// CountRecentCompletedPairs returns how many jobs a worker completed for
// the same business inside the trailing window, for collusion detection.
func (s *CheckInStorage) CountRecentCompletedPairs(ctx context.Context, workerID, businessID string, windowDays int) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM check_ins c
		JOIN job_applications a ON a.id = c.application_id
		JOIN jobs j ON j.id = a.job_id
		WHERE a.worker_id = $1
		  AND j.business_id = $2
		  AND c.checked_out_at IS NOT NULL
		  AND c.checked_out_at > NOW() - make_interval(days => $3)
	`

	if err := s.db.GetContext(ctx, &count, query, workerID, businessID, windowDays); err != nil {
		return 0, fmt.Errorf("failed to count completed pairs: %w", err)
	}

	return count, nil
}
