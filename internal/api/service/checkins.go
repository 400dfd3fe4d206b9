package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/events"
	"github.com/shiftlyhq/backend/internal/geo"
)

const (
	// checkInRadiusKm is the hard GPS gate: a worker farther than this
	// from the job site cannot check in.
	checkInRadiusKm = 0.1

	// checkInWindow is the advisory window around the scheduled start.
	// Arriving outside it produces a warning, never a rejection.
	checkInWindow = 30 * time.Minute
)

// CheckInResult is a check-in plus its advisory time warning, if any.
type CheckInResult struct {
	CheckIn     *domain.CheckIn
	TimeWarning string
}

// CheckOutResult is the completed presence record plus settlement state.
type CheckOutResult struct {
	CheckIn        *domain.CheckIn
	WorkedHours    float64
	PaymentPending bool
}

// CheckInService verifies worker presence at the job site and triggers
// settlement on checkout.
type CheckInService struct {
	checkins   CheckInStore
	apps       ApplicationStore
	jobs       JobStore
	settlement *SettlementEngine
	notifier   Notifier
	fraud      FraudSink
	logger     *slog.Logger
	now        func() time.Time
}

// NewCheckInService builds the service.
func NewCheckInService(
	checkins CheckInStore,
	apps ApplicationStore,
	jobs JobStore,
	settlement *SettlementEngine,
	notifier Notifier,
	fraud FraudSink,
	logger *slog.Logger,
) *CheckInService {
	return &CheckInService{
		checkins:   checkins,
		apps:       apps,
		jobs:       jobs,
		settlement: settlement,
		notifier:   notifier,
		fraud:      fraud,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckIn records the worker's arrival. The coordinates must be inside the
// GPS gate around the job location; the scheduled-time check only warns.
// The first check-in moves the job from published to in_progress.
func (s *CheckInService) CheckIn(ctx context.Context, actor domain.Actor, applicationID string, lat, lng float64, deviceInfo domain.Metadata) (*CheckInResult, error) {
	_, job, err := s.acceptedApplication(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPublished && job.Status != domain.JobStatusInProgress {
		return nil, domain.NewConflict("job %s is not active", job.ID)
	}

	if err := geo.ValidateCoordinates(lat, lng); err != nil {
		return nil, domain.NewValidationError("invalid coordinates: %v", err)
	}

	distance := geo.Distance(lat, lng, job.LocationLat, job.LocationLng)
	if distance > checkInRadiusKm {
		return nil, domain.NewTooFar(distance*1000, checkInRadiusKm*1000)
	}

	warning := s.timeWarning(job)

	if deviceInfo == nil {
		deviceInfo = domain.Metadata{}
	}
	now := s.now().UTC()
	checkIn := &domain.CheckIn{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		CheckedInAt:   now,
		CheckInLat:    lat,
		CheckInLng:    lng,
		DeviceInfo:    deviceInfo,
		CreatedAt:     now,
	}

	if err := s.checkins.CreateCheckIn(ctx, checkIn); err != nil {
		return nil, err
	}

	// First worker on site starts the job. Losing this race to another
	// check-in is fine.
	if job.Status == domain.JobStatusPublished {
		if err := s.jobs.TransitionJob(ctx, job.ID, domain.JobStatusPublished, domain.JobStatusInProgress); err != nil {
			if !domain.IsInvalidTransition(err) {
				s.logger.Error("failed to start job on first check-in",
					slog.String("job_id", job.ID),
					slog.Any("error", err),
				)
			}
		}
	}

	s.logger.Info("worker checked in",
		slog.String("application_id", applicationID),
		slog.String("job_id", job.ID),
		slog.Float64("distance_km", distance),
	)

	s.notifyUser(ctx, events.Notification{
		UserID:  job.BusinessID,
		Kind:    events.NotificationWorkerCheckedIn,
		Payload: domain.Metadata{"job_id": job.ID, "application_id": applicationID},
	})

	return &CheckInResult{CheckIn: checkIn, TimeWarning: warning}, nil
}

// timeWarning compares now against the scheduled start and reports an
// advisory message outside the window.
func (s *CheckInService) timeWarning(job *domain.Job) string {
	start, err := job.StartDateTime()
	if err != nil {
		return ""
	}
	delta := s.now().Sub(start)
	switch {
	case delta < -checkInWindow:
		return fmt.Sprintf("checking in %.0f minutes before the scheduled start", -delta.Minutes())
	case delta > checkInWindow:
		return fmt.Sprintf("checking in %.0f minutes after the scheduled start", delta.Minutes())
	default:
		return ""
	}
}

// CheckOut records the worker's departure and hands the application to the
// settlement engine. A settlement failure does not undo the checkout; the
// caller sees PaymentPending and the sweeper finishes the job.
func (s *CheckInService) CheckOut(ctx context.Context, actor domain.Actor, applicationID string, lat, lng float64, deviceInfo domain.Metadata) (*CheckOutResult, error) {
	app, job, err := s.acceptedApplication(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}

	if err := geo.ValidateCoordinates(lat, lng); err != nil {
		return nil, domain.NewValidationError("invalid coordinates: %v", err)
	}

	existing, err := s.checkins.GetCheckInByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if existing.IsCheckedOut() {
		return nil, domain.NewConflict("application %s is already checked out", applicationID)
	}

	// Checkout device info merges into the check-in's bag, keeping keys
	// recorded at arrival.
	merged := domain.Metadata{}
	merged.Merge(existing.DeviceInfo)
	merged.Merge(deviceInfo)

	checkedOutAt := s.now().UTC()
	if err := s.checkins.CompleteCheckOut(ctx, applicationID, checkedOutAt, lat, lng, merged); err != nil {
		return nil, err
	}

	checkIn, err := s.checkins.GetCheckInByApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	hours, _ := checkIn.WorkedHours()

	paymentPending := false
	if err := s.settlement.ReleaseEscrowAfterCheckout(ctx, applicationID); err != nil {
		paymentPending = true
		s.logger.Error("settlement failed after checkout",
			slog.String("application_id", applicationID),
			slog.Any("error", err),
		)
	}

	s.logger.Info("worker checked out",
		slog.String("application_id", applicationID),
		slog.String("job_id", job.ID),
		slog.Float64("worked_hours", hours),
		slog.Bool("payment_pending", paymentPending),
	)

	s.notifyUser(ctx, events.Notification{
		UserID: job.BusinessID,
		Kind:   events.NotificationWorkerCheckedOut,
		Payload: domain.Metadata{
			"job_id":         job.ID,
			"application_id": applicationID,
			"worked_hours":   hours,
		},
	})

	s.recordSignal(ctx, events.FraudSignal{
		UserID:    app.WorkerID,
		Signal:    events.SignalJobCompletedPair,
		RelatedID: job.ID,
		Payload:   domain.Metadata{"business_id": job.BusinessID},
	})

	return &CheckOutResult{
		CheckIn:        checkIn,
		WorkedHours:    hours,
		PaymentPending: paymentPending,
	}, nil
}

// Get returns the presence record for the worker's own application or for
// an application on a job the business owns.
func (s *CheckInService) Get(ctx context.Context, actor domain.Actor, applicationID string) (*domain.CheckIn, error) {
	app, err := s.apps.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.IsWorker() && app.WorkerID == actor.ID:
	case actor.IsBusiness():
		job, jobErr := s.jobs.GetJobByID(ctx, app.JobID)
		if jobErr != nil {
			return nil, jobErr
		}
		if job.BusinessID != actor.ID {
			return nil, domain.NewUnauthorized("application %s is not visible to business %s", applicationID, actor.ID)
		}
	default:
		return nil, domain.NewUnauthorized("application %s is not visible to actor %s", applicationID, actor.ID)
	}

	return s.checkins.GetCheckInByApplication(ctx, applicationID)
}

func (s *CheckInService) acceptedApplication(ctx context.Context, actor domain.Actor, applicationID string) (*domain.JobApplication, *domain.Job, error) {
	if !actor.IsWorker() {
		return nil, nil, domain.NewUnauthorized("only workers can check in or out")
	}

	app, err := s.apps.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	if app.WorkerID != actor.ID {
		return nil, nil, domain.NewUnauthorized("application %s does not belong to worker %s", applicationID, actor.ID)
	}
	if app.Status != domain.ApplicationStatusAccepted {
		return nil, nil, domain.NewConflict("application %s is %s, not accepted", applicationID, app.Status)
	}

	job, err := s.jobs.GetJobByID(ctx, app.JobID)
	if err != nil {
		return nil, nil, err
	}

	return app, job, nil
}

func (s *CheckInService) notifyUser(ctx context.Context, notification events.Notification) {
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Warn("notification publish failed",
			slog.String("kind", notification.Kind),
			slog.String("user_id", notification.UserID),
			slog.Any("error", err),
		)
	}
}

func (s *CheckInService) recordSignal(ctx context.Context, signal events.FraudSignal) {
	if err := s.fraud.Record(ctx, signal); err != nil {
		s.logger.Warn("fraud signal publish failed",
			slog.String("signal", signal.Signal),
			slog.String("user_id", signal.UserID),
			slog.Any("error", err),
		)
	}
}
