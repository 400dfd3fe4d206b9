package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/events"
)

// ApplicationService drives the application lifecycle. Accepting an
// application is the moment money enters the system: the worker slot is
// claimed first, then the escrow hold is placed, and only then is the
// application marked accepted.
type ApplicationService struct {
	apps       ApplicationStore
	jobs       JobStore
	settlement *SettlementEngine
	notifier   Notifier
	fraud      FraudSink
	logger     *slog.Logger
}

// NewApplicationService builds the service.
func NewApplicationService(
	apps ApplicationStore,
	jobs JobStore,
	settlement *SettlementEngine,
	notifier Notifier,
	fraud FraudSink,
	logger *slog.Logger,
) *ApplicationService {
	return &ApplicationService{
		apps:       apps,
		jobs:       jobs,
		settlement: settlement,
		notifier:   notifier,
		fraud:      fraud,
		logger:     logger,
	}
}

// Apply files a worker's bid on a published job with open slots. The
// (job, worker) pair is unique for all time, so a withdrawn worker cannot
// re-apply.
func (s *ApplicationService) Apply(ctx context.Context, actor domain.Actor, jobID, message string) (*domain.JobApplication, error) {
	if !actor.IsWorker() {
		return nil, domain.NewUnauthorized("only workers can apply to jobs")
	}
	if !actor.Verified {
		return nil, domain.NewUnauthorized("worker %s is not verified", actor.ID)
	}

	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusPublished {
		return nil, domain.NewConflict("job %s is not accepting applications", jobID)
	}
	if job.IsFull() {
		return nil, domain.NewConflict("job %s has no open slots", jobID)
	}

	app := &domain.JobApplication{
		ID:        uuid.NewString(),
		JobID:     jobID,
		WorkerID:  actor.ID,
		Status:    domain.ApplicationStatusPending,
		Message:   message,
		AppliedAt: time.Now().UTC(),
	}

	if err := s.apps.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	s.logger.Info("application submitted",
		slog.String("application_id", app.ID),
		slog.String("job_id", jobID),
		slog.String("worker_id", actor.ID),
	)

	s.notifyUser(ctx, events.Notification{
		UserID:  job.BusinessID,
		Kind:    events.NotificationApplicationReceived,
		Payload: domain.Metadata{"job_id": jobID, "application_id": app.ID},
	})
	s.recordSignal(ctx, events.FraudSignal{
		UserID:    actor.ID,
		Signal:    events.SignalApplicationSubmitted,
		RelatedID: app.ID,
	})

	return app, nil
}

// Accept claims a worker slot, places the escrow hold, and marks the
// application accepted. Escrow failure does not undo the acceptance: the
// slot and the accepted status stand, and the hold is re-attempted out of
// band against the same idempotency key. Only a lost application race
// compensates, refunding the hold and releasing the slot.
func (s *ApplicationService) Accept(ctx context.Context, actor domain.Actor, applicationID string) (*domain.JobApplication, error) {
	app, job, err := s.applicationForBusiness(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != domain.ApplicationStatusPending {
		return nil, domain.NewInvalidTransition("application", string(app.Status), string(domain.ApplicationStatusAccepted))
	}

	if err := s.jobs.IncrementWorkersAccepted(ctx, job.ID); err != nil {
		return nil, err
	}

	if _, err := s.settlement.CreateEscrowForApplication(ctx, job, app); err != nil {
		s.logger.Error("escrow creation failed on acceptance",
			slog.String("application_id", app.ID),
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	if err := s.apps.TransitionApplication(ctx, app.ID, domain.ApplicationStatusPending, domain.ApplicationStatusAccepted); err != nil {
		// The application changed underneath us, likely a concurrent
		// withdrawal. Undo the money and the slot.
		if refundErr := s.settlement.RefundEscrow(ctx, app.ID, "acceptance lost race"); refundErr != nil {
			s.logger.Error("failed to refund escrow after lost acceptance race",
				slog.String("application_id", app.ID),
				slog.Any("error", refundErr),
			)
		}
		s.releaseSlot(ctx, job.ID)
		return nil, err
	}

	s.logger.Info("application accepted",
		slog.String("application_id", app.ID),
		slog.String("job_id", job.ID),
		slog.String("worker_id", app.WorkerID),
	)

	s.notifyUser(ctx, events.Notification{
		UserID:  app.WorkerID,
		Kind:    events.NotificationApplicationAccepted,
		Payload: domain.Metadata{"job_id": job.ID, "application_id": app.ID},
	})
	s.recordSignal(ctx, events.FraudSignal{
		UserID:    app.WorkerID,
		Signal:    events.SignalApplicationAccepted,
		RelatedID: app.ID,
		Payload:   domain.Metadata{"business_id": job.BusinessID},
	})

	return s.apps.GetApplicationByID(ctx, applicationID)
}

// Reject declines a pending application. No money is involved.
func (s *ApplicationService) Reject(ctx context.Context, actor domain.Actor, applicationID string) (*domain.JobApplication, error) {
	app, job, err := s.applicationForBusiness(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}

	if err := s.apps.TransitionApplication(ctx, app.ID, domain.ApplicationStatusPending, domain.ApplicationStatusRejected); err != nil {
		return nil, err
	}

	s.notifyUser(ctx, events.Notification{
		UserID:  app.WorkerID,
		Kind:    events.NotificationApplicationRejected,
		Payload: domain.Metadata{"job_id": job.ID, "application_id": app.ID},
	})

	return s.apps.GetApplicationByID(ctx, applicationID)
}

// Withdraw retracts the worker's own application. Withdrawing an accepted
// application releases the claimed slot and refunds the held escrow; both
// are best-effort once the withdrawal itself is recorded.
func (s *ApplicationService) Withdraw(ctx context.Context, actor domain.Actor, applicationID string) (*domain.JobApplication, error) {
	if !actor.IsWorker() {
		return nil, domain.NewUnauthorized("only workers can withdraw applications")
	}

	app, err := s.apps.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.WorkerID != actor.ID {
		return nil, domain.NewUnauthorized("application %s does not belong to worker %s", applicationID, actor.ID)
	}
	if app.Status != domain.ApplicationStatusPending && app.Status != domain.ApplicationStatusAccepted {
		return nil, domain.NewInvalidTransition("application", string(app.Status), string(domain.ApplicationStatusWithdrawn))
	}

	wasAccepted := app.Status == domain.ApplicationStatusAccepted

	if err := s.apps.TransitionApplication(ctx, app.ID, app.Status, domain.ApplicationStatusWithdrawn); err != nil {
		return nil, err
	}

	if wasAccepted {
		s.releaseSlot(ctx, app.JobID)
		if err := s.settlement.RefundEscrow(ctx, app.ID, "application withdrawn"); err != nil {
			s.logger.Error("refund failed after withdrawal",
				slog.String("application_id", app.ID),
				slog.Any("error", err),
			)
		}

		job, jobErr := s.jobs.GetJobByID(ctx, app.JobID)
		if jobErr == nil {
			s.notifyUser(ctx, events.Notification{
				UserID:  job.BusinessID,
				Kind:    events.NotificationApplicationWithdrawn,
				Payload: domain.Metadata{"job_id": app.JobID, "application_id": app.ID},
			})
		}
	}

	s.logger.Info("application withdrawn",
		slog.String("application_id", app.ID),
		slog.Bool("was_accepted", wasAccepted),
	)

	return s.apps.GetApplicationByID(ctx, applicationID)
}

// ListForJob returns a job's applications to its owner.
func (s *ApplicationService) ListForJob(ctx context.Context, actor domain.Actor, jobID string) ([]domain.JobApplication, error) {
	if !actor.IsBusiness() {
		return nil, domain.NewUnauthorized("only businesses can list job applications")
	}
	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.BusinessID != actor.ID {
		return nil, domain.NewUnauthorized("job %s does not belong to business %s", jobID, actor.ID)
	}
	return s.apps.ListApplicationsByJob(ctx, jobID)
}

// ListForWorker returns the actor's own applications.
func (s *ApplicationService) ListForWorker(ctx context.Context, actor domain.Actor) ([]domain.JobApplication, error) {
	if !actor.IsWorker() {
		return nil, domain.NewUnauthorized("only workers can list their applications")
	}
	return s.apps.ListApplicationsByWorker(ctx, actor.ID)
}

func (s *ApplicationService) applicationForBusiness(ctx context.Context, actor domain.Actor, applicationID string) (*domain.JobApplication, *domain.Job, error) {
	if !actor.IsBusiness() {
		return nil, nil, domain.NewUnauthorized("only businesses can respond to applications")
	}

	app, err := s.apps.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}

	job, err := s.jobs.GetJobByID(ctx, app.JobID)
	if err != nil {
		return nil, nil, err
	}
	if job.BusinessID != actor.ID {
		return nil, nil, domain.NewUnauthorized("application %s is not for a job owned by business %s", applicationID, actor.ID)
	}

	return app, job, nil
}

func (s *ApplicationService) releaseSlot(ctx context.Context, jobID string) {
	if err := s.jobs.DecrementWorkersAccepted(ctx, jobID); err != nil {
		s.logger.Error("failed to release worker slot",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

func (s *ApplicationService) notifyUser(ctx context.Context, notification events.Notification) {
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Warn("notification publish failed",
			slog.String("kind", notification.Kind),
			slog.String("user_id", notification.UserID),
			slog.Any("error", err),
		)
	}
}

func (s *ApplicationService) recordSignal(ctx context.Context, signal events.FraudSignal) {
	if err := s.fraud.Record(ctx, signal); err != nil {
		s.logger.Warn("fraud signal publish failed",
			slog.String("signal", signal.Signal),
			slog.String("user_id", signal.UserID),
			slog.Any("error", err),
		)
	}
}
