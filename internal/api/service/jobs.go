package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/storage"
	"github.com/shiftlyhq/backend/internal/events"
	"github.com/shiftlyhq/backend/internal/geo"
)

// validJobTypes is the closed set accepted on job creation.
var validJobTypes = map[string]bool{
	domain.JobTypeWaiter:    true,
	domain.JobTypeCourier:   true,
	domain.JobTypeLoader:    true,
	domain.JobTypeCleaner:   true,
	domain.JobTypeCashier:   true,
	domain.JobTypeBartender: true,
	domain.JobTypeCook:      true,
	domain.JobTypeSecurity:  true,
	domain.JobTypePromoter:  true,
	domain.JobTypeOther:     true,
}

// CreateJobInput carries the business-supplied fields of a new job.
type CreateJobInput struct {
	JobType         string
	Title           string
	Description     string
	Date            time.Time
	StartTime       string
	EndTime         string
	HourlyRate      int64
	WorkersNeeded   int
	LocationName    string
	LocationAddress string
	LocationLat     float64
	LocationLng     float64
}

// JobService drives the job lifecycle: create as draft, publish, complete,
// cancel with refunds.
type JobService struct {
	jobs       JobStore
	apps       ApplicationStore
	payments   PaymentStore
	settlement *SettlementEngine
	notifier   Notifier
	fraud      FraudSink
	logger     *slog.Logger
	now        func() time.Time
}

// NewJobService builds the service.
func NewJobService(
	jobs JobStore,
	apps ApplicationStore,
	payments PaymentStore,
	settlement *SettlementEngine,
	notifier Notifier,
	fraud FraudSink,
	logger *slog.Logger,
) *JobService {
	return &JobService{
		jobs:       jobs,
		apps:       apps,
		payments:   payments,
		settlement: settlement,
		notifier:   notifier,
		fraud:      fraud,
		logger:     logger,
		now:        time.Now,
	}
}

// Create validates the input and stores a draft job owned by the actor.
func (s *JobService) Create(ctx context.Context, actor domain.Actor, input CreateJobInput) (*domain.Job, error) {
	if !actor.IsBusiness() {
		return nil, domain.NewUnauthorized("only businesses can post jobs")
	}
	if !actor.Verified {
		return nil, domain.NewUnauthorized("business %s is not verified", actor.ID)
	}
	if err := validateJobInput(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:              uuid.NewString(),
		BusinessID:      actor.ID,
		JobType:         input.JobType,
		Title:           input.Title,
		Description:     input.Description,
		Date:            input.Date,
		StartTime:       input.StartTime,
		EndTime:         input.EndTime,
		HourlyRate:      input.HourlyRate,
		WorkersNeeded:   input.WorkersNeeded,
		LocationName:    input.LocationName,
		LocationAddress: input.LocationAddress,
		LocationLat:     input.LocationLat,
		LocationLng:     input.LocationLng,
		Status:          domain.JobStatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("business_id", job.BusinessID),
		slog.String("job_type", job.JobType),
	)

	return job, nil
}

func validateJobInput(input CreateJobInput) error {
	if !validJobTypes[input.JobType] {
		return domain.NewValidationError("unknown job type %q", input.JobType)
	}
	if input.Title == "" {
		return domain.NewValidationError("title is required")
	}
	if input.Date.IsZero() {
		return domain.NewValidationError("date is required")
	}
	if _, err := (&domain.Job{StartTime: input.StartTime, EndTime: input.EndTime}).DurationHours(); err != nil {
		return domain.NewValidationError("invalid shift times: %v", err)
	}
	if input.HourlyRate <= 0 {
		return domain.NewValidationError("hourly rate must be positive")
	}
	if input.WorkersNeeded < 1 {
		return domain.NewValidationError("workers needed must be at least 1")
	}
	if err := geo.ValidateCoordinates(input.LocationLat, input.LocationLng); err != nil {
		return domain.NewValidationError("invalid location: %v", err)
	}
	return nil
}

// Get returns a job by id.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.jobs.GetJobByID(ctx, jobID)
}

// List returns the actor's jobs filtered and cursor-paginated.
func (s *JobService) List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.jobs.ListJobs(ctx, filter)
}

// Publish makes a draft job visible to workers. A shift that has already
// started, or starts right now, cannot be published.
func (s *JobService) Publish(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}

	start, err := job.StartDateTime()
	if err != nil {
		return nil, domain.NewValidationError("invalid shift times: %v", err)
	}
	if !start.After(s.now()) {
		return nil, domain.NewValidationError("job %s must start in the future to be published", jobID)
	}

	if err := s.jobs.TransitionJob(ctx, job.ID, domain.JobStatusDraft, domain.JobStatusPublished); err != nil {
		return nil, err
	}

	s.logger.Info("job published",
		slog.String("job_id", job.ID),
		slog.String("business_id", job.BusinessID),
	)

	s.recordSignal(ctx, events.FraudSignal{
		UserID:    actor.ID,
		Signal:    events.SignalJobPosted,
		RelatedID: job.ID,
	})

	return s.jobs.GetJobByID(ctx, jobID)
}

// Complete marks an in-progress job as finished.
func (s *JobService) Complete(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.TransitionJob(ctx, job.ID, domain.JobStatusInProgress, domain.JobStatusCompleted); err != nil {
		return nil, err
	}

	return s.jobs.GetJobByID(ctx, jobID)
}

// Cancel terminates a job and refunds every transaction still refundable.
// Refund failures are logged and do not stop the walk: each held escrow is
// independent and the sweep picks up stragglers.
func (s *JobService) Cancel(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	job, err := s.ownedJob(ctx, actor, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.JobStatusCompleted || job.Status == domain.JobStatusCancelled {
		return nil, domain.NewInvalidTransition("job", string(job.Status), string(domain.JobStatusCancelled))
	}

	if err := s.jobs.TransitionJob(ctx, job.ID, job.Status, domain.JobStatusCancelled); err != nil {
		return nil, err
	}

	refundable, err := s.payments.ListRefundableByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for i := range refundable {
		escrow, escErr := s.payments.GetEscrowByTransaction(ctx, refundable[i].ID)
		if escErr != nil {
			s.logger.Error("refund skipped, escrow lookup failed",
				slog.String("transaction_id", refundable[i].ID),
				slog.Any("error", escErr),
			)
			continue
		}
		if err := s.settlement.RefundEscrow(ctx, escrow.ApplicationID, "job cancelled"); err != nil {
			s.logger.Error("refund failed during job cancellation",
				slog.String("job_id", jobID),
				slog.String("transaction_id", refundable[i].ID),
				slog.Any("error", err),
			)
		}
	}

	accepted, err := s.apps.ListAcceptedByJob(ctx, jobID)
	if err != nil {
		s.logger.Error("failed to list accepted applications for cancellation notices",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	} else {
		for i := range accepted {
			s.notifyUser(ctx, events.Notification{
				UserID:  accepted[i].WorkerID,
				Kind:    events.NotificationJobCancelled,
				Payload: domain.Metadata{"job_id": jobID},
			})
		}
	}

	s.logger.Info("job cancelled",
		slog.String("job_id", jobID),
		slog.Int("refundable_transactions", len(refundable)),
	)

	return s.jobs.GetJobByID(ctx, jobID)
}

func (s *JobService) ownedJob(ctx context.Context, actor domain.Actor, jobID string) (*domain.Job, error) {
	if !actor.IsBusiness() {
		return nil, domain.NewUnauthorized("only businesses can manage jobs")
	}
	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.BusinessID != actor.ID {
		return nil, domain.NewUnauthorized("job %s does not belong to business %s", jobID, actor.ID)
	}
	return job, nil
}

func (s *JobService) notifyUser(ctx context.Context, notification events.Notification) {
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Warn("notification publish failed",
			slog.String("kind", notification.Kind),
			slog.String("user_id", notification.UserID),
			slog.Any("error", err),
		)
	}
}

func (s *JobService) recordSignal(ctx context.Context, signal events.FraudSignal) {
	if err := s.fraud.Record(ctx, signal); err != nil {
		s.logger.Warn("fraud signal publish failed",
			slog.String("signal", signal.Signal),
			slog.String("user_id", signal.UserID),
			slog.Any("error", err),
		)
	}
}
