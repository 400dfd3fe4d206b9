package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/storage"
)

func TestJobService_Create(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDraft, job.Status)
	assert.Equal(t, business.ID, job.BusinessID)
	assert.Equal(t, 0, job.WorkersAccepted)
	assert.NotEmpty(t, job.ID)

	// Drafts are invisible; the posting signal fires at publish.
	assert.Empty(t, e.fraud.signals)
}

func TestJobService_CreateValidation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  domain.Actor
		mutate func(*CreateJobInput)
	}{
		{
			name:   "worker cannot post",
			actor:  worker,
			mutate: func(*CreateJobInput) {},
		},
		{
			name:   "unverified business",
			actor:  domain.Actor{ID: "biz-2", Type: "business", Verified: false},
			mutate: func(*CreateJobInput) {},
		},
		{
			name:   "unknown job type",
			actor:  business,
			mutate: func(in *CreateJobInput) { in.JobType = "astronaut" },
		},
		{
			name:   "missing title",
			actor:  business,
			mutate: func(in *CreateJobInput) { in.Title = "" },
		},
		{
			name:   "malformed start time",
			actor:  business,
			mutate: func(in *CreateJobInput) { in.StartTime = "6pm" },
		},
		{
			name:   "non-positive rate",
			actor:  business,
			mutate: func(in *CreateJobInput) { in.HourlyRate = 0 },
		},
		{
			name:   "zero workers",
			actor:  business,
			mutate: func(in *CreateJobInput) { in.WorkersNeeded = 0 },
		},
		{
			name:   "latitude out of range",
			actor:  business,
			mutate: func(in *CreateJobInput) { in.LocationLat = 91 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validJobInput()
			tt.mutate(&input)

			_, err := e.jobSvc.Create(ctx, tt.actor, input)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err) || domain.IsUnauthorized(err))
		})
	}
}

func TestJobService_PublishLifecycle(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	require.NoError(t, err)

	published, err := e.jobSvc.Publish(ctx, business, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPublished, published.Status)
	assert.NotNil(t, published.PublishedAt)

	require.Len(t, e.fraud.signals, 1)
	assert.Equal(t, "job_posted", e.fraud.signals[0].Signal)
	assert.Equal(t, business.ID, e.fraud.signals[0].UserID)

	// publishing twice is an invalid transition
	_, err = e.jobSvc.Publish(ctx, business, job.ID)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestJobService_PublishRequiresFutureStart(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	require.NoError(t, err)

	// The clock has moved past the scheduled start.
	start, err := job.StartDateTime()
	require.NoError(t, err)
	e.jobSvc.now = func() time.Time { return start.Add(time.Minute) }

	_, err = e.jobSvc.Publish(ctx, business, job.ID)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	job, err = e.jobSvc.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusDraft, job.Status)

	// Starting exactly now is still too late.
	e.jobSvc.now = func() time.Time { return start }
	_, err = e.jobSvc.Publish(ctx, business, job.ID)
	assert.True(t, domain.IsValidation(err))
}

func TestJobService_PublishRequiresOwnership(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	require.NoError(t, err)

	other := domain.Actor{ID: "biz-other", Type: "business", Verified: true}
	_, err = e.jobSvc.Publish(ctx, other, job.ID)
	assert.True(t, domain.IsUnauthorized(err))

	_, err = e.jobSvc.Publish(ctx, worker, job.ID)
	assert.True(t, domain.IsUnauthorized(err))
}

func TestJobService_CompleteRequiresInProgress(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	require.NoError(t, err)

	_, err = e.jobSvc.Complete(ctx, business, job.ID)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestJobService_CancelRefundsHeldEscrows(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, app := seedAcceptedApplication(e)

	cancelled, err := e.jobSvc.Cancel(ctx, business, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, cancelled.Status)

	escrow, err := e.payments.GetEscrowByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusRefunded, escrow.Status)

	txn, err := e.payments.GetTransactionByID(ctx, escrow.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, txn.Status)

	assert.Contains(t, e.notifier.sentKinds(), "job_cancelled")
}

func TestJobService_CancelTerminalJobFails(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	require.NoError(t, err)
	_, err = e.jobSvc.Cancel(ctx, business, job.ID)
	require.NoError(t, err)

	_, err = e.jobSvc.Cancel(ctx, business, job.ID)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestJobService_CancelSkipsCapturedTransactions(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	job, app := seedAcceptedApplication(e)

	// Worker already checked out: funds are captured, not refundable.
	seedCheckedOut(e, app.ID, 5)
	require.NoError(t, e.settlement.ReleaseEscrowAfterCheckout(ctx, app.ID))

	// Move the job to in_progress so cancellation is still legal.
	require.NoError(t, e.jobs.TransitionJob(ctx, job.ID, domain.JobStatusPublished, domain.JobStatusInProgress))

	_, err := e.jobSvc.Cancel(ctx, business, job.ID)
	require.NoError(t, err)

	escrow, err := e.payments.GetEscrowByApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusReleased, escrow.Status)

	txn, err := e.payments.GetTransactionByID(ctx, escrow.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCaptured, txn.Status)
}

func TestJobService_List(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.jobSvc.Create(ctx, business, validJobInput())
		require.NoError(t, err)
	}

	jobs, err := e.jobSvc.List(ctx, storage.JobFilter{BusinessID: business.ID})
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	jobs, err = e.jobSvc.List(ctx, storage.JobFilter{BusinessID: business.ID, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = e.jobSvc.List(ctx, storage.JobFilter{BusinessID: "biz-other"})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
