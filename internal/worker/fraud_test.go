package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeVelocity struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeVelocity() *fakeVelocity {
	return &fakeVelocity{counts: make(map[string]int64)}
}

func (f *fakeVelocity) Bump(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

type fakePairs struct {
	count int
	err   error
}

func (f *fakePairs) CountRecentCompletedPairs(_ context.Context, _, _ string, _ int) (int, error) {
	return f.count, f.err
}

type fakeActivities struct {
	mu       sync.Mutex
	recorded []domain.SuspiciousActivity
	err      error
}

func (f *fakeActivities) CreateSuspiciousActivity(_ context.Context, activity *domain.SuspiciousActivity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, *activity)
	return nil
}

func newDetector() (*FraudDetector, *fakeVelocity, *fakePairs, *fakeActivities) {
	velocity := newFakeVelocity()
	pairs := &fakePairs{}
	activities := &fakeActivities{}
	return NewFraudDetector(velocity, pairs, activities, testLogger()), velocity, pairs, activities
}

func TestFraudDetector_JobPostBurst(t *testing.T) {
	detector, _, _, activities := newDetector()
	ctx := context.Background()

	signal := events.FraudSignal{
		UserID:    "biz-1",
		Signal:    events.SignalJobPosted,
		RelatedID: "job-1",
	}

	for i := 0; i < jobPostLimit; i++ {
		require.NoError(t, detector.Process(ctx, signal))
	}
	assert.Empty(t, activities.recorded, "under the limit nothing is recorded")

	require.NoError(t, detector.Process(ctx, signal))

	require.Len(t, activities.recorded, 1)
	recorded := activities.recorded[0]
	assert.Equal(t, "biz-1", recorded.UserID)
	assert.Equal(t, domain.SeverityMedium, recorded.Severity)
	assert.Equal(t, "job posting burst", recorded.Reason)
	assert.Equal(t, events.SignalJobPosted, recorded.Payload["signal"])
	assert.Equal(t, "job-1", recorded.Payload["related_id"])
	assert.NotEmpty(t, recorded.ID)
}

func TestFraudDetector_ApplicationBurst(t *testing.T) {
	detector, _, _, activities := newDetector()
	ctx := context.Background()

	signal := events.FraudSignal{
		UserID: "worker-1",
		Signal: events.SignalApplicationSubmitted,
	}

	for i := 0; i < applicationLimit+2; i++ {
		require.NoError(t, detector.Process(ctx, signal))
	}

	// every hit past the limit records a fresh entry
	assert.Len(t, activities.recorded, 2)
	assert.Equal(t, "application burst", activities.recorded[0].Reason)
}

func TestFraudDetector_BurstCountersAreScopedPerUser(t *testing.T) {
	detector, _, _, activities := newDetector()
	ctx := context.Background()

	for i := 0; i < jobPostLimit; i++ {
		require.NoError(t, detector.Process(ctx, events.FraudSignal{UserID: "biz-1", Signal: events.SignalJobPosted}))
		require.NoError(t, detector.Process(ctx, events.FraudSignal{UserID: "biz-2", Signal: events.SignalJobPosted}))
	}

	assert.Empty(t, activities.recorded)
}

func TestFraudDetector_Collusion(t *testing.T) {
	detector, _, pairs, activities := newDetector()
	ctx := context.Background()

	signal := events.FraudSignal{
		UserID: "worker-1",
		Signal: events.SignalJobCompletedPair,
		Payload: domain.Metadata{
			"business_id": "biz-1",
		},
	}

	pairs.count = collusionPairLimit
	require.NoError(t, detector.Process(ctx, signal))
	assert.Empty(t, activities.recorded)

	pairs.count = collusionPairLimit + 1
	require.NoError(t, detector.Process(ctx, signal))

	require.Len(t, activities.recorded, 1)
	recorded := activities.recorded[0]
	assert.Equal(t, domain.SeverityHigh, recorded.Severity)
	assert.Equal(t, "biz-1", recorded.Payload["business_id"])
}

func TestFraudDetector_CollusionOnAcceptance(t *testing.T) {
	detector, _, pairs, activities := newDetector()
	pairs.count = collusionPairLimit + 1

	// Acceptance feeds the same pair check as completion, so a pattern
	// is flagged before the shift is even worked.
	err := detector.Process(context.Background(), events.FraudSignal{
		UserID: "worker-1",
		Signal: events.SignalApplicationAccepted,
		Payload: domain.Metadata{
			"business_id": "biz-1",
		},
	})

	require.NoError(t, err)
	require.Len(t, activities.recorded, 1)
	assert.Equal(t, "biz-1", activities.recorded[0].Payload["business_id"])
}

func TestFraudDetector_CollusionWithoutBusinessIsDropped(t *testing.T) {
	detector, _, pairs, activities := newDetector()
	pairs.count = collusionPairLimit + 10

	err := detector.Process(context.Background(), events.FraudSignal{
		UserID: "worker-1",
		Signal: events.SignalJobCompletedPair,
	})

	require.NoError(t, err)
	assert.Empty(t, activities.recorded)
}

func TestFraudDetector_TransientFailuresAreRetryable(t *testing.T) {
	t.Run("velocity store down", func(t *testing.T) {
		detector, velocity, _, _ := newDetector()
		velocity.err = errors.New("connection refused")

		err := detector.Process(context.Background(), events.FraudSignal{
			UserID: "biz-1",
			Signal: events.SignalJobPosted,
		})

		require.Error(t, err)
		assert.True(t, shouldRequeue(err))
	})

	t.Run("pair count fails", func(t *testing.T) {
		detector, _, pairs, _ := newDetector()
		pairs.err = errors.New("db down")

		err := detector.Process(context.Background(), events.FraudSignal{
			UserID:  "worker-1",
			Signal:  events.SignalJobCompletedPair,
			Payload: domain.Metadata{"business_id": "biz-1"},
		})

		require.Error(t, err)
		assert.True(t, shouldRequeue(err))
	})

	t.Run("audit write fails", func(t *testing.T) {
		detector, velocity, _, activities := newDetector()
		velocity.counts["fraud:jobs:biz-1"] = jobPostLimit
		activities.err = errors.New("db down")

		err := detector.Process(context.Background(), events.FraudSignal{
			UserID: "biz-1",
			Signal: events.SignalJobPosted,
		})

		require.Error(t, err)
		assert.True(t, shouldRequeue(err))
	})
}

func TestFraudDetector_UnknownSignalIsDropped(t *testing.T) {
	detector, _, _, activities := newDetector()

	err := detector.Process(context.Background(), events.FraudSignal{
		UserID: "worker-1",
		Signal: "teleported",
	})

	require.NoError(t, err)
	assert.Empty(t, activities.recorded)
}
