package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/backend/internal/events"
)

func newTestProcessor() (*Processor, *fakeActivities) {
	notifications := NewNotificationProcessor(testLogger())
	detector, _, _, activities := newDetector()
	return NewProcessor(notifications, detector, testLogger()), activities
}

func envelopeFor(t *testing.T, kind string, payload any) events.Envelope {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Envelope{
		ID:      "evt-1",
		Kind:    kind,
		Payload: body,
	}
}

func TestProcessor_DispatchesNotification(t *testing.T) {
	processor, _ := newTestProcessor()

	envelope := envelopeFor(t, events.KindNotification, events.Notification{
		UserID: "worker-1",
		Kind:   events.NotificationPaymentReleased,
	})

	require.NoError(t, processor.Process(context.Background(), envelope))
}

func TestProcessor_DispatchesFraudSignal(t *testing.T) {
	processor, activities := newTestProcessor()
	ctx := context.Background()

	signal := events.FraudSignal{
		UserID: "biz-1",
		Signal: events.SignalJobPosted,
	}

	for i := 0; i < jobPostLimit+1; i++ {
		require.NoError(t, processor.Process(ctx, envelopeFor(t, events.KindFraudSignal, signal)))
	}

	assert.Len(t, activities.recorded, 1)
}

func TestProcessor_MalformedPayloadFails(t *testing.T) {
	processor, _ := newTestProcessor()

	envelope := events.Envelope{
		ID:      "evt-bad",
		Kind:    events.KindNotification,
		Payload: json.RawMessage(`{"user_id":`),
	}

	err := processor.Process(context.Background(), envelope)
	require.Error(t, err)
	assert.False(t, shouldRequeue(err), "malformed payloads must not requeue")
}

func TestProcessor_UnknownKindIsDropped(t *testing.T) {
	processor, _ := newTestProcessor()

	envelope := envelopeFor(t, "metrics", map[string]string{"foo": "bar"})

	require.NoError(t, processor.Process(context.Background(), envelope))
}

type fakeSettler struct {
	retried   int
	released  int
	retryErr  error
	sweepErrs int
}

func (f *fakeSettler) RetryFailedPayouts(_ context.Context, _ int) (int, error) {
	if f.retryErr != nil {
		f.sweepErrs++
		return 0, f.retryErr
	}
	return f.retried, nil
}

func (f *fakeSettler) ReleaseExpiredEscrows(_ context.Context, _ int) (int, error) {
	return f.released, nil
}

func TestSweeper_SweepRunsBothPasses(t *testing.T) {
	settler := &fakeSettler{retried: 2, released: 3}
	sweeper := NewSweeper(settler, "@every 5m", testLogger())

	sweeper.Sweep(context.Background())
}

func TestSweeper_PayoutFailureStillReleasesEscrows(t *testing.T) {
	settler := &fakeSettler{retryErr: errors.New("db down"), released: 1}
	sweeper := NewSweeper(settler, "@every 5m", testLogger())

	sweeper.Sweep(context.Background())

	assert.Equal(t, 1, settler.sweepErrs)
}
