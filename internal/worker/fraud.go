package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/events"
)

// Velocity thresholds. Exceeding one produces an audit record, never an
// enforcement action.
const (
	jobPostLimit       = 3
	jobPostWindow      = 10 * time.Minute
	applicationLimit   = 10
	applicationWindow  = 5 * time.Minute
	collusionPairLimit = 5
	collusionWindowDay = 7
)

// VelocityCounter counts actions inside a sliding window.
type VelocityCounter interface {
	Bump(ctx context.Context, key string, window time.Duration) (int64, error)
}

// redisVelocity backs the counter with Redis INCR plus a window-sized TTL.
type redisVelocity struct {
	client *redis.Client
}

// NewRedisVelocity wraps a Redis client as a VelocityCounter.
func NewRedisVelocity(client *redis.Client) VelocityCounter {
	return &redisVelocity{client: client}
}

func (r *redisVelocity) Bump(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment velocity counter: %w", err)
	}

	// first hit starts the window
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set velocity counter expiry: %w", err)
		}
	}

	return count, nil
}

// PairCounter reports how often a worker and business completed jobs
// together recently.
type PairCounter interface {
	CountRecentCompletedPairs(ctx context.Context, workerID, businessID string, windowDays int) (int, error)
}

// ActivityRecorder persists suspicious activity audit records.
type ActivityRecorder interface {
	CreateSuspiciousActivity(ctx context.Context, activity *domain.SuspiciousActivity) error
}

// FraudDetector turns fraud signals into suspicious-activity records.
// Burst counters live in Redis; the collusion check counts completed
// worker/business pairs in the database.
type FraudDetector struct {
	velocity   VelocityCounter
	pairs      PairCounter
	activities ActivityRecorder
	logger     *slog.Logger
}

// NewFraudDetector creates a new FraudDetector instance
func NewFraudDetector(velocity VelocityCounter, pairs PairCounter, activities ActivityRecorder, logger *slog.Logger) *FraudDetector {
	return &FraudDetector{
		velocity:   velocity,
		pairs:      pairs,
		activities: activities,
		logger:     logger,
	}
}

// Process evaluates one signal against its velocity threshold.
func (d *FraudDetector) Process(ctx context.Context, signal events.FraudSignal) error {
	switch signal.Signal {
	case events.SignalJobPosted:
		return d.checkBurst(ctx, signal, "fraud:jobs:", jobPostWindow, jobPostLimit,
			domain.SeverityMedium, "job posting burst")

	case events.SignalApplicationSubmitted:
		return d.checkBurst(ctx, signal, "fraud:applications:", applicationWindow, applicationLimit,
			domain.SeverityMedium, "application burst")

	case events.SignalApplicationAccepted, events.SignalJobCompletedPair:
		return d.checkCollusion(ctx, signal)

	default:
		d.logger.Warn("Unknown fraud signal, dropping",
			slog.String("signal", signal.Signal),
			slog.String("user_id", signal.UserID),
		)
		return nil
	}
}

// checkBurst counts actions inside a sliding Redis window and records an
// audit entry once the count passes the limit.
func (d *FraudDetector) checkBurst(ctx context.Context, signal events.FraudSignal, keyPrefix string, window time.Duration, limit int64, severity, reason string) error {
	if signal.UserID == "" {
		d.logger.Warn("Dropping fraud signal without user",
			slog.String("signal", signal.Signal),
		)
		return nil
	}

	count, err := d.velocity.Bump(ctx, keyPrefix+signal.UserID, window)
	if err != nil {
		return NewRetryableError(err)
	}

	if count <= limit {
		return nil
	}

	return d.record(ctx, signal, severity, reason, domain.Metadata{
		"count":          count,
		"limit":          limit,
		"window_seconds": int(window.Seconds()),
	})
}

// checkCollusion flags worker/business pairs that complete jobs together
// unusually often.
func (d *FraudDetector) checkCollusion(ctx context.Context, signal events.FraudSignal) error {
	businessID, _ := signal.Payload["business_id"].(string)
	if signal.UserID == "" || businessID == "" {
		d.logger.Warn("Dropping pair signal without worker or business",
			slog.String("worker_id", signal.UserID),
			slog.String("business_id", businessID),
		)
		return nil
	}

	count, err := d.pairs.CountRecentCompletedPairs(ctx, signal.UserID, businessID, collusionWindowDay)
	if err != nil {
		return NewRetryableError(fmt.Errorf("failed to count completed pairs: %w", err))
	}

	if count <= collusionPairLimit {
		return nil
	}

	return d.record(ctx, signal, domain.SeverityHigh, "repeated worker/business completions", domain.Metadata{
		"business_id": businessID,
		"count":       count,
		"limit":       collusionPairLimit,
		"window_days": collusionWindowDay,
	})
}

func (d *FraudDetector) record(ctx context.Context, signal events.FraudSignal, severity, reason string, payload domain.Metadata) error {
	if signal.RelatedID != "" {
		payload["related_id"] = signal.RelatedID
	}
	payload["signal"] = signal.Signal

	activity := &domain.SuspiciousActivity{
		ID:        uuid.NewString(),
		UserID:    signal.UserID,
		Reason:    reason,
		Severity:  severity,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := d.activities.CreateSuspiciousActivity(ctx, activity); err != nil {
		return NewRetryableError(fmt.Errorf("failed to record suspicious activity: %w", err))
	}

	d.logger.Warn("Suspicious activity recorded",
		slog.String("user_id", signal.UserID),
		slog.String("signal", signal.Signal),
		slog.String("severity", severity),
		slog.String("reason", reason),
	)

	return nil
}
