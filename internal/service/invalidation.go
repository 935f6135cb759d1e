package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/pkg/jobs"
)

// InvalidationJobType tags hours cache eviction jobs on the queue.
const InvalidationJobType = "hours.invalidate"

// HoursInvalidator is told when a student's aggregate hours view is stale.
// Delivery is best effort and never affects the outcome of the caller.
type HoursInvalidator interface {
	StudentHoursStale(ctx context.Context, studentID string)
}

// HoursCacheKey is the cache key of a student's hours summary.
func HoursCacheKey(studentID string) string {
	return "hours:student:" + studentID
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// QueuedInvalidator hands invalidations to a background queue.
type QueuedInvalidator struct {
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewQueuedInvalidator constructs the invalidator.
func NewQueuedInvalidator(queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger) *QueuedInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuedInvalidator{queue: queue, metrics: metrics, logger: logger}
}

// StudentHoursStale enqueues an eviction without waiting.
func (q *QueuedInvalidator) StudentHoursStale(_ context.Context, studentID string) {
	job := jobs.Job{ID: uuid.NewString(), Type: InvalidationJobType, Payload: studentID}
	if err := q.queue.TryEnqueue(job); err != nil {
		q.metrics.RecordInvalidationFailure()
		q.logger.Warn("hours invalidation dropped", zap.String("student_id", studentID), zap.Error(err))
	}
}

// NewInvalidationHandler returns the queue handler evicting the cached summary.
func NewInvalidationHandler(cache cacheInvalidator, metrics *MetricsService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		studentID, ok := job.Payload.(string)
		if !ok || studentID == "" {
			metrics.RecordInvalidationFailure()
			return nil
		}
		if err := cache.Invalidate(ctx, HoursCacheKey(studentID)); err != nil {
			metrics.RecordInvalidationFailure()
			return fmt.Errorf("invalidate hours for %s: %w", studentID, err)
		}
		return nil
	}
}

// DirectInvalidator evicts synchronously. The admin CLI uses it since no queue runs there.
type DirectInvalidator struct {
	cache  cacheInvalidator
	logger *zap.Logger
}

// NewDirectInvalidator constructs the invalidator.
func NewDirectInvalidator(cache cacheInvalidator, logger *zap.Logger) *DirectInvalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectInvalidator{cache: cache, logger: logger}
}

// StudentHoursStale evicts the cached summary, logging failures.
func (d *DirectInvalidator) StudentHoursStale(ctx context.Context, studentID string) {
	if err := d.cache.Invalidate(ctx, HoursCacheKey(studentID)); err != nil {
		d.logger.Warn("hours invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}
