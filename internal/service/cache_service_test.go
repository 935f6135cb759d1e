package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
	"github.com/noah-isme/activity-hours-api/pkg/jobs"
)

type memoryCacheRepo struct {
	mu       sync.Mutex
	items    map[string][]byte
	deleted  []string
	patterns []string
	failWith error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, key := range keys {
		delete(m.items, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	return m.failWith
}

func (m *memoryCacheRepo) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	var out map[string]int
	hit, err := svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "k", map[string]int{"a": 1}, 0))
	hit, err = svc.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, out["a"])
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, false)

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(context.Background(), "k", 1, 0))
	assert.False(t, repo.has("k"))

	var nilSvc *CacheService
	hit, err := nilSvc.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceInvalidateChoosesStrategy(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, true)
	ctx := context.Background()

	require.NoError(t, svc.Invalidate(ctx, HoursCacheKey("s1")))
	require.NoError(t, svc.Invalidate(ctx, "hours:student:*"))

	assert.Equal(t, []string{"hours:student:s1"}, repo.deleted)
	assert.Equal(t, []string{"hours:student:*"}, repo.patterns)
}

func TestCacheServiceGetSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.failWith = errors.New("connection reset")
	svc := NewCacheService(repo, nil, 0, nil, true)

	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.False(t, hit)
	assert.Error(t, err)
}

type recordingEnqueuer struct {
	jobs []jobs.Job
	err  error
}

func (r *recordingEnqueuer) TryEnqueue(job jobs.Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func TestQueuedInvalidatorEnqueuesJob(t *testing.T) {
	queue := &recordingEnqueuer{}
	inv := NewQueuedInvalidator(queue, NewMetricsService(), nil)

	inv.StudentHoursStale(context.Background(), "s1")

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, InvalidationJobType, queue.jobs[0].Type)
	assert.Equal(t, "s1", queue.jobs[0].Payload)
	assert.NotEmpty(t, queue.jobs[0].ID)
}

func TestQueuedInvalidatorCountsDroppedJobs(t *testing.T) {
	metrics := NewMetricsService()
	inv := NewQueuedInvalidator(&recordingEnqueuer{err: jobs.ErrQueueFull}, metrics, nil)

	inv.StudentHoursStale(context.Background(), "s1")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.invalidationLost))
}

func TestInvalidationHandler(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, 0, nil, true)
	metrics := NewMetricsService()
	handler := NewInvalidationHandler(cache, metrics)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, HoursCacheKey("s1"), models.HoursSummary{StudentID: "s1"}, 0))
	require.NoError(t, handler(ctx, jobs.Job{Type: InvalidationJobType, Payload: "s1"}))
	assert.False(t, repo.has(HoursCacheKey("s1")))

	require.NoError(t, handler(ctx, jobs.Job{Type: InvalidationJobType, Payload: 42}))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.invalidationLost))

	repo.failWith = errors.New("redis down")
	assert.Error(t, handler(ctx, jobs.Job{Type: InvalidationJobType, Payload: "s2"}))
}

func TestDirectInvalidatorEvictsSynchronously(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, 0, nil, true)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, HoursCacheKey("s1"), 1, 0))

	NewDirectInvalidator(cache, nil).StudentHoursStale(ctx, "s1")

	assert.False(t, repo.has(HoursCacheKey("s1")))
}
