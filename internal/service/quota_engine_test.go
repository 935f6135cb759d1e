package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/internal/repository"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

// memStore is an in-memory quota store. Each unit of work runs on a copy of
// the rows that replaces the originals only when fn succeeds.
type memStore struct {
	mu         sync.Mutex
	rows       map[string]models.Activity
	limits     map[string]int
	lockErr    error
	failStatus int
	statusLog  []string
	clock      time.Time
}

func newMemStore() *memStore {
	return &memStore{
		rows:       map[string]models.Activity{},
		limits:     map[string]int{},
		failStatus: -1,
		clock:      time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func pairOf(studentID, quotaCategoryID string) string { return studentID + "/" + quotaCategoryID }

func (m *memStore) setLimit(studentID, quotaCategoryID string, limit int) {
	m.limits[pairOf(studentID, quotaCategoryID)] = limit
}

// add stores an activity of stu-1 in qc-1 created one minute after the previous one.
func (m *memStore) add(id string, requested int, approved *int, status models.ActivityStatus) {
	m.clock = m.clock.Add(time.Minute)
	m.rows[id] = models.Activity{
		ID:              id,
		StudentID:       "stu-1",
		QuotaCategoryID: "qc-1",
		Title:           id,
		RequestedHours:  requested,
		ApprovedHours:   approved,
		Status:          status,
		CreatedAt:       m.clock,
		UpdatedAt:       m.clock,
	}
}

func (m *memStore) get(id string) models.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memStore) committed(studentID, quotaCategoryID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, a := range m.rows {
		if a.StudentID == studentID && a.QuotaCategoryID == quotaCategoryID && a.Status == models.ActivityApproved {
			total += *a.ApprovedHours
		}
	}
	return total
}

func (m *memStore) FindByID(_ context.Context, id string) (*models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (m *memStore) WithinPair(_ context.Context, studentID, quotaCategoryID string, fn func(repository.PairTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return m.lockErr
	}
	tx := &memTx{store: m, studentID: studentID, quotaCategoryID: quotaCategoryID, rows: make(map[string]models.Activity, len(m.rows))}
	for id, a := range m.rows {
		tx.rows[id] = a
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.rows = tx.rows
	m.statusLog = append(m.statusLog, tx.statusLog...)
	return nil
}

type memTx struct {
	store           *memStore
	studentID       string
	quotaCategoryID string
	rows            map[string]models.Activity
	statusLog       []string
	statusWrites    int
}

func (t *memTx) inPair(a models.Activity) bool {
	return a.StudentID == t.studentID && a.QuotaCategoryID == t.quotaCategoryID
}

func (t *memTx) Activity(_ context.Context, id string) (*models.Activity, error) {
	a, ok := t.rows[id]
	if !ok || !t.inPair(a) {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (t *memTx) Limit(context.Context) (int, error) {
	limit, ok := t.store.limits[pairOf(t.studentID, t.quotaCategoryID)]
	if !ok {
		return 0, fmt.Errorf("pair %s: %w", pairOf(t.studentID, t.quotaCategoryID), repository.ErrQuotaNotConfigured)
	}
	return limit, nil
}

func (t *memTx) Committed(_ context.Context, excludeID string) (int, error) {
	total := 0
	for id, a := range t.rows {
		if t.inPair(a) && a.Status == models.ActivityApproved && id != excludeID {
			total += *a.ApprovedHours
		}
	}
	return total, nil
}

func afterCursor(a models.Activity, c models.SiblingCursor) bool {
	undecided := a.ApprovedHours == nil
	if undecided != c.Undecided {
		return c.Undecided && !undecided
	}
	if !a.CreatedAt.Equal(c.CreatedAt) {
		return a.CreatedAt.After(c.CreatedAt)
	}
	return a.ID > c.ID
}

func (t *memTx) Siblings(_ context.Context, statuses []models.ActivityStatus, excludeID string, after *models.SiblingCursor, limit int) ([]models.Activity, error) {
	wanted := map[models.ActivityStatus]bool{}
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []models.Activity
	for id, a := range t.rows {
		if !t.inPair(a) || !wanted[a.Status] || id == excludeID {
			continue
		}
		if after != nil && !afterCursor(a, *after) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return afterCursor(out[j], models.CursorOf(out[i]))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) Insert(_ context.Context, a *models.Activity) error {
	t.store.clock = t.store.clock.Add(time.Minute)
	a.StudentID = t.studentID
	a.QuotaCategoryID = t.quotaCategoryID
	a.CreatedAt = t.store.clock
	a.UpdatedAt = t.store.clock
	t.rows[a.ID] = *a
	return nil
}

func (t *memTx) UpdateDetails(_ context.Context, a *models.Activity) error {
	t.rows[a.ID] = *a
	return nil
}

func (t *memTx) SetDecision(_ context.Context, id string, hours int, status models.ActivityStatus, decidedBy string) error {
	a := t.rows[id]
	a.ApprovedHours = &hours
	a.Status = status
	a.DecidedBy = &decidedBy
	t.rows[id] = a
	return nil
}

func (t *memTx) SetStatus(_ context.Context, id string, status models.ActivityStatus) error {
	if t.store.failStatus >= 0 && t.statusWrites == t.store.failStatus {
		return errors.New("connection reset")
	}
	t.statusWrites++
	a := t.rows[id]
	a.Status = status
	t.rows[id] = a
	t.statusLog = append(t.statusLog, id)
	return nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	if _, ok := t.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(t.rows, id)
	return nil
}

type recordingInvalidator struct {
	students []string
}

func (r *recordingInvalidator) StudentHoursStale(_ context.Context, studentID string) {
	r.students = append(r.students, studentID)
}

func newTestEngine(store *memStore, batch int, policy ZeroLimitPolicy) (*QuotaEngine, *recordingInvalidator) {
	inv := &recordingInvalidator{}
	return NewQuotaEngine(store, store, inv, nil, nil, QuotaEngineConfig{BatchSize: batch, ZeroLimitPolicy: policy}), inv
}

func TestAdmitScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 8, nil, models.ActivityPending)
	store.add("B", 5, nil, models.ActivityPending)
	store.add("C", 2, nil, models.ActivityPending)
	engine, inv := newTestEngine(store, 100, ZeroLimitUnbounded)

	res, err := engine.Admit(ctx, "A", intPtr(8), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActivityApproved, res.Activity.Status)
	assert.Equal(t, 8, res.Committed)
	assert.Equal(t, 8, store.committed("stu-1", "qc-1"))

	_, err = engine.Admit(ctx, "B", intPtr(5), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrQuotaExhausted)
	assert.Equal(t, models.ActivityPending, store.get("B").Status)
	assert.Nil(t, store.get("B").ApprovedHours)

	changed, err := engine.Recompute(ctx, "stu-1", "qc-1")
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, models.ActivityPending, store.get("B").Status)

	res, err = engine.Admit(ctx, "C", intPtr(2), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, 10, res.Committed)
	assert.Equal(t, 1, res.SiblingsUpdated)
	assert.Equal(t, models.ActivityLimitReached, store.get("B").Status)

	require.NoError(t, engine.DeleteActivity(ctx, "A", nil))
	assert.Equal(t, 2, store.committed("stu-1", "qc-1"))
	assert.Equal(t, models.ActivityPending, store.get("B").Status)

	assert.Equal(t, []string{"stu-1", "stu-1", "stu-1"}, inv.students)
}

func TestAdmitValidationErrorsLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 8, nil, models.ActivityPending)
	engine, inv := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(ctx, "A", nil, "coord-1")
	assert.ErrorIs(t, err, appErrors.ErrMissingValue)

	_, err = engine.Admit(ctx, "A", intPtr(-1), "coord-1")
	assert.ErrorIs(t, err, appErrors.ErrNegativeValue)

	_, err = engine.Admit(ctx, "A", intPtr(9), "coord-1")
	assert.ErrorIs(t, err, appErrors.ErrExceedsRequested)
	assert.True(t, appErrors.IsValidation(err))

	assert.Nil(t, store.get("A").ApprovedHours)
	assert.Equal(t, models.ActivityPending, store.get("A").Status)
	assert.Empty(t, inv.students)
}

func TestAdmitAlreadyBlocked(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 10, intPtr(10), models.ActivityApproved)
	store.add("B", 4, nil, models.ActivityLimitReached)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(context.Background(), "B", intPtr(0), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrAlreadyBlocked)
	assert.True(t, appErrors.IsBusinessState(err))
	assert.Equal(t, models.ActivityLimitReached, store.get("B").Status)
}

func TestAdmitRefusedWhenOthersHoldTheLimit(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 10, intPtr(10), models.ActivityApproved)
	store.add("B", 4, nil, models.ActivityPending)
	engine, inv := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(context.Background(), "B", intPtr(0), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrQuotaExhausted)
	assert.True(t, appErrors.IsBusinessState(err))
	assert.Nil(t, store.get("B").ApprovedHours)
	assert.Equal(t, models.ActivityPending, store.get("B").Status)
	assert.Equal(t, 10, store.committed("stu-1", "qc-1"))
	assert.Empty(t, inv.students)
}

func TestAdmitRejectionDoesNotConsumeQuota(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 6, intPtr(6), models.ActivityApproved)
	store.add("B", 4, nil, models.ActivityPending)
	store.add("C", 4, nil, models.ActivityPending)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	res, err := engine.Admit(context.Background(), "B", intPtr(0), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActivityRejected, res.Activity.Status)
	assert.Equal(t, 6, res.Committed)

	res, err = engine.Admit(context.Background(), "C", intPtr(4), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActivityApproved, res.Activity.Status)
	assert.Equal(t, 10, res.Committed)
	assert.Equal(t, models.ActivityRejected, store.get("B").Status)
}

func TestAdmitMissingQuotaIsIntegrityError(t *testing.T) {
	store := newMemStore()
	store.add("A", 8, nil, models.ActivityPending)
	engine, inv := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(context.Background(), "A", intPtr(4), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrQuotaMissing)
	assert.Equal(t, appErrors.KindIntegrity, appErrors.KindOf(err))
	assert.Nil(t, store.get("A").ApprovedHours)
	assert.Empty(t, inv.students)
}

func TestAdmitLockTimeoutIsRetryable(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 8, nil, models.ActivityPending)
	store.lockErr = fmt.Errorf("acquire pair lock: %w", repository.ErrLockTimeout)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(context.Background(), "A", intPtr(4), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrLockTimeout)
	assert.True(t, appErrors.IsRetryable(err))
}

func TestAdmitUnknownActivity(t *testing.T) {
	engine, _ := newTestEngine(newMemStore(), 100, ZeroLimitUnbounded)
	_, err := engine.Admit(context.Background(), "missing", intPtr(1), "coord-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAdmitIsAtomicWhenCascadeFails(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 10, nil, models.ActivityPending)
	store.add("B", 3, nil, models.ActivityPending)
	store.failStatus = 0
	engine, inv := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(context.Background(), "A", intPtr(10), "coord-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Nil(t, store.get("A").ApprovedHours)
	assert.Equal(t, models.ActivityPending, store.get("A").Status)
	assert.Equal(t, models.ActivityPending, store.get("B").Status)
	assert.Empty(t, inv.students)
}

func TestRejectedSiblingIsNeverBlocked(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("R", 5, intPtr(0), models.ActivityRejected)
	store.add("A", 10, nil, models.ActivityPending)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	_, err := engine.Admit(context.Background(), "A", intPtr(10), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActivityRejected, store.get("R").Status)
}

func TestCascadeReachesFixedPoint(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 6)
	store.add("A", 6, intPtr(6), models.ActivityApproved)
	store.add("B", 2, nil, models.ActivityPending)
	store.add("C", 2, nil, models.ActivityPending)
	store.add("D", 2, intPtr(0), models.ActivityRejected)
	engine, _ := newTestEngine(store, 2, ZeroLimitUnbounded)

	first, err := engine.Recompute(ctx, "stu-1", "qc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := engine.Recompute(ctx, "stu-1", "qc-1")
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestDeletionUnblocksInCreationOrder(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("X", 10, intPtr(10), models.ActivityApproved)
	store.add("A", 4, nil, models.ActivityLimitReached)
	store.add("B", 4, nil, models.ActivityLimitReached)
	store.add("R", 4, intPtr(0), models.ActivityRejected)
	engine, inv := newTestEngine(store, 1, ZeroLimitUnbounded)

	require.NoError(t, engine.DeleteActivity(context.Background(), "X", nil))

	assert.Equal(t, models.ActivityPending, store.get("A").Status)
	assert.Equal(t, models.ActivityPending, store.get("B").Status)
	assert.Equal(t, models.ActivityRejected, store.get("R").Status)
	assert.Equal(t, []string{"A", "B"}, store.statusLog)
	assert.Equal(t, []string{"stu-1"}, inv.students)
}

func TestDeleteActivityGuardVetoes(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 4, nil, models.ActivityPending)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	err := engine.DeleteActivity(context.Background(), "A", func(models.Activity) error {
		return appErrors.Clone(appErrors.ErrForbidden, "not yours")
	})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, findErr := store.FindByID(context.Background(), "A")
	assert.NoError(t, findErr)
}

func TestOnActivityDeletedOnlyTouchesBlocked(t *testing.T) {
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 4, intPtr(4), models.ActivityApproved)
	store.add("B", 4, nil, models.ActivityLimitReached)
	// A PENDING row at a fully committed ledger is stale but outside the deletion scope.
	store.add("C", 4, nil, models.ActivityPending)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	changed, err := engine.OnActivityDeleted(context.Background(), "stu-1", "qc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.ActivityPending, store.get("B").Status)
	assert.Equal(t, models.ActivityPending, store.get("C").Status)
}

func TestZeroLimitPolicies(t *testing.T) {
	ctx := context.Background()

	unbounded := newMemStore()
	unbounded.setLimit("stu-1", "qc-1", 0)
	unbounded.add("A", 40, nil, models.ActivityPending)
	engine, _ := newTestEngine(unbounded, 100, ZeroLimitUnbounded)
	res, err := engine.Admit(ctx, "A", intPtr(40), "coord-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActivityApproved, res.Activity.Status)

	blocked := newMemStore()
	blocked.setLimit("stu-1", "qc-1", 0)
	blocked.add("A", 40, nil, models.ActivityPending)
	engine, _ = newTestEngine(blocked, 100, ZeroLimitBlocked)
	_, err = engine.Admit(ctx, "A", intPtr(40), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrQuotaExhausted)
	_, err = engine.Admit(ctx, "A", intPtr(0), "coord-1")
	require.ErrorIs(t, err, appErrors.ErrQuotaExhausted)
	assert.Nil(t, blocked.get("A").ApprovedHours)
}

func TestRegisterResolvesInitialStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 10, intPtr(10), models.ActivityApproved)
	engine, inv := newTestEngine(store, 100, ZeroLimitUnbounded)

	activity := &models.Activity{ID: "N", StudentID: "stu-1", QuotaCategoryID: "qc-1", Title: "Talk", RequestedHours: 2}
	require.NoError(t, engine.Register(ctx, activity))
	assert.Equal(t, models.ActivityLimitReached, activity.Status)
	assert.Equal(t, models.ActivityLimitReached, store.get("N").Status)
	assert.Equal(t, []string{"stu-1"}, inv.students)

	other := &models.Activity{ID: "M", StudentID: "stu-1", QuotaCategoryID: "qc-2", Title: "Fair", RequestedHours: 2}
	err := engine.Register(ctx, other)
	assert.ErrorIs(t, err, appErrors.ErrQuotaMissing)
}

func TestReviseOnlyUndecided(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setLimit("stu-1", "qc-1", 10)
	store.add("A", 4, nil, models.ActivityPending)
	store.add("D", 4, intPtr(4), models.ActivityApproved)
	engine, _ := newTestEngine(store, 100, ZeroLimitUnbounded)

	revised, err := engine.Revise(ctx, "A", func(a *models.Activity) error {
		a.RequestedHours = 6
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 6, revised.RequestedHours)
	assert.Equal(t, models.ActivityPending, revised.Status)
	assert.Equal(t, 6, store.get("A").RequestedHours)

	_, err = engine.Revise(ctx, "D", func(a *models.Activity) error { return nil })
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

// TestQuotaConservation drives random admissions, deletions and registrations
// and checks the ledger and bounds invariants after every step.
func TestQuotaConservation(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		store := newMemStore()
		limit := 1 + rng.Intn(15)
		store.setLimit("stu-1", "qc-1", limit)
		engine, _ := newTestEngine(store, 1+rng.Intn(3), ZeroLimitUnbounded)

		next := 0
		for step := 0; step < 60; step++ {
			ids := make([]string, 0, len(store.rows))
			for id := range store.rows {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			switch op := rng.Intn(4); {
			case op == 0 || len(ids) == 0:
				next++
				a := &models.Activity{ID: fmt.Sprintf("act-%03d", next), StudentID: "stu-1", QuotaCategoryID: "qc-1", RequestedHours: 1 + rng.Intn(8)}
				require.NoError(t, engine.Register(ctx, a))
			case op == 1:
				require.NoError(t, engine.DeleteActivity(ctx, ids[rng.Intn(len(ids))], nil))
			default:
				id := ids[rng.Intn(len(ids))]
				_, err := engine.Admit(ctx, id, intPtr(rng.Intn(10)), "coord-1")
				if err != nil {
					kind := appErrors.KindOf(err)
					require.Contains(t, []appErrors.Kind{appErrors.KindValidation, appErrors.KindBusiness}, kind, err.Error())
				}
			}

			committed := store.committed("stu-1", "qc-1")
			require.LessOrEqual(t, committed, limit)
			for _, a := range store.rows {
				if a.ApprovedHours != nil {
					require.GreaterOrEqual(t, *a.ApprovedHours, 0)
					require.LessOrEqual(t, *a.ApprovedHours, a.RequestedHours)
				}
				if a.Status == models.ActivityLimitReached {
					require.Nil(t, a.ApprovedHours)
				}
			}
		}

		changed, err := engine.Recompute(ctx, "stu-1", "qc-1")
		require.NoError(t, err)
		again, err := engine.Recompute(ctx, "stu-1", "qc-1")
		require.NoError(t, err)
		assert.Zero(t, again, "round %d after %d rewrites", round, changed)
	}
}
