package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/internal/repository"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

type quotaStore interface {
	WithinPair(ctx context.Context, studentID, quotaCategoryID string, fn func(repository.PairTx) error) error
}

type activityFinder interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

// Sibling scopes walked by the cascade.
var (
	// Approved activities are locked into the ledger and never revisited.
	admissionScope = []models.ActivityStatus{models.ActivityPending, models.ActivityRejected, models.ActivityLimitReached}
	// A deletion only frees quota, so only blocked activities can change.
	deletionScope = []models.ActivityStatus{models.ActivityLimitReached}
)

const (
	triggerAdmission = "admission"
	triggerDeletion  = "deletion"
	triggerRecompute = "recompute"
)

// QuotaEngineConfig tunes the engine.
type QuotaEngineConfig struct {
	BatchSize       int
	ZeroLimitPolicy ZeroLimitPolicy
}

// AdmissionResult reports the state of the pair after an admission.
type AdmissionResult struct {
	Activity        models.Activity
	Committed       int
	Limit           int
	SiblingsUpdated int
}

// QuotaEngine admits coordinator decisions against the per (student, quota
// category) hour limit and keeps sibling statuses consistent with the ledger.
// Every operation runs as one pair-locked transaction.
type QuotaEngine struct {
	store       quotaStore
	activities  activityFinder
	invalidator HoursInvalidator
	metrics     *MetricsService
	logger      *zap.Logger
	batchSize   int
	policy      ZeroLimitPolicy
}

// NewQuotaEngine constructs the engine. invalidator and metrics may be nil.
func NewQuotaEngine(store quotaStore, activities activityFinder, invalidator HoursInvalidator, metrics *MetricsService, logger *zap.Logger, cfg QuotaEngineConfig) *QuotaEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ZeroLimitPolicy == "" {
		cfg.ZeroLimitPolicy = ZeroLimitUnbounded
	}
	return &QuotaEngine{
		store:       store,
		activities:  activities,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		batchSize:   cfg.BatchSize,
		policy:      cfg.ZeroLimitPolicy,
	}
}

// Admit records decided hours on an activity, resolves its status against the
// updated ledger and cascades over the undecided or rejected siblings.
func (e *QuotaEngine) Admit(ctx context.Context, activityID string, decided *int, decidedBy string) (*AdmissionResult, error) {
	if decided == nil {
		e.metrics.RecordAdmission(strings.ToLower(appErrors.ErrMissingValue.Code))
		return nil, appErrors.Clone(appErrors.ErrMissingValue, "")
	}
	if *decided < 0 {
		e.metrics.RecordAdmission(strings.ToLower(appErrors.ErrNegativeValue.Code))
		return nil, appErrors.Clone(appErrors.ErrNegativeValue, "")
	}
	hours := *decided

	current, err := e.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, e.translate(err, "admit", zap.String("activity_id", activityID))
	}

	start := time.Now()
	var result AdmissionResult
	err = e.store.WithinPair(ctx, current.StudentID, current.QuotaCategoryID, func(tx repository.PairTx) error {
		activity, err := tx.Activity(ctx, activityID)
		if err != nil {
			return err
		}
		if hours > activity.RequestedHours {
			return appErrors.Clone(appErrors.ErrExceedsRequested,
				fmt.Sprintf("decided hours (%d) cannot exceed the requested hours (%d)", hours, activity.RequestedHours))
		}
		if activity.Status == models.ActivityLimitReached {
			return appErrors.Clone(appErrors.ErrAlreadyBlocked, "")
		}

		limit, err := tx.Limit(ctx)
		if err != nil {
			return err
		}
		committed, err := tx.Committed(ctx, activity.ID)
		if err != nil {
			return err
		}
		// Refused once other activities hold the whole limit, even for a 0h decision.
		if e.policy.Bounded(limit) && (committed >= limit || committed+hours > limit) {
			return appErrors.Clone(appErrors.ErrQuotaExhausted,
				fmt.Sprintf("%dh committed + %dh decided exceeds the %dh limit", committed, hours, limit))
		}

		status := ResolveStatus(&hours, committed, limit, e.policy)
		if err := tx.SetDecision(ctx, activity.ID, hours, status, decidedBy); err != nil {
			return err
		}
		activity.ApprovedHours = &hours
		activity.Status = status
		if status == models.ActivityApproved {
			committed += hours
		}

		updated, total, err := e.cascade(ctx, tx, admissionScope, activity.ID, limit, committed)
		if err != nil {
			return err
		}
		result = AdmissionResult{Activity: *activity, Committed: total, Limit: limit, SiblingsUpdated: updated}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			e.metrics.RecordAdmission(strings.ToLower(appErr.Code))
			if appErrors.IsBusinessState(appErr) {
				e.logger.Info("admission refused",
					zap.String("activity_id", activityID),
					zap.String("code", appErr.Code),
					zap.String("reason", appErr.Message))
			}
		}
		return nil, e.translate(err, "admit", zap.String("activity_id", activityID))
	}

	e.metrics.RecordAdmission(strings.ToLower(string(result.Activity.Status)))
	e.metrics.RecordCascade(triggerAdmission, result.SiblingsUpdated, time.Since(start))
	e.notify(ctx, current.StudentID)
	return &result, nil
}

// OnActivityDeleted re-evaluates the blocked siblings of a pair after one of
// its activities was removed. It returns the number of rewritten statuses.
func (e *QuotaEngine) OnActivityDeleted(ctx context.Context, studentID, quotaCategoryID string) (int, error) {
	start := time.Now()
	var updated int
	err := e.store.WithinPair(ctx, studentID, quotaCategoryID, func(tx repository.PairTx) error {
		n, err := e.recascade(ctx, tx, deletionScope)
		updated = n
		return err
	})
	if err != nil {
		return 0, e.translate(err, "deletion cascade", zap.String("student_id", studentID), zap.String("quota_category_id", quotaCategoryID))
	}
	e.metrics.RecordCascade(triggerDeletion, updated, time.Since(start))
	e.notify(ctx, studentID)
	return updated, nil
}

// DeleteActivity removes an activity and runs the deletion cascade in the same
// transaction. guard, when set, inspects the locked row and may veto the delete.
func (e *QuotaEngine) DeleteActivity(ctx context.Context, activityID string, guard func(models.Activity) error) error {
	current, err := e.activities.FindByID(ctx, activityID)
	if err != nil {
		return e.translate(err, "delete activity", zap.String("activity_id", activityID))
	}

	start := time.Now()
	var updated int
	err = e.store.WithinPair(ctx, current.StudentID, current.QuotaCategoryID, func(tx repository.PairTx) error {
		activity, err := tx.Activity(ctx, activityID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(*activity); err != nil {
				return err
			}
		}
		if err := tx.Delete(ctx, activity.ID); err != nil {
			return err
		}
		updated, err = e.recascade(ctx, tx, deletionScope)
		return err
	})
	if err != nil {
		return e.translate(err, "delete activity", zap.String("activity_id", activityID))
	}
	e.metrics.RecordCascade(triggerDeletion, updated, time.Since(start))
	e.notify(ctx, current.StudentID)
	return nil
}

// Register inserts a new activity with its initial status: LIMIT_REACHED when
// the pair's quota is already fully committed, PENDING otherwise.
func (e *QuotaEngine) Register(ctx context.Context, activity *models.Activity) error {
	err := e.store.WithinPair(ctx, activity.StudentID, activity.QuotaCategoryID, func(tx repository.PairTx) error {
		limit, err := tx.Limit(ctx)
		if err != nil {
			return err
		}
		committed, err := tx.Committed(ctx, "")
		if err != nil {
			return err
		}
		activity.ApprovedHours = nil
		activity.Status = ResolveStatus(nil, committed, limit, e.policy)
		return tx.Insert(ctx, activity)
	})
	if err != nil {
		return e.translate(err, "register activity", zap.String("student_id", activity.StudentID))
	}
	e.notify(ctx, activity.StudentID)
	return nil
}

// Revise applies edit to an activity that has no decision yet and persists it
// with its status re-resolved. Decided activities yield CONFLICT.
func (e *QuotaEngine) Revise(ctx context.Context, activityID string, edit func(*models.Activity) error) (*models.Activity, error) {
	current, err := e.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, e.translate(err, "revise activity", zap.String("activity_id", activityID))
	}

	var revised models.Activity
	err = e.store.WithinPair(ctx, current.StudentID, current.QuotaCategoryID, func(tx repository.PairTx) error {
		activity, err := tx.Activity(ctx, activityID)
		if err != nil {
			return err
		}
		if activity.ApprovedHours != nil || !activity.Status.Undecided() {
			return appErrors.Clone(appErrors.ErrConflict, "only activities awaiting a decision can be edited")
		}
		if err := edit(activity); err != nil {
			return err
		}
		limit, err := tx.Limit(ctx)
		if err != nil {
			return err
		}
		committed, err := tx.Committed(ctx, activity.ID)
		if err != nil {
			return err
		}
		activity.Status = ResolveStatus(nil, committed, limit, e.policy)
		if err := tx.UpdateDetails(ctx, activity); err != nil {
			return err
		}
		revised = *activity
		return nil
	})
	if err != nil {
		return nil, e.translate(err, "revise activity", zap.String("activity_id", activityID))
	}
	e.notify(ctx, current.StudentID)
	return &revised, nil
}

// Recompute runs the cascade over every non-approved activity of the pair and
// returns the number of rewritten statuses. A second run returns zero.
func (e *QuotaEngine) Recompute(ctx context.Context, studentID, quotaCategoryID string) (int, error) {
	start := time.Now()
	var updated int
	err := e.store.WithinPair(ctx, studentID, quotaCategoryID, func(tx repository.PairTx) error {
		n, err := e.recascade(ctx, tx, admissionScope)
		updated = n
		return err
	})
	if err != nil {
		return 0, e.translate(err, "recompute", zap.String("student_id", studentID), zap.String("quota_category_id", quotaCategoryID))
	}
	e.metrics.RecordCascade(triggerRecompute, updated, time.Since(start))
	if updated > 0 {
		e.notify(ctx, studentID)
	}
	return updated, nil
}

// recascade reads a fresh limit and ledger then cascades over scope.
func (e *QuotaEngine) recascade(ctx context.Context, tx repository.PairTx, scope []models.ActivityStatus) (int, error) {
	limit, err := tx.Limit(ctx)
	if err != nil {
		return 0, err
	}
	committed, err := tx.Committed(ctx, "")
	if err != nil {
		return 0, err
	}
	updated, _, err := e.cascade(ctx, tx, scope, "", limit, committed)
	return updated, err
}

// cascade walks the siblings in scope, undecided first then oldest first, and
// rewrites every status the resolver changes. committed is the pair's ledger
// at the start of the walk; it is kept current as statuses move in or out of
// APPROVED. Returns the rewrite count and the final ledger.
func (e *QuotaEngine) cascade(ctx context.Context, tx repository.PairTx, scope []models.ActivityStatus, excludeID string, limit, committed int) (int, int, error) {
	updated := 0
	var after *models.SiblingCursor
	for {
		page, err := tx.Siblings(ctx, scope, excludeID, after, e.batchSize)
		if err != nil {
			return 0, 0, err
		}
		for _, sibling := range page {
			own := 0
			if sibling.Status == models.ActivityApproved && sibling.ApprovedHours != nil {
				own = *sibling.ApprovedHours
			}
			next := ResolveStatus(sibling.ApprovedHours, committed-own, limit, e.policy)
			if next == sibling.Status {
				continue
			}
			if err := tx.SetStatus(ctx, sibling.ID, next); err != nil {
				return 0, 0, err
			}
			updated++
			switch {
			case sibling.Status == models.ActivityApproved:
				committed -= own
			case next == models.ActivityApproved:
				committed += *sibling.ApprovedHours
			}
		}
		if len(page) < e.batchSize {
			return updated, committed, nil
		}
		cursor := models.CursorOf(page[len(page)-1])
		after = &cursor
	}
}

func (e *QuotaEngine) notify(ctx context.Context, studentID string) {
	if e.invalidator != nil {
		e.invalidator.StudentHoursStale(ctx, studentID)
	}
}

// translate maps store errors onto the admission error taxonomy.
func (e *QuotaEngine) translate(err error, op string, fields ...zap.Field) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "activity not found")
	case errors.Is(err, repository.ErrLockTimeout):
		e.metrics.RecordLockTimeout()
		e.logger.Warn(op+": pair lock timeout", append(fields, zap.Error(err))...)
		return appErrors.WrapAs(err, appErrors.ErrLockTimeout, "")
	case errors.Is(err, repository.ErrQuotaNotConfigured):
		e.logger.Error(op+": quota not configured", append(fields, zap.Error(err))...)
		return appErrors.WrapAs(err, appErrors.ErrQuotaMissing, "")
	default:
		e.logger.Error(op+" failed", append(fields, zap.Error(err))...)
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, op+" failed")
	}
}
