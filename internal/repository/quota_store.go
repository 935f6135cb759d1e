package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/pkg/database"
)

var (
	// ErrLockTimeout is returned when the pair lock or a row lock could not be
	// acquired within the configured wait, or the transaction lost a
	// serialization race. Retrying the whole operation is safe.
	ErrLockTimeout = errors.New("pair lock not acquired")
	// ErrQuotaNotConfigured means no quota category exists for the student's
	// course and admission term.
	ErrQuotaNotConfigured = errors.New("quota category not configured for student")
)

const activityColumns = `id, student_id, quota_category_id, title, description, approver_notes, requested_hours, approved_hours, status, activity_date, decided_by, decided_at, created_at, updated_at`

// PairTx reads and writes the activities of one (student, quota category)
// pair inside a transaction that holds the pair lock.
type PairTx interface {
	// Activity loads one activity of the pair, locking its row.
	Activity(ctx context.Context, id string) (*models.Activity, error)
	// Limit resolves the hour limit from the student's course and admission term.
	Limit(ctx context.Context) (int, error)
	// Committed sums approved hours of APPROVED activities, excluding excludeID when set.
	Committed(ctx context.Context, excludeID string) (int, error)
	// Siblings returns up to limit activities with one of statuses, in cascade order, after the cursor.
	Siblings(ctx context.Context, statuses []models.ActivityStatus, excludeID string, after *models.SiblingCursor, limit int) ([]models.Activity, error)
	Insert(ctx context.Context, activity *models.Activity) error
	UpdateDetails(ctx context.Context, activity *models.Activity) error
	SetDecision(ctx context.Context, id string, hours int, status models.ActivityStatus, decidedBy string) error
	SetStatus(ctx context.Context, id string, status models.ActivityStatus) error
	Delete(ctx context.Context, id string) error
}

// QuotaStore opens pair-scoped units of work.
type QuotaStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewQuotaStore constructs the store. A non-positive lockTimeout waits without bound.
func NewQuotaStore(db *sqlx.DB, lockTimeout time.Duration) *QuotaStore {
	return &QuotaStore{db: db, lockTimeout: lockTimeout, now: func() time.Time { return time.Now().UTC() }}
}

// WithinPair runs fn in one transaction serialised against every other unit of
// work on the same pair. fn's writes commit together or not at all.
func (s *QuotaStore) WithinPair(ctx context.Context, studentID, quotaCategoryID string, fn func(PairTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pair transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		if _, err = tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, pairKey(studentID, quotaCategoryID)); err != nil {
		return lockError("acquire pair lock", err)
	}

	if err = fn(&pairTx{tx: tx, studentID: studentID, quotaCategoryID: quotaCategoryID, now: s.now}); err != nil {
		return lockError("pair unit of work", err)
	}

	if err = tx.Commit(); err != nil {
		return lockError("commit pair transaction", err)
	}
	return nil
}

func pairKey(studentID, quotaCategoryID string) string {
	return "quota:" + studentID + ":" + quotaCategoryID
}

func lockError(op string, err error) error {
	if database.IsLockContention(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrLockTimeout, err)
	}
	return err
}

type pairTx struct {
	tx              *sqlx.Tx
	studentID       string
	quotaCategoryID string
	now             func() time.Time
}

func (p *pairTx) Activity(ctx context.Context, id string) (*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1 AND student_id = $2 AND quota_category_id = $3 FOR UPDATE`
	var activity models.Activity
	if err := p.tx.GetContext(ctx, &activity, query, id, p.studentID, p.quotaCategoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock activity: %w", err)
	}
	return &activity, nil
}

func (p *pairTx) Limit(ctx context.Context) (int, error) {
	const query = `
SELECT qc.limit_hours
FROM students s
JOIN quota_categories pair ON pair.id = $2
JOIN quota_categories qc
	ON qc.course_id = s.course_id
	AND qc.term_id = s.admission_term_id
	AND qc.category_id = pair.category_id
WHERE s.id = $1`
	var limit int
	if err := p.tx.GetContext(ctx, &limit, query, p.studentID, p.quotaCategoryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("student %s, quota category %s: %w", p.studentID, p.quotaCategoryID, ErrQuotaNotConfigured)
		}
		return 0, fmt.Errorf("resolve quota limit: %w", err)
	}
	return limit, nil
}

func (p *pairTx) Committed(ctx context.Context, excludeID string) (int, error) {
	const query = `SELECT COALESCE(SUM(approved_hours), 0) FROM activities WHERE student_id = $1 AND quota_category_id = $2 AND status = 'APPROVED' AND id::text <> $3`
	var total int
	if err := p.tx.GetContext(ctx, &total, query, p.studentID, p.quotaCategoryID, excludeID); err != nil {
		return 0, fmt.Errorf("sum committed hours: %w", err)
	}
	return total, nil
}

func (p *pairTx) Siblings(ctx context.Context, statuses []models.ActivityStatus, excludeID string, after *models.SiblingCursor, limit int) ([]models.Activity, error) {
	states := make([]string, len(statuses))
	for i, st := range statuses {
		states[i] = string(st)
	}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE student_id = $1 AND quota_category_id = $2 AND status = ANY($3) AND id::text <> $4`
	args := []interface{}{p.studentID, p.quotaCategoryID, pq.Array(states), excludeID}
	if after != nil {
		query += ` AND ((approved_hours IS NULL) < $5 OR ((approved_hours IS NULL) = $5 AND (created_at, id::text) > ($6, $7)))`
		args = append(args, after.Undecided, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY (approved_hours IS NULL) DESC, created_at ASC, id::text ASC LIMIT %d`, limit)

	var rows []models.Activity
	if err := p.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list sibling activities: %w", err)
	}
	return rows, nil
}

func (p *pairTx) Insert(ctx context.Context, activity *models.Activity) error {
	now := p.now()
	activity.StudentID = p.studentID
	activity.QuotaCategoryID = p.quotaCategoryID
	activity.CreatedAt = now
	activity.UpdatedAt = now
	const query = `INSERT INTO activities (id, student_id, quota_category_id, title, description, approver_notes, requested_hours, approved_hours, status, activity_date, created_at, updated_at)
VALUES (:id, :student_id, :quota_category_id, :title, :description, :approver_notes, :requested_hours, :approved_hours, :status, :activity_date, :created_at, :updated_at)`
	if _, err := p.tx.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (p *pairTx) UpdateDetails(ctx context.Context, activity *models.Activity) error {
	activity.UpdatedAt = p.now()
	const query = `UPDATE activities SET title = :title, description = :description, approver_notes = :approver_notes, requested_hours = :requested_hours, activity_date = :activity_date, status = :status, updated_at = :updated_at WHERE id = :id AND approved_hours IS NULL`
	res, err := p.tx.NamedExecContext(ctx, query, activity)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return expectOne(res, "update activity")
}

func (p *pairTx) SetDecision(ctx context.Context, id string, hours int, status models.ActivityStatus, decidedBy string) error {
	var by *string
	if decidedBy != "" {
		by = &decidedBy
	}
	const query = `UPDATE activities SET approved_hours = $2, status = $3, decided_by = $4, decided_at = $5, updated_at = $5 WHERE id = $1`
	res, err := p.tx.ExecContext(ctx, query, id, hours, string(status), by, p.now())
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return expectOne(res, "record decision")
}

func (p *pairTx) SetStatus(ctx context.Context, id string, status models.ActivityStatus) error {
	const query = `UPDATE activities SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := p.tx.ExecContext(ctx, query, id, string(status), p.now())
	if err != nil {
		return fmt.Errorf("update activity status: %w", err)
	}
	return expectOne(res, "update activity status")
}

func (p *pairTx) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM activities WHERE id = $1 AND student_id = $2 AND quota_category_id = $3`
	res, err := p.tx.ExecContext(ctx, query, id, p.studentID, p.quotaCategoryID)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return expectOne(res, "delete activity")
}

func expectOne(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
