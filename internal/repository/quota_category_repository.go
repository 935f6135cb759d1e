package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-hours-api/internal/models"
)

const quotaCategoryColumns = `id, course_id, term_id, category_id, name, limit_hours, equivalence, is_general, created_at, updated_at`

// QuotaCategoryRepository persists categories and their per course and term quotas.
type QuotaCategoryRepository struct {
	db *sqlx.DB
}

// NewQuotaCategoryRepository constructs the repository.
func NewQuotaCategoryRepository(db *sqlx.DB) *QuotaCategoryRepository {
	return &QuotaCategoryRepository{db: db}
}

// FindByID returns a quota category by identifier.
func (r *QuotaCategoryRepository) FindByID(ctx context.Context, id string) (*models.QuotaCategory, error) {
	query := `SELECT ` + quotaCategoryColumns + ` FROM quota_categories WHERE id = $1`
	var qc models.QuotaCategory
	if err := r.db.GetContext(ctx, &qc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find quota category: %w", err)
	}
	return &qc, nil
}

// List returns the quota categories of one course and term ordered by name.
func (r *QuotaCategoryRepository) List(ctx context.Context, filter models.QuotaCategoryFilter) ([]models.QuotaCategory, error) {
	query := `SELECT ` + quotaCategoryColumns + ` FROM quota_categories WHERE course_id = $1 AND term_id = $2 ORDER BY name ASC`
	var items []models.QuotaCategory
	if err := r.db.SelectContext(ctx, &items, query, filter.CourseID, filter.TermID); err != nil {
		return nil, fmt.Errorf("list quota categories: %w", err)
	}
	return items, nil
}

// CreateWithCategory inserts a new category and its quota row in one transaction.
func (r *QuotaCategoryRepository) CreateWithCategory(ctx context.Context, qc *models.QuotaCategory) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quota category transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if qc.ID == "" {
		qc.ID = uuid.NewString()
	}
	if qc.CategoryID == "" {
		qc.CategoryID = uuid.NewString()
	}
	qc.CreatedAt = now
	qc.UpdatedAt = now

	if _, err = tx.ExecContext(ctx, `INSERT INTO categories (id, name, created_at) VALUES ($1, $2, $3)`, qc.CategoryID, qc.Name, now); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	const insertQuota = `INSERT INTO quota_categories (id, course_id, term_id, category_id, name, limit_hours, equivalence, is_general, created_at, updated_at)
VALUES (:id, :course_id, :term_id, :category_id, :name, :limit_hours, :equivalence, :is_general, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuota, qc); err != nil {
		return fmt.Errorf("insert quota category: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit quota category: %w", err)
	}
	return nil
}

// CopyFromTerm clones every quota category of srcTermID into dstTermID,
// skipping (course, category) pairs the destination term already has.
func (r *QuotaCategoryRepository) CopyFromTerm(ctx context.Context, dstTermID, srcTermID string) (result *models.CopyResult, err error) {
	result = &models.CopyResult{SourceTermID: srcTermID, DestinationTermID: dstTermID, CreatedIDs: []string{}}
	if dstTermID == srcTermID {
		return result, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin copy transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var source []models.QuotaCategory
	query := `SELECT ` + quotaCategoryColumns + ` FROM quota_categories WHERE term_id = $1 ORDER BY course_id, name`
	if err = tx.SelectContext(ctx, &source, query, srcTermID); err != nil {
		return nil, fmt.Errorf("list source quota categories: %w", err)
	}

	var existing []struct {
		CourseID   string `db:"course_id"`
		CategoryID string `db:"category_id"`
	}
	if err = tx.SelectContext(ctx, &existing, `SELECT course_id, category_id FROM quota_categories WHERE term_id = $1 FOR UPDATE`, dstTermID); err != nil {
		return nil, fmt.Errorf("list destination quota categories: %w", err)
	}
	present := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		present[e.CourseID+"/"+e.CategoryID] = struct{}{}
	}

	now := time.Now().UTC()
	const insertQuota = `INSERT INTO quota_categories (id, course_id, term_id, category_id, name, limit_hours, equivalence, is_general, created_at, updated_at)
VALUES (:id, :course_id, :term_id, :category_id, :name, :limit_hours, :equivalence, :is_general, :created_at, :updated_at)`
	for _, qc := range source {
		if _, ok := present[qc.CourseID+"/"+qc.CategoryID]; ok {
			result.Skipped++
			continue
		}
		qc.ID = uuid.NewString()
		qc.TermID = dstTermID
		qc.CreatedAt = now
		qc.UpdatedAt = now
		if _, err = tx.NamedExecContext(ctx, insertQuota, qc); err != nil {
			return nil, fmt.Errorf("copy quota category %s: %w", qc.Name, err)
		}
		result.Created++
		result.CreatedIDs = append(result.CreatedIDs, qc.ID)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit copy: %w", err)
	}
	return result, nil
}

// HoursByCategory sums approved hours per quota category of the student's
// course and admission term. Categories without activities report zero.
func (r *QuotaCategoryRepository) HoursByCategory(ctx context.Context, studentID, courseID, termID string) ([]models.CategoryHours, error) {
	const query = `
SELECT
	qc.id AS quota_category_id,
	qc.category_id,
	qc.name,
	qc.limit_hours,
	COALESCE(SUM(a.approved_hours) FILTER (WHERE a.status = 'APPROVED'), 0) AS approved_hours
FROM quota_categories qc
LEFT JOIN quota_categories owned ON owned.category_id = qc.category_id
LEFT JOIN activities a ON a.quota_category_id = owned.id AND a.student_id = $1
WHERE qc.course_id = $2 AND qc.term_id = $3
GROUP BY qc.id, qc.category_id, qc.name, qc.limit_hours
ORDER BY qc.name ASC`
	var rows []models.CategoryHours
	if err := r.db.SelectContext(ctx, &rows, query, studentID, courseID, termID); err != nil {
		return nil, fmt.Errorf("sum hours by category: %w", err)
	}
	return rows, nil
}
