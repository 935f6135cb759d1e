package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/activity-hours-api/internal/models"
)

// ActivityRepository serves activity reads outside the quota unit of work.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new instance of ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// FindByID returns an activity by identifier.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find activity by id: %w", err)
	}
	return &activity, nil
}

const activityDetailSelect = `
SELECT a.id, a.student_id, a.quota_category_id, a.title, a.description, a.approver_notes,
	a.requested_hours, a.approved_hours, a.status, a.activity_date, a.decided_by, a.decided_at,
	a.created_at, a.updated_at, s.full_name AS student_name, qc.category_id, qc.name AS category_name
FROM activities a
JOIN students s ON s.id = a.student_id
JOIN quota_categories qc ON qc.id = a.quota_category_id`

// List returns activities matching the filter with the total count. Results
// are sorted by creation time, newest first unless SortOrder is ASC.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)))
	}
	if filter.QuotaCategoryID != "" {
		args = append(args, filter.QuotaCategoryID)
		conditions = append(conditions, fmt.Sprintf("a.quota_category_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		states := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			states[i] = string(st)
		}
		args = append(args, pq.Array(states))
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}

	where := " WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	query := fmt.Sprintf("%s%s ORDER BY a.created_at %s, a.id %s LIMIT %d OFFSET %d", activityDetailSelect, where, sortOrder, sortOrder, pageSize, offset)
	var items []models.ActivityDetail
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM activities a JOIN students s ON s.id = a.student_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}
	return items, total, nil
}

// ListApprovedForStudent returns every approved activity of the student,
// ordered by category then activity date, for report rendering.
func (r *ActivityRepository) ListApprovedForStudent(ctx context.Context, studentID string) ([]models.ActivityDetail, error) {
	query := activityDetailSelect + ` WHERE a.student_id = $1 AND a.status = 'APPROVED' ORDER BY qc.name ASC, a.activity_date ASC, a.id ASC`
	var items []models.ActivityDetail
	if err := r.db.SelectContext(ctx, &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list approved activities: %w", err)
	}
	return items, nil
}

// ListStudentPairs returns the distinct quota categories the student has activities in.
func (r *ActivityRepository) ListStudentPairs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT DISTINCT quota_category_id FROM activities WHERE student_id = $1 ORDER BY quota_category_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("list student pairs: %w", err)
	}
	return ids, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
