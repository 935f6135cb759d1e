package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-hours-api/internal/models"
)

// AcademicRepository reads students, courses and terms. The engine treats them as read-only.
type AcademicRepository struct {
	db *sqlx.DB
}

// NewAcademicRepository constructs the repository.
func NewAcademicRepository(db *sqlx.DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

// FindStudentByID returns a student by identifier.
func (r *AcademicRepository) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, user_id, registration, full_name, course_id, admission_term_id, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindCourseByID returns a course by identifier.
func (r *AcademicRepository) FindCourseByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, required_hours, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// FindTermByID returns a term by identifier.
func (r *AcademicRepository) FindTermByID(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT id, name, start_date, end_date, created_at, updated_at FROM terms WHERE id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find term: %w", err)
	}
	return &term, nil
}
