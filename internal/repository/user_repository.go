package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-hours-api/internal/models"
)

// UserRepository provides database access for authentication.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userSelect = `
SELECT u.id, u.email, u.password_hash, u.full_name, u.role, u.active,
	COALESCE(u.course_id, s.course_id) AS course_id, s.id AS student_id,
	u.last_login, u.created_at, u.updated_at
FROM users u
LEFT JOIN students s ON s.user_id = u.id`

// FindByEmail returns a user by email address, with the student profile id
// and course resolved for students.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := userSelect + ` WHERE LOWER(u.email) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword stores a new bcrypt hash; used by the admin CLI.
func (r *UserRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE LOWER(email) = LOWER($1)`
	res, err := r.db.ExecContext(ctx, query, email, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res, "update password")
}
