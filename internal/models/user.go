package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleManager     UserRole = "MANAGER"
	RoleCoordinator UserRole = "COORDINATOR"
	RoleStudent     UserRole = "STUDENT"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleManager, RoleCoordinator, RoleStudent:
		return true
	}
	return false
}

// User represents an application user stored in the users table. CourseID is
// the coordinated course for coordinators and the enrolled course for students.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	CourseID     *string    `db:"course_id" json:"course_id,omitempty"`
	StudentID    *string    `db:"student_id" json:"student_id,omitempty"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
