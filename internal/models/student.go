package models

import "time"

// Student is the academic profile attached to a STUDENT user. The admission
// term selects which quota categories apply to the student's activities.
type Student struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	Registration    string    `db:"registration" json:"registration"`
	FullName        string    `db:"full_name" json:"full_name"`
	CourseID        string    `db:"course_id" json:"course_id"`
	AdmissionTermID *string   `db:"admission_term_id" json:"admission_term_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Course is a degree programme with the total complementary hours it requires.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	RequiredHours int       `db:"required_hours" json:"required_hours"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
