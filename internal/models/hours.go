package models

import "time"

// CategoryHours is the per-category line of a student's hours summary.
type CategoryHours struct {
	QuotaCategoryID string `db:"quota_category_id" json:"quota_category_id"`
	CategoryID      string `db:"category_id" json:"category_id"`
	Name            string `db:"name" json:"name"`
	LimitHours      int    `db:"limit_hours" json:"limit_hours"`
	ApprovedHours   int    `db:"approved_hours" json:"approved_hours"`
	ValidHours      int    `db:"-" json:"valid_hours"`
}

// HoursSummary aggregates a student's approved hours against the course requirement.
type HoursSummary struct {
	StudentID       string          `json:"student_id"`
	CourseID        string          `json:"course_id"`
	AdmissionTermID string          `json:"admission_term_id"`
	Categories      []CategoryHours `json:"categories"`
	TotalValidHours int             `json:"total_valid_hours"`
	RequiredHours   int             `json:"required_hours"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
