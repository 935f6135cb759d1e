package models

import "time"

// Category is a kind of complementary activity shared across courses, e.g. "Research".
type Category struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QuotaCategory binds a category to a course for one term with an hour limit.
// (course_id, term_id, category_id) is unique.
type QuotaCategory struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	TermID      string    `db:"term_id" json:"term_id"`
	CategoryID  string    `db:"category_id" json:"category_id"`
	Name        string    `db:"name" json:"name"`
	LimitHours  int       `db:"limit_hours" json:"limit_hours"`
	Equivalence string    `db:"equivalence" json:"equivalence"`
	General     bool      `db:"is_general" json:"is_general"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaCategoryFilter selects quota categories of one course and term.
type QuotaCategoryFilter struct {
	CourseID string
	TermID   string
}

// CopyResult reports the outcome of a term copy-forward.
type CopyResult struct {
	SourceTermID      string   `json:"source_term_id"`
	DestinationTermID string   `json:"destination_term_id"`
	Created           int      `json:"created"`
	Skipped           int      `json:"skipped"`
	CreatedIDs        []string `json:"created_ids"`
}
