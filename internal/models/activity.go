package models

import "time"

// ActivityStatus is the admission state of an activity. It is derived from the
// approved hours, the committed total of the student's category and its limit.
type ActivityStatus string

const (
	ActivityPending      ActivityStatus = "PENDING"
	ActivityApproved     ActivityStatus = "APPROVED"
	ActivityRejected     ActivityStatus = "REJECTED"
	ActivityLimitReached ActivityStatus = "LIMIT_REACHED"
)

// Valid reports whether s is one of the four known states.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityPending, ActivityApproved, ActivityRejected, ActivityLimitReached:
		return true
	}
	return false
}

// Undecided reports whether the activity is still awaiting a coordinator decision.
func (s ActivityStatus) Undecided() bool {
	return s == ActivityPending || s == ActivityLimitReached
}

// Activity is a student's claim for complementary hours in one quota category.
type Activity struct {
	ID              string         `db:"id" json:"id"`
	StudentID       string         `db:"student_id" json:"student_id"`
	QuotaCategoryID string         `db:"quota_category_id" json:"quota_category_id"`
	Title           string         `db:"title" json:"title"`
	Description     *string        `db:"description" json:"description,omitempty"`
	ApproverNotes   *string        `db:"approver_notes" json:"approver_notes,omitempty"`
	RequestedHours  int            `db:"requested_hours" json:"requested_hours"`
	ApprovedHours   *int           `db:"approved_hours" json:"approved_hours,omitempty"`
	Status          ActivityStatus `db:"status" json:"status"`
	ActivityDate    time.Time      `db:"activity_date" json:"activity_date"`
	DecidedBy       *string        `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt       *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// ActivityDetail adds display fields joined from the student and category.
type ActivityDetail struct {
	Activity
	StudentName  string `db:"student_name" json:"student_name"`
	CategoryID   string `db:"category_id" json:"category_id"`
	CategoryName string `db:"category_name" json:"category_name"`
}

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	StudentID       string
	CourseID        string
	QuotaCategoryID string
	Statuses        []ActivityStatus
	Page            int
	PageSize        int
	SortOrder       string
}

// SiblingCursor is the keyset position inside a cascade walk. Undecided rows
// sort first, then by creation time and id.
type SiblingCursor struct {
	Undecided bool
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the keyset position of a.
func CursorOf(a Activity) SiblingCursor {
	return SiblingCursor{Undecided: a.ApprovedHours == nil, CreatedAt: a.CreatedAt, ID: a.ID}
}
