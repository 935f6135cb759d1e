package dto

import "github.com/noah-isme/activity-hours-api/internal/models"

// CreateActivityRequest is submitted by a student to claim hours.
type CreateActivityRequest struct {
	QuotaCategoryID string  `json:"quotaCategoryId" validate:"required"`
	Title           string  `json:"title" validate:"required,max=200"`
	Description     *string `json:"description,omitempty"`
	ApproverNotes   *string `json:"approverNotes,omitempty"`
	RequestedHours  int     `json:"requestedHours" validate:"required,gt=0"`
	ActivityDate    string  `json:"activityDate" validate:"required,datetime=2006-01-02"`
}

// UpdateActivityRequest edits an activity that has no decision yet.
type UpdateActivityRequest struct {
	Title          *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string `json:"description,omitempty"`
	ApproverNotes  *string `json:"approverNotes,omitempty"`
	RequestedHours *int    `json:"requestedHours,omitempty" validate:"omitempty,gt=0"`
	ActivityDate   *string `json:"activityDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// AdmissionRequest records a coordinator decision. A missing decidedHours is
// reported as MISSING_VALUE rather than a generic validation error.
type AdmissionRequest struct {
	DecidedHours *int `json:"decidedHours"`
}

// AdmissionResponse returns the decided activity with its resolved status.
type AdmissionResponse struct {
	Activity        models.Activity `json:"activity"`
	CommittedHours  int             `json:"committedHours"`
	LimitHours      int             `json:"limitHours"`
	SiblingsUpdated int             `json:"siblingsUpdated"`
}

// ActivityQuery holds list query parameters.
type ActivityQuery struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}
