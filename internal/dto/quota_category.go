package dto

// CreateQuotaCategoryRequest creates a course-specific category with its quota
// for one term.
type CreateQuotaCategoryRequest struct {
	CourseID    string `json:"courseId" validate:"required"`
	TermID      string `json:"termId" validate:"required"`
	Name        string `json:"name" validate:"required,max=100"`
	LimitHours  int    `json:"limitHours" validate:"required,gt=0"`
	Equivalence string `json:"equivalence" validate:"omitempty,max=50"`
}

// CopyQuotaCategoriesRequest copies every quota category of SourceTermID into the path term.
type CopyQuotaCategoriesRequest struct {
	SourceTermID string `json:"sourceTermId" validate:"required"`
}

// QuotaCategoryQuery filters the list endpoint.
type QuotaCategoryQuery struct {
	CourseID string `form:"courseId"`
	TermID   string `form:"termId"`
}
