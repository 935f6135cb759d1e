package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type activityReader interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, int, error)
}

type studentFinder interface {
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
}

type quotaCategoryFinder interface {
	FindByID(ctx context.Context, id string) (*models.QuotaCategory, error)
}

type activityEngine interface {
	Admit(ctx context.Context, activityID string, decided *int, decidedBy string) (*AdmissionResult, error)
	Register(ctx context.Context, activity *models.Activity) error
	Revise(ctx context.Context, activityID string, edit func(*models.Activity) error) (*models.Activity, error)
	DeleteActivity(ctx context.Context, activityID string, guard func(models.Activity) error) error
}

// ActivityService exposes the activity workflow to students and coordinators.
type ActivityService struct {
	activities activityReader
	students   studentFinder
	categories quotaCategoryFinder
	engine     activityEngine
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewActivityService constructs the service.
func NewActivityService(activities activityReader, students studentFinder, categories quotaCategoryFinder, engine activityEngine, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		activities: activities,
		students:   students,
		categories: categories,
		engine:     engine,
		validator:  validate,
		logger:     logger,
	}
}

// Create registers an activity for the calling student.
func (s *ActivityService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	if claims.Role != models.RoleStudent || claims.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit activities")
	}

	student, err := s.students.FindStudentByID(ctx, claims.StudentID)
	if err != nil {
		return nil, s.lookupError(err, "student not found", "failed to load student")
	}
	qc, err := s.categories.FindByID(ctx, req.QuotaCategoryID)
	if err != nil {
		return nil, s.lookupError(err, "quota category not found", "failed to load quota category")
	}
	if qc.CourseID != student.CourseID || student.AdmissionTermID == nil || qc.TermID != *student.AdmissionTermID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "quota category does not belong to the student's course and admission term")
	}

	date, err := time.Parse(dateLayout, req.ActivityDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "activityDate must be YYYY-MM-DD")
	}

	activity := &models.Activity{
		ID:              uuid.NewString(),
		StudentID:       student.ID,
		QuotaCategoryID: qc.ID,
		Title:           req.Title,
		Description:     req.Description,
		ApproverNotes:   req.ApproverNotes,
		RequestedHours:  req.RequestedHours,
		ActivityDate:    date,
	}
	if err := s.engine.Register(ctx, activity); err != nil {
		return nil, err
	}
	s.logger.Info("activity registered",
		zap.String("activity_id", activity.ID),
		zap.String("student_id", activity.StudentID),
		zap.String("status", string(activity.Status)))
	return activity, nil
}

// Update edits an activity of the calling student that has no decision yet.
func (s *ActivityService) Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateActivityRequest) (*models.Activity, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	if err := requireClaims(claims); err != nil {
		return nil, err
	}

	var date *time.Time
	if req.ActivityDate != nil {
		parsed, err := time.Parse(dateLayout, *req.ActivityDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "activityDate must be YYYY-MM-DD")
		}
		date = &parsed
	}

	return s.engine.Revise(ctx, id, func(a *models.Activity) error {
		if claims.Role != models.RoleStudent || a.StudentID != claims.StudentID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the owner can edit an activity")
		}
		if req.Title != nil {
			a.Title = *req.Title
		}
		if req.Description != nil {
			a.Description = req.Description
		}
		if req.ApproverNotes != nil {
			a.ApproverNotes = req.ApproverNotes
		}
		if req.RequestedHours != nil {
			a.RequestedHours = *req.RequestedHours
		}
		if date != nil {
			a.ActivityDate = *date
		}
		return nil
	})
}

// Delete removes an activity. Students may delete their own, managers any.
func (s *ActivityService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if err := requireClaims(claims); err != nil {
		return err
	}
	err := s.engine.DeleteActivity(ctx, id, func(a models.Activity) error {
		switch {
		case claims.Role == models.RoleManager:
			return nil
		case claims.Role == models.RoleStudent && a.StudentID == claims.StudentID:
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this activity")
	})
	if err != nil {
		return err
	}
	s.logger.Info("activity deleted", zap.String("activity_id", id), zap.String("by", claims.UserID))
	return nil
}

// ListMine returns the calling student's activities, newest first.
func (s *ActivityService) ListMine(ctx context.Context, claims *models.JWTClaims, query dto.ActivityQuery) ([]models.ActivityDetail, *models.Pagination, error) {
	if err := requireClaims(claims); err != nil {
		return nil, nil, err
	}
	if claims.StudentID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only students have activities")
	}
	filter := models.ActivityFilter{StudentID: claims.StudentID, Page: query.Page, PageSize: query.PageSize, SortOrder: "DESC"}
	if query.Status != "" {
		status := models.ActivityStatus(query.Status)
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
		}
		filter.Statuses = []models.ActivityStatus{status}
	}
	return s.list(ctx, filter)
}

// ListPendingForCourse returns the activities of a course awaiting a decision, oldest first.
func (s *ActivityService) ListPendingForCourse(ctx context.Context, claims *models.JWTClaims, courseID string, query dto.ActivityQuery) ([]models.ActivityDetail, *models.Pagination, error) {
	if err := authorizeCourse(claims, courseID, "coordinators can only review their own course"); err != nil {
		return nil, nil, err
	}
	filter := models.ActivityFilter{
		CourseID:  courseID,
		Statuses:  []models.ActivityStatus{models.ActivityPending},
		Page:      query.Page,
		PageSize:  query.PageSize,
		SortOrder: "ASC",
	}
	return s.list(ctx, filter)
}

// Admit records a coordinator decision on an activity of the coordinator's course.
func (s *ActivityService) Admit(ctx context.Context, claims *models.JWTClaims, id string, req dto.AdmissionRequest) (*dto.AdmissionResponse, error) {
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err, "activity not found", "failed to load activity")
	}
	student, err := s.students.FindStudentByID(ctx, activity.StudentID)
	if err != nil {
		return nil, s.lookupError(err, "student not found", "failed to load student")
	}
	if claims.Role != models.RoleCoordinator || claims.CourseID != student.CourseID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the coordinator of the student's course can decide")
	}

	result, err := s.engine.Admit(ctx, id, req.DecidedHours, claims.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.AdmissionResponse{
		Activity:        result.Activity,
		CommittedHours:  result.Committed,
		LimitHours:      result.Limit,
		SiblingsUpdated: result.SiblingsUpdated,
	}, nil
}

func (s *ActivityService) list(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, *models.Pagination, error) {
	items, total, err := s.activities.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *ActivityService) lookupError(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
