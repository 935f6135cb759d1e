package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/pkg/database"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

type quotaCategoryStore interface {
	List(ctx context.Context, filter models.QuotaCategoryFilter) ([]models.QuotaCategory, error)
	CreateWithCategory(ctx context.Context, qc *models.QuotaCategory) error
	CopyFromTerm(ctx context.Context, dstTermID, srcTermID string) (*models.CopyResult, error)
}

type academicDirectory interface {
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
	FindTermByID(ctx context.Context, id string) (*models.Term, error)
}

// QuotaCategoryService manages the per course and term hour limits.
type QuotaCategoryService struct {
	repo      quotaCategoryStore
	academic  academicDirectory
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuotaCategoryService constructs the service.
func NewQuotaCategoryService(repo quotaCategoryStore, academic academicDirectory, validate *validator.Validate, logger *zap.Logger) *QuotaCategoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaCategoryService{repo: repo, academic: academic, validator: validate, logger: logger}
}

// List returns the quota categories of one course and term.
func (s *QuotaCategoryService) List(ctx context.Context, claims *models.JWTClaims, query dto.QuotaCategoryQuery) ([]models.QuotaCategory, error) {
	if query.CourseID == "" || query.TermID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "courseId and termId are required")
	}
	if err := requireClaims(claims); err != nil {
		return nil, err
	}
	if claims.Role != models.RoleManager && claims.CourseID != query.CourseID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "quota categories of another course are not visible")
	}
	items, err := s.repo.List(ctx, models.QuotaCategoryFilter{CourseID: query.CourseID, TermID: query.TermID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list quota categories")
	}
	return items, nil
}

// Create adds a category with its limit for a course and term.
func (s *QuotaCategoryService) Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateQuotaCategoryRequest) (*models.QuotaCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quota category payload")
	}
	if err := authorizeCourse(claims, req.CourseID, "coordinators can only configure their own course"); err != nil {
		return nil, err
	}
	if _, err := s.academic.FindCourseByID(ctx, req.CourseID); err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	if _, err := s.academic.FindTermByID(ctx, req.TermID); err != nil {
		return nil, notFoundOr(err, "term not found", "failed to load term")
	}

	qc := &models.QuotaCategory{
		CourseID:    req.CourseID,
		TermID:      req.TermID,
		Name:        req.Name,
		LimitHours:  req.LimitHours,
		Equivalence: req.Equivalence,
	}
	if err := s.repo.CreateWithCategory(ctx, qc); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "category already configured for this course and term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create quota category")
	}
	s.logger.Info("quota category created",
		zap.String("quota_category_id", qc.ID),
		zap.String("course_id", qc.CourseID),
		zap.String("term_id", qc.TermID),
		zap.Int("limit_hours", qc.LimitHours))
	return qc, nil
}

// CopyFromTerm copies every quota category of the source term into dstTermID.
func (s *QuotaCategoryService) CopyFromTerm(ctx context.Context, dstTermID string, req dto.CopyQuotaCategoriesRequest) (*models.CopyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid copy payload")
	}
	for _, id := range []string{req.SourceTermID, dstTermID} {
		if _, err := s.academic.FindTermByID(ctx, id); err != nil {
			return nil, notFoundOr(err, "term not found", "failed to load term")
		}
	}
	result, err := s.repo.CopyFromTerm(ctx, dstTermID, req.SourceTermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy quota categories")
	}
	s.logger.Info("quota categories copied",
		zap.String("source_term_id", req.SourceTermID),
		zap.String("destination_term_id", dstTermID),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}
