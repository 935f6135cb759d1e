package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
)

type hoursSource interface {
	HoursByCategory(ctx context.Context, studentID, courseID, termID string) ([]models.CategoryHours, error)
}

type courseFinder interface {
	FindCourseByID(ctx context.Context, id string) (*models.Course, error)
}

type hoursCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// HoursSummaryService aggregates approved hours per quota category.
type HoursSummaryService struct {
	hours    hoursSource
	students studentFinder
	courses  courseFinder
	cache    hoursCache
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewHoursSummaryService constructs the service. cache may be nil.
func NewHoursSummaryService(hours hoursSource, students studentFinder, courses courseFinder, cache hoursCache, ttl time.Duration, logger *zap.Logger) *HoursSummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoursSummaryService{
		hours:    hours,
		students: students,
		courses:  courses,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ValidHours caps approved hours at the category limit; a zero limit caps nothing.
func ValidHours(approved, limit int) int {
	if limit > 0 && approved > limit {
		return limit
	}
	return approved
}

// ForStudent returns the summary for studentID and whether it came from cache.
func (s *HoursSummaryService) ForStudent(ctx context.Context, claims *models.JWTClaims, studentID string) (*models.HoursSummary, bool, error) {
	student, err := s.students.FindStudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := authorizeStudent(claims, student); err != nil {
		return nil, false, err
	}
	return s.Summarize(ctx, student)
}

// Summarize serves the student's summary from cache, computing and storing it on a miss.
func (s *HoursSummaryService) Summarize(ctx context.Context, student *models.Student) (*models.HoursSummary, bool, error) {
	key := HoursCacheKey(student.ID)
	if s.cache != nil {
		var cached models.HoursSummary
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	summary, err := s.compute(ctx, student)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, summary, s.ttl)
	}
	return summary, false, nil
}

func (s *HoursSummaryService) compute(ctx context.Context, student *models.Student) (*models.HoursSummary, error) {
	course, err := s.courses.FindCourseByID(ctx, student.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	summary := &models.HoursSummary{
		StudentID:     student.ID,
		CourseID:      student.CourseID,
		Categories:    []models.CategoryHours{},
		RequiredHours: course.RequiredHours,
		GeneratedAt:   s.now(),
	}
	if student.AdmissionTermID == nil {
		s.logger.Warn("student has no admission term", zap.String("student_id", student.ID))
		return summary, nil
	}
	summary.AdmissionTermID = *student.AdmissionTermID

	rows, err := s.hours.HoursByCategory(ctx, student.ID, student.CourseID, *student.AdmissionTermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate hours")
	}
	for _, row := range rows {
		row.ValidHours = ValidHours(row.ApprovedHours, row.LimitHours)
		summary.TotalValidHours += row.ValidHours
		summary.Categories = append(summary.Categories, row)
	}
	return summary, nil
}
