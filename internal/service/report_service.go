package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
	"github.com/noah-isme/activity-hours-api/pkg/export"
)

type approvedActivityLister interface {
	ListApprovedForStudent(ctx context.Context, studentID string) ([]models.ActivityDetail, error)
}

type hoursSummarizer interface {
	Summarize(ctx context.Context, student *models.Student) (*models.HoursSummary, bool, error)
}

type reportRenderer interface {
	RenderReport(report export.Report) ([]byte, error)
}

var reportHeaders = []string{"Date", "Title", "Requested", "Approved"}

// ReportService renders a student's approved hours as PDF or CSV.
type ReportService struct {
	enabled    bool
	activities approvedActivityLister
	students   studentFinder
	hours      hoursSummarizer
	renderers  map[dto.ReportFormat]reportRenderer
	logger     *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(enabled bool, activities approvedActivityLister, students studentFinder, hours hoursSummarizer, pdf, csv reportRenderer, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		enabled:    enabled,
		activities: activities,
		students:   students,
		hours:      hours,
		renderers:  map[dto.ReportFormat]reportRenderer{dto.ReportFormatPDF: pdf, dto.ReportFormatCSV: csv},
		logger:     logger,
	}
}

// Export renders the hours report of studentID.
func (s *ReportService) Export(ctx context.Context, claims *models.JWTClaims, studentID string, format dto.ReportFormat) (*dto.ReportFile, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "reports are disabled")
	}
	if format == "" {
		format = dto.ReportFormatPDF
	}
	renderer, ok := s.renderers[format]
	if !ok || renderer == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}

	student, err := s.students.FindStudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := authorizeStudent(claims, student); err != nil {
		return nil, err
	}

	summary, _, err := s.hours.Summarize(ctx, student)
	if err != nil {
		return nil, err
	}
	activities, err := s.activities.ListApprovedForStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved activities")
	}

	content, err := renderer.RenderReport(buildHoursReport(student, summary, activities))
	if err != nil {
		s.logger.Error("report render failed", zap.String("student_id", student.ID), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	return &dto.ReportFile{
		Filename:    fmt.Sprintf("hours_%s_%s.%s", sanitizeFilename(student.Registration), summary.GeneratedAt.Format("20060102"), format),
		ContentType: format.ContentType(),
		Content:     content,
	}, nil
}

func buildHoursReport(student *models.Student, summary *models.HoursSummary, activities []models.ActivityDetail) export.Report {
	byCategory := make(map[string][]map[string]string)
	for _, a := range activities {
		approved := 0
		if a.ApprovedHours != nil {
			approved = *a.ApprovedHours
		}
		byCategory[a.CategoryID] = append(byCategory[a.CategoryID], map[string]string{
			"Date":      a.ActivityDate.Format("2006-01-02"),
			"Title":     a.Title,
			"Requested": strconv.Itoa(a.RequestedHours),
			"Approved":  strconv.Itoa(approved),
		})
	}

	report := export.Report{
		Title: "Complementary Activity Hours",
		Lines: []string{
			fmt.Sprintf("Student: %s (%s)", student.FullName, student.Registration),
			fmt.Sprintf("Generated at: %s", summary.GeneratedAt.Format(time.RFC3339)),
		},
	}
	for _, category := range summary.Categories {
		report.Sections = append(report.Sections, export.Section{
			Heading: category.Name,
			Data:    export.Dataset{Headers: reportHeaders, Rows: byCategory[category.CategoryID]},
			Footer: fmt.Sprintf("Approved %dh, counted %dh of %s",
				category.ApprovedHours, category.ValidHours, limitLabel(category.LimitHours)),
		})
	}
	if len(report.Sections) == 0 {
		report.Sections = append(report.Sections, export.Section{
			Heading: "No categories",
			Data:    export.Dataset{Headers: reportHeaders},
		})
	}
	report.Summary = []string{
		fmt.Sprintf("Total counted hours: %d", summary.TotalValidHours),
		fmt.Sprintf("Required hours: %d", summary.RequiredHours),
	}
	return report
}

func limitLabel(limit int) string {
	if limit <= 0 {
		return "no limit"
	}
	return fmt.Sprintf("%dh limit", limit)
}

func sanitizeFilename(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "student"
	}
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
