package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/models"
	appErrors "github.com/noah-isme/activity-hours-api/pkg/errors"
	"github.com/noah-isme/activity-hours-api/pkg/export"
)

type stubApproved []models.ActivityDetail

func (s stubApproved) ListApprovedForStudent(_ context.Context, _ string) ([]models.ActivityDetail, error) {
	return s, nil
}

func reportFixture(enabled bool) *ReportService {
	hoursSvc, _, _ := hoursFixture()
	students := stubStudents{"s1": {ID: "s1", FullName: "Ana Souza", Registration: "2020/001", CourseID: "c1", AdmissionTermID: strPtr("t1")}}
	hoursSvc.students = students
	approved := stubApproved{
		{Activity: models.Activity{ID: "a1", QuotaCategoryID: "qc1", Title: "Lab", RequestedHours: 8, ApprovedHours: intPtr(8), ActivityDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}, CategoryID: "cat-research"},
		{Activity: models.Activity{ID: "a2", QuotaCategoryID: "qc2", Title: "Course", RequestedHours: 7, ApprovedHours: intPtr(7), ActivityDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}, CategoryID: "cat-extension"},
	}
	return NewReportService(enabled, approved, students, hoursSvc, export.NewPDFExporter(), export.NewCSVExporter(), nil)
}

func TestReportServiceCSV(t *testing.T) {
	svc := reportFixture(true)

	file, err := svc.Export(context.Background(), studentClaims, "s1", dto.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(file.Filename, "hours_2020_001_"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body := string(file.Content)
	assert.Contains(t, body, "Section,Date,Title,Requested,Approved")
	assert.Contains(t, body, "Research,2024-03-01,Lab,8,8")
	assert.Contains(t, body, "Extension,2024-04-01,Course,7,7")
}

func TestReportServicePDF(t *testing.T) {
	svc := reportFixture(true)

	file, err := svc.Export(context.Background(), managerClaims, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Content), "%PDF"))
}

func TestReportServiceGuards(t *testing.T) {
	_, err := reportFixture(false).Export(context.Background(), managerClaims, "s1", dto.ReportFormatPDF)
	assert.ErrorIs(t, err, appErrors.ErrFeatureDisabled)

	svc := reportFixture(true)
	_, err = svc.Export(context.Background(), managerClaims, "s1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	other := &models.JWTClaims{UserID: "u9", Role: models.RoleStudent, StudentID: "s2"}
	_, err = svc.Export(context.Background(), other, "s1", dto.ReportFormatCSV)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "2020_001", sanitizeFilename("2020/001"))
	assert.Equal(t, "student", sanitizeFilename("  "))
}
