package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/middleware"
	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/pkg/response"
)

type hoursService interface {
	ForStudent(ctx context.Context, claims *models.JWTClaims, studentID string) (*models.HoursSummary, bool, error)
}

type reportService interface {
	Export(ctx context.Context, claims *models.JWTClaims, studentID string, format dto.ReportFormat) (*dto.ReportFile, error)
}

// StudentHandler serves per-student hour aggregates and reports.
type StudentHandler struct {
	hours   hoursService
	reports reportService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(hours hoursService, reports reportService) *StudentHandler {
	return &StudentHandler{hours: hours, reports: reports}
}

// Hours godoc
// @Summary Student hours summary
// @Description Approved and counted hours per quota category against the course requirement.
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/hours [get]
func (h *StudentHandler) Hours(c *gin.Context) {
	summary, hit, err := h.hours.ForStudent(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Report godoc
// @Summary Student hours report
// @Tags Students
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Student ID"
// @Param format query string false "pdf or csv"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/report [get]
func (h *StudentHandler) Report(c *gin.Context) {
	format := dto.ReportFormat(c.DefaultQuery("format", string(dto.ReportFormatPDF)))
	file, err := h.reports.Export(c.Request.Context(), claimsFromContext(c), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}
