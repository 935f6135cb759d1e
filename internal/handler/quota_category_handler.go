package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/pkg/response"
)

type quotaCategoryService interface {
	List(ctx context.Context, claims *models.JWTClaims, query dto.QuotaCategoryQuery) ([]models.QuotaCategory, error)
	Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateQuotaCategoryRequest) (*models.QuotaCategory, error)
	CopyFromTerm(ctx context.Context, dstTermID string, req dto.CopyQuotaCategoriesRequest) (*models.CopyResult, error)
}

// QuotaCategoryHandler manages category limits per course and term.
type QuotaCategoryHandler struct {
	service quotaCategoryService
}

// NewQuotaCategoryHandler constructs the handler.
func NewQuotaCategoryHandler(svc quotaCategoryService) *QuotaCategoryHandler {
	return &QuotaCategoryHandler{service: svc}
}

// List godoc
// @Summary List quota categories
// @Tags Quota Categories
// @Produce json
// @Param courseId query string true "Course ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /quota-categories [get]
func (h *QuotaCategoryHandler) List(c *gin.Context) {
	var query dto.QuotaCategoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		invalidInput(c, err, "invalid query")
		return
	}
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Create a course-specific quota category
// @Tags Quota Categories
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuotaCategoryRequest true "Quota category"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quota-categories [post]
func (h *QuotaCategoryHandler) Create(c *gin.Context) {
	var req dto.CreateQuotaCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err, "invalid quota category payload")
		return
	}
	qc, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, qc)
}

// CopyFromTerm godoc
// @Summary Copy quota categories from another term
// @Tags Quota Categories
// @Accept json
// @Produce json
// @Param id path string true "Destination term ID"
// @Param payload body dto.CopyQuotaCategoriesRequest true "Source term"
// @Success 200 {object} response.Envelope
// @Router /terms/{id}/quota-categories/copy [post]
func (h *QuotaCategoryHandler) CopyFromTerm(c *gin.Context) {
	var req dto.CopyQuotaCategoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err, "invalid copy payload")
		return
	}
	result, err := h.service.CopyFromTerm(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
