package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-hours-api/internal/dto"
	"github.com/noah-isme/activity-hours-api/internal/models"
	"github.com/noah-isme/activity-hours-api/pkg/response"
)

type activityService interface {
	Create(ctx context.Context, claims *models.JWTClaims, req dto.CreateActivityRequest) (*models.Activity, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, req dto.UpdateActivityRequest) (*models.Activity, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
	ListMine(ctx context.Context, claims *models.JWTClaims, query dto.ActivityQuery) ([]models.ActivityDetail, *models.Pagination, error)
	ListPendingForCourse(ctx context.Context, claims *models.JWTClaims, courseID string, query dto.ActivityQuery) ([]models.ActivityDetail, *models.Pagination, error)
	Admit(ctx context.Context, claims *models.JWTClaims, id string, req dto.AdmissionRequest) (*dto.AdmissionResponse, error)
}

// ActivityHandler serves student activities and coordinator decisions.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(svc activityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// ListMine godoc
// @Summary List own activities
// @Tags Activities
// @Produce json
// @Param status query string false "PENDING, APPROVED, REJECTED or LIMIT_REACHED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) ListMine(c *gin.Context) {
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		invalidInput(c, err, "invalid query")
		return
	}
	items, pagination, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary Register an activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body dto.CreateActivityRequest true "Activity"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /activities [post]
func (h *ActivityHandler) Create(c *gin.Context) {
	var req dto.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err, "invalid activity payload")
		return
	}
	activity, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Update godoc
// @Summary Edit an activity awaiting decision
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.UpdateActivityRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /activities/{id} [patch]
func (h *ActivityHandler) Update(c *gin.Context) {
	var req dto.UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err, "invalid activity payload")
		return
	}
	activity, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Delete godoc
// @Summary Delete an activity
// @Description Removes the activity and unblocks siblings held at the category limit.
// @Tags Activities
// @Param id path string true "Activity ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{id} [delete]
func (h *ActivityHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PendingForCourse godoc
// @Summary Pending activities of a course
// @Tags Admission
// @Produce json
// @Param courseId path string true "Course ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/pending-activities [get]
func (h *ActivityHandler) PendingForCourse(c *gin.Context) {
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		invalidInput(c, err, "invalid query")
		return
	}
	items, pagination, err := h.service.ListPendingForCourse(c.Request.Context(), claimsFromContext(c), c.Param("courseId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Admit godoc
// @Summary Decide an activity
// @Description Records the decided hours. The status is resolved against the category limit and sibling activities are recomputed.
// @Tags Admission
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.AdmissionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /activities/{id}/admission [post]
func (h *ActivityHandler) Admit(c *gin.Context) {
	var req dto.AdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err, "invalid admission payload")
		return
	}
	result, err := h.service.Admit(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
