package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scholaris/records-api/internal/models"
	"github.com/scholaris/records-api/internal/service"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/response"
)

// AssignmentHandler manages assignment endpoints.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler constructs an assignment handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// ResolveActive godoc
// @Summary Resolve a student's canonical assignment
// @Description Picks one authoritative assignment row out of a student's possibly duplicated history. Responds 200 with a null body when the student has none.
// @Tags Assignments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/assignment [get]
func (h *AssignmentHandler) ResolveActive(c *gin.Context) {
	detail, err := h.service.ResolveActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListByStudent godoc
// @Summary List all of a student's assignment rows
// @Tags Assignments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/assignments [get]
func (h *AssignmentHandler) ListByStudent(c *gin.Context) {
	rows, err := h.service.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// List godoc
// @Summary List assignments
// @Tags Assignments
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param section_id query string false "Filter by section"
// @Param school_year query string false "Filter by school year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	var filter models.AssignmentFilter
	filter.StudentID = c.Query("student_id")
	filter.SectionID = c.Query("section_id")
	filter.SchoolYear = c.Query("school_year")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	details, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, pagination)
}

// Enroll godoc
// @Summary Enroll a student into a section
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UpdateStatus godoc
// @Summary Update an assignment's status
// @Description Changes the free-text status. Moving off irregular clears the student's custom study load entries.
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.UpdateAssignmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/status [patch]
func (h *AssignmentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateAssignmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	assignment, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Delete godoc
// @Summary Delete assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
