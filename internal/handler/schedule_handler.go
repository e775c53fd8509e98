package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scholaris/records-api/internal/middleware"
	"github.com/scholaris/records-api/internal/models"
	"github.com/scholaris/records-api/internal/service"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/response"
)

// ScheduleHandler manages schedule endpoints.
type ScheduleHandler struct {
	service *service.ScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param section_id query string false "Filter by section"
// @Param subject_id query string false "Filter by subject"
// @Param teacher_id query string false "Filter by teacher"
// @Param day query string false "Filter by day of week"
// @Param school_year query string false "Filter by school year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var filter models.ScheduleFilter
	filter.SectionID = c.Query("section_id")
	filter.SubjectID = c.Query("subject_id")
	filter.TeacherID = c.Query("teacher_id")
	filter.DayOfWeek = strings.TrimSpace(c.Query("day"))
	filter.SchoolYear = c.Query("school_year")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	start := time.Now()
	schedules, pagination, cacheHit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, schedules, pagination, meta)
}

// Get godoc
// @Summary Get schedule by id
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Create godoc
// @Summary Schedule a class
// @Description Allocates a weekly slot for a subject in a section, checking teacher time and room availability. A zero-time start/end declares the subject without fixing a slot.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.ScheduleClassRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.ScheduleClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.service.ScheduleClass(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schedule)
}

// Delete godoc
// @Summary Delete schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
