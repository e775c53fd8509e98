package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scholaris/records-api/internal/models"
	"github.com/scholaris/records-api/internal/service"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/response"
)

// SectionHandler manages section endpoints.
type SectionHandler struct {
	service *service.SectionService
}

// NewSectionHandler constructs a section handler.
func NewSectionHandler(svc *service.SectionService) *SectionHandler {
	return &SectionHandler{service: svc}
}

// List godoc
// @Summary List sections
// @Tags Sections
// @Produce json
// @Param school_year query string false "Filter by school year"
// @Param grade_level query string false "Filter by grade level"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	var filter models.SectionFilter
	filter.SchoolYear = c.Query("school_year")
	filter.GradeLevel = c.Query("grade_level")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	sections, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get section by id
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// Create godoc
// @Summary Create section
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Router /sections [post]
func (h *SectionHandler) Create(c *gin.Context) {
	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, section)
}

// Update godoc
// @Summary Update section
// @Tags Sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.UpdateSectionRequest true "Section payload"
// @Success 200 {object} response.Envelope
// @Router /sections/{id} [put]
func (h *SectionHandler) Update(c *gin.Context) {
	var req service.UpdateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	section, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}
