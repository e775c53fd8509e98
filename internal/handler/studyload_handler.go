package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scholaris/records-api/internal/middleware"
	"github.com/scholaris/records-api/internal/service"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/response"
)

// StudyLoadHandler manages study load endpoints.
type StudyLoadHandler struct {
	service *service.StudyLoadService
}

// NewStudyLoadHandler constructs a study load handler.
func NewStudyLoadHandler(svc *service.StudyLoadService) *StudyLoadHandler {
	return &StudyLoadHandler{service: svc}
}

// ListBySection godoc
// @Summary List a section's curriculum study load
// @Tags StudyLoads
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/study-load [get]
func (h *StudyLoadHandler) ListBySection(c *gin.Context) {
	start := time.Now()
	details, cacheHit, err := h.service.ListBySection(c.Request.Context(), c.Param("id"))
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
	response.JSON(c, http.StatusOK, details, nil, meta)
}

// ListByStudent godoc
// @Summary List the study load a student follows
// @Tags StudyLoads
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/study-load [get]
func (h *StudyLoadHandler) ListByStudent(c *gin.Context) {
	details, err := h.service.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// AddCustom godoc
// @Summary Add a custom study load entry for an irregular student
// @Tags StudyLoads
// @Accept json
// @Produce json
// @Param payload body service.AddCustomEntryRequest true "Study load payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /study-loads/custom [post]
func (h *StudyLoadHandler) AddCustom(c *gin.Context) {
	var req service.AddCustomEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.service.AddCustomEntry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// RemoveCustom godoc
// @Summary Remove a custom study load entry
// @Tags StudyLoads
// @Produce json
// @Param id path string true "Entry ID"
// @Success 204
// @Router /study-loads/custom/{id} [delete]
func (h *StudyLoadHandler) RemoveCustom(c *gin.Context) {
	if err := h.service.RemoveCustomEntry(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
