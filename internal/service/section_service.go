package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
)

type sectionRepository interface {
	List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error)
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindByName(ctx context.Context, name, schoolYear string) (*models.Section, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, section *models.Section) error
}

// CreateSectionRequest captures fields for creating sections.
type CreateSectionRequest struct {
	Name       string `json:"name" validate:"required"`
	GradeLevel string `json:"grade_level" validate:"required"`
	SchoolYear string `json:"school_year"`
	Course     string `json:"course"`
}

// UpdateSectionRequest modifies section fields.
type UpdateSectionRequest struct {
	Name       string `json:"name" validate:"required"`
	GradeLevel string `json:"grade_level" validate:"required"`
	SchoolYear string `json:"school_year"`
	Course     string `json:"course"`
}

// SectionService handles section workflows.
type SectionService struct {
	repo      sectionRepository
	validator *validator.Validate
	logger    *zap.Logger

	activeSchoolYear string
}

// NewSectionService creates a new section service.
func NewSectionService(repo sectionRepository, activeSchoolYear string, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, validator: validate, logger: logger, activeSchoolYear: activeSchoolYear}
}

// List returns paginated sections.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a section by identifier.
func (s *SectionService) Get(ctx context.Context, id string) (*models.Section, error) {
	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return section, nil
}

// Create adds a section, unique by name within its school year.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	schoolYear := req.SchoolYear
	if schoolYear == "" {
		schoolYear = s.activeSchoolYear
	}
	name := strings.TrimSpace(req.Name)

	if existing, err := s.repo.FindByName(ctx, name, schoolYear); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "section name already exists for school year")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check section name")
	}

	section := &models.Section{
		Name:       name,
		GradeLevel: req.GradeLevel,
		SchoolYear: schoolYear,
		Course:     req.Course,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.FromError(err)
	}
	return section, nil
}

// Update modifies an existing section.
func (s *SectionService) Update(ctx context.Context, id string, req UpdateSectionRequest) (*models.Section, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}

	section, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	section.Name = strings.TrimSpace(req.Name)
	section.GradeLevel = req.GradeLevel
	if req.SchoolYear != "" {
		section.SchoolYear = req.SchoolYear
	}
	section.Course = req.Course

	if err := s.repo.Update(ctx, section); err != nil {
		return nil, appErrors.FromError(err)
	}
	return section, nil
}
