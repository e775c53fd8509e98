package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scholaris/records-api/internal/models"
	"github.com/scholaris/records-api/internal/normalize"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/events"
)

type assignmentRepository interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Assignment, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
	Create(ctx context.Context, a *models.Assignment) error
	Update(ctx context.Context, a *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

type assignmentSectionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindByName(ctx context.Context, name, schoolYear string) (*models.Section, error)
}

type assignmentStudyLoadRepository interface {
	DeleteCustomByStudent(ctx context.Context, studentID string) (int64, error)
}

type operationMetrics interface {
	OperationStarted(name string)
	OperationFinished(name string)
}

// EnrollRequest captures fields for enrolling a student into a section. The
// section may be named by id or, for imports that predate section ids, by
// name within a school year.
type EnrollRequest struct {
	StudentID   string   `json:"student_id" validate:"required"`
	SectionID   string   `json:"section_id"`
	SectionName string   `json:"section_name"`
	SchoolYear  string   `json:"school_year"`
	Status      string   `json:"status"`
	Balance     *float64 `json:"balance"`
	Sanction    *string  `json:"sanction"`
}

// UpdateAssignmentStatusRequest changes an assignment's free-text status.
type UpdateAssignmentStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AssignmentService resolves which of a student's assignment rows is the
// canonical one and manages the enrollment lifecycle around it.
type AssignmentService struct {
	repo       assignmentRepository
	sections   assignmentSectionRepository
	studyLoads assignmentStudyLoadRepository
	emitter    *events.Emitter
	metrics    operationMetrics
	validator  *validator.Validate
	logger     *zap.Logger

	activeSchoolYear string
	fetchLimit       int
}

// NewAssignmentService creates a new assignment service.
func NewAssignmentService(
	repo assignmentRepository,
	sections assignmentSectionRepository,
	studyLoads assignmentStudyLoadRepository,
	emitter *events.Emitter,
	metrics operationMetrics,
	activeSchoolYear string,
	fetchLimit int,
	validate *validator.Validate,
	logger *zap.Logger,
) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		repo:             repo,
		sections:         sections,
		studyLoads:       studyLoads,
		emitter:          emitter,
		metrics:          metrics,
		validator:        validate,
		logger:           logger,
		activeSchoolYear: activeSchoolYear,
		fetchLimit:       fetchLimit,
	}
}

// ResolveActive picks the canonical assignment for a student. Rows are
// ranked by status bucket first, then recency of update, then id, and the
// best row outside the inactive bucket wins. When every row is inactive the
// best inactive row is still returned so history remains visible. A student
// with no rows, or a deployment whose assignments relation is not
// provisioned yet, resolves to nil without error.
func (s *AssignmentService) ResolveActive(ctx context.Context, studentID string) (*models.AssignmentDetail, error) {
	if s.metrics != nil {
		s.metrics.OperationStarted("resolve_assignment")
		defer s.metrics.OperationFinished("resolve_assignment")
	}

	rows, err := s.repo.ListByStudent(ctx, studentID, s.fetchLimit)
	if err != nil {
		if errors.Is(err, appErrors.ErrUnavailable) {
			s.logger.Warn("assignments relation not provisioned, resolving to none",
				zap.String("student_id", studentID))
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	winner := pickCanonical(rows)
	if winner == nil {
		return nil, nil
	}

	detail, err := s.repo.FindDetailByID(ctx, winner.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment detail")
	}
	s.fillSectionByName(ctx, detail)
	return detail, nil
}

// pickCanonical orders assignment rows best-first and returns the winner.
// Ties on bucket break toward the most recently updated row, then toward
// the lexicographically larger id so the order is total and repeatable.
func pickCanonical(rows []models.Assignment) *models.Assignment {
	if len(rows) == 0 {
		return nil
	}
	ranked := make([]models.Assignment, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi := normalize.Status(ranked[i].Status).Priority()
		pj := normalize.Status(ranked[j].Status).Priority()
		if pi != pj {
			return pi < pj
		}
		if !ranked[i].UpdatedAt.Equal(ranked[j].UpdatedAt) {
			return ranked[i].UpdatedAt.After(ranked[j].UpdatedAt)
		}
		return strings.Compare(ranked[i].ID, ranked[j].ID) > 0
	})
	for i := range ranked {
		if normalize.Status(ranked[i].Status) != normalize.BucketInactive {
			return &ranked[i]
		}
	}
	return &ranked[0]
}

// fillSectionByName resolves legacy rows that only carry a section name.
// Resolution is best effort; a miss leaves the detail as stored.
func (s *AssignmentService) fillSectionByName(ctx context.Context, detail *models.AssignmentDetail) {
	if detail.SectionID != nil || strings.TrimSpace(detail.SectionName) == "" {
		return
	}
	section, err := s.sections.FindByName(ctx, detail.SectionName, detail.SchoolYear)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("section lookup by name failed",
				zap.String("section_name", detail.SectionName), zap.Error(err))
		}
		return
	}
	detail.SectionID = &section.ID
	detail.ResolvedSectionName = section.Name
	detail.GradeLevel = section.GradeLevel
	detail.Course = section.Course
}

// List returns paginated assignment details.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, *models.Pagination, error) {
	details, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return details, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListByStudent returns every raw assignment row a student has, newest
// update first. Irregular and inactive history is included untouched.
func (s *AssignmentService) ListByStudent(ctx context.Context, studentID string) ([]models.Assignment, error) {
	rows, err := s.repo.ListByStudent(ctx, studentID, s.fetchLimit)
	if err != nil {
		if errors.Is(err, appErrors.ErrUnavailable) {
			return []models.Assignment{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	return rows, nil
}

// Enroll records a student's membership in a section. The section may be
// given by id or by name; name-only requests are resolved against the
// school year before writing so new rows do not add to the legacy backlog.
func (s *AssignmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.SectionID == "" && strings.TrimSpace(req.SectionName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section_id or section_name is required")
	}

	schoolYear := req.SchoolYear
	if schoolYear == "" {
		schoolYear = s.activeSchoolYear
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = "Active"
	}

	assignment := &models.Assignment{
		StudentID:   req.StudentID,
		SectionName: strings.TrimSpace(req.SectionName),
		SchoolYear:  schoolYear,
		Status:      status,
		Balance:     req.Balance,
		Sanction:    req.Sanction,
	}

	if req.SectionID != "" {
		section, err := s.sections.FindByID(ctx, req.SectionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
		}
		assignment.SectionID = &section.ID
		assignment.SectionName = section.Name
	} else if section, err := s.sections.FindByName(ctx, assignment.SectionName, schoolYear); err == nil {
		assignment.SectionID = &section.ID
		assignment.SectionName = section.Name
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve section by name")
	}

	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.FromError(err)
	}

	if s.emitter != nil {
		s.emitter.Emit("assignment.enrolled", map[string]interface{}{
			"assignment_id": assignment.ID,
			"student_id":    assignment.StudentID,
			"school_year":   assignment.SchoolYear,
		})
	}
	return assignment, nil
}

// UpdateStatus rewrites an assignment's status. Moving a student out of the
// irregular track tears down their custom study load entries so the section
// curriculum becomes authoritative again.
func (s *AssignmentService) UpdateStatus(ctx context.Context, id string, req UpdateAssignmentStatusRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	wasIrregular := normalize.IsIrregular(assignment.Status)
	assignment.Status = strings.TrimSpace(req.Status)

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.FromError(err)
	}

	if wasIrregular && !normalize.IsIrregular(assignment.Status) {
		removed, err := s.studyLoads.DeleteCustomByStudent(ctx, assignment.StudentID)
		if err != nil {
			s.logger.Error("failed to clear custom study load after status change",
				zap.String("student_id", assignment.StudentID), zap.Error(err))
		} else if removed > 0 {
			s.logger.Info("cleared custom study load entries",
				zap.String("student_id", assignment.StudentID), zap.Int64("removed", removed))
		}
		if s.emitter != nil {
			s.emitter.Emit("assignment.regularized", map[string]interface{}{
				"assignment_id": assignment.ID,
				"student_id":    assignment.StudentID,
			})
		}
	}

	if s.emitter != nil {
		s.emitter.Emit("assignment.status_changed", map[string]interface{}{
			"assignment_id": assignment.ID,
			"status":        assignment.Status,
		})
	}
	return assignment, nil
}

// Delete removes an assignment row outright.
func (s *AssignmentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.FromError(err)
	}
	if s.emitter != nil {
		s.emitter.Emit("assignment.deleted", map[string]interface{}{"assignment_id": id})
	}
	return nil
}
