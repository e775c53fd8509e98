package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scholaris/records-api/internal/models"
	"github.com/scholaris/records-api/internal/normalize"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/events"
)

type studyLoadRepository interface {
	FindCurriculumEntry(ctx context.Context, sectionID, subjectID string) (*models.StudyLoadEntry, error)
	FindCustomEntry(ctx context.Context, studentID, subjectID string) (*models.StudyLoadEntry, error)
	FindCustomEntryBySubjectCode(ctx context.Context, studentID, subjectCode string) (*models.StudyLoadEntry, error)
	FindByID(ctx context.Context, id string) (*models.StudyLoadEntry, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.StudyLoadDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.StudyLoadDetail, error)
	Create(ctx context.Context, entry *models.StudyLoadEntry) error
	Delete(ctx context.Context, id string) error
}

type studyLoadSubjectRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Subject, error)
}

type assignmentResolver interface {
	ResolveActive(ctx context.Context, studentID string) (*models.AssignmentDetail, error)
}

type studyLoadCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string)
}

// AddCustomEntryRequest declares a student-specific subject load. Only
// students whose canonical assignment is marked irregular may carry these.
type AddCustomEntryRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	SubjectCode string `json:"subject_code" validate:"required"`
	TeacherName string `json:"teacher_name"`
}

// StudyLoadService keeps curriculum and per-student study load entries
// consistent with assignment state.
type StudyLoadService struct {
	repo      studyLoadRepository
	subjects  studyLoadSubjectRepository
	resolver  assignmentResolver
	cache     studyLoadCache
	emitter   *events.Emitter
	validator *validator.Validate
	logger    *zap.Logger

	activeSchoolYear string
}

// NewStudyLoadService creates a new study load service.
func NewStudyLoadService(
	repo studyLoadRepository,
	subjects studyLoadSubjectRepository,
	resolver assignmentResolver,
	cache studyLoadCache,
	emitter *events.Emitter,
	activeSchoolYear string,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudyLoadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudyLoadService{
		repo:             repo,
		subjects:         subjects,
		resolver:         resolver,
		cache:            cache,
		emitter:          emitter,
		validator:        validate,
		logger:           logger,
		activeSchoolYear: activeSchoolYear,
	}
}

// EnsureCurriculumEntry creates the section-wide entry for a subject if it
// does not exist yet. With failIfExists the call is a declaration of a new
// pairing and re-declaration is a conflict; without it the call is
// idempotent and returns the existing row unchanged.
func (s *StudyLoadService) EnsureCurriculumEntry(ctx context.Context, sectionID, subjectID string, teacherName *string, failIfExists bool) (*models.StudyLoadEntry, error) {
	existing, err := s.repo.FindCurriculumEntry(ctx, sectionID, subjectID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check curriculum entry")
	}
	if existing != nil {
		if failIfExists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject already in section curriculum")
		}
		return existing, nil
	}

	entry := &models.StudyLoadEntry{
		SectionID:   &sectionID,
		SubjectID:   subjectID,
		TeacherName: teacherName,
		SchoolYear:  s.activeSchoolYear,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, appErrors.FromError(err)
	}
	s.invalidate(ctx)
	return entry, nil
}

// AddCustomEntry records a student-specific subject load. The student's
// canonical assignment must exist and be irregular; duplicates are checked
// through both natural keys because legacy imports reference subjects by
// code while the UI references them by id.
func (s *StudyLoadService) AddCustomEntry(ctx context.Context, req AddCustomEntryRequest) (*models.StudyLoadEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid study load payload")
	}

	subject, err := s.subjects.FindByCode(ctx, req.SubjectCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %q not found", req.SubjectCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}

	assignment, err := s.resolver.ResolveActive(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student has no active section assignment")
	}
	if !normalize.IsIrregular(assignment.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "custom study load entries require irregular status")
	}

	if dup, err := s.repo.FindCustomEntry(ctx, req.StudentID, subject.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check study load entry")
	} else if dup != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject already in student's study load")
	}
	if dup, err := s.repo.FindCustomEntryBySubjectCode(ctx, req.StudentID, subject.Code); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check study load entry")
	} else if dup != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "subject already in student's study load")
	}

	entry := &models.StudyLoadEntry{
		StudentID:  &req.StudentID,
		SectionID:  assignment.SectionID,
		SubjectID:  subject.ID,
		SchoolYear: assignment.SchoolYear,
	}
	if t := strings.TrimSpace(req.TeacherName); t != "" {
		entry.TeacherName = &t
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, appErrors.FromError(err)
	}

	s.invalidate(ctx)
	if s.emitter != nil {
		s.emitter.Emit("studyload.custom_added", map[string]interface{}{
			"student_id": req.StudentID,
			"subject_id": subject.ID,
		})
	}
	return entry, nil
}

// RemoveCustomEntry deletes one student-specific entry. Curriculum rows are
// not deletable through this path.
func (s *StudyLoadService) RemoveCustomEntry(ctx context.Context, id string) error {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "study load entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load study load entry")
	}
	if entry.StudentID == nil {
		return appErrors.Clone(appErrors.ErrValidation, "entry is part of the section curriculum")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.FromError(err)
	}
	s.invalidate(ctx)
	if s.emitter != nil {
		s.emitter.Emit("studyload.custom_removed", map[string]interface{}{"entry_id": id})
	}
	return nil
}

// ListBySection returns the section-wide curriculum and reports whether the
// response was served from cache. Every curriculum or custom write
// invalidates the view.
func (s *StudyLoadService) ListBySection(ctx context.Context, sectionID string) ([]models.StudyLoadDetail, bool, error) {
	key := cacheKeyStudyLoads + ":section:" + sectionID
	if s.cache != nil {
		var cached []models.StudyLoadDetail
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	details, err := s.repo.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list study load")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, details, 0); err != nil {
			s.logger.Warn("study load cache write failed", zap.Error(err))
		}
	}
	return details, false, nil
}

// ListByStudent returns the load the student actually follows: their custom
// entries when they are irregular and have any, otherwise their section's
// curriculum. A student with no canonical assignment has an empty load.
func (s *StudyLoadService) ListByStudent(ctx context.Context, studentID string) ([]models.StudyLoadDetail, error) {
	assignment, err := s.resolver.ResolveActive(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return []models.StudyLoadDetail{}, nil
	}

	if normalize.IsIrregular(assignment.Status) {
		custom, err := s.repo.ListByStudent(ctx, studentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list study load")
		}
		if len(custom) > 0 {
			return custom, nil
		}
	}

	if assignment.SectionID == nil {
		return []models.StudyLoadDetail{}, nil
	}
	details, err := s.repo.ListBySection(ctx, *assignment.SectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list study load")
	}
	return details, nil
}

func (s *StudyLoadService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKeyStudyLoads)
	}
}
