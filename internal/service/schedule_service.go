package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/events"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error)
	FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error)
	ListByAssignmentIDsAndDay(ctx context.Context, assignmentIDs []string, dayOfWeek string) ([]models.Schedule, error)
	FindPlaceholder(ctx context.Context, sectionID, subjectID, schoolYear string) (*models.Schedule, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
}

type scheduleSubjectRepository interface {
	FindByCode(ctx context.Context, code string) (*models.Subject, error)
}

type scheduleSectionRepository interface {
	FindByName(ctx context.Context, name, schoolYear string) (*models.Section, error)
}

type scheduleTeacherAssignmentRepository interface {
	FindBySubjectAndSection(ctx context.Context, subjectID, sectionID string) (*models.TeacherAssignment, error)
	FindActiveBySubject(ctx context.Context, subjectID string) (*models.TeacherAssignment, error)
	ListActiveIDsByTeacher(ctx context.Context, teacherID string) ([]string, error)
}

type scheduleRoomRepository interface {
	FindBuildingByName(ctx context.Context, name string) (*models.Building, error)
	CreateBuilding(ctx context.Context, b *models.Building) error
	FindBySlot(ctx context.Context, buildingID string, floor int, roomNumber, schoolYear string) (*models.RoomAssignment, error)
	Upsert(ctx context.Context, ra *models.RoomAssignment) error
}

type scheduleStudyLoadService interface {
	EnsureCurriculumEntry(ctx context.Context, sectionID, subjectID string, teacherName *string, failIfExists bool) (*models.StudyLoadEntry, error)
}

type scheduleCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, prefix string)
}

// ScheduleClassRequest carries the natural-key form clients submit: subject
// by code, section by name, optional building/floor/room. A zero-time start
// and end declares the subject for the section without fixing a slot yet.
type ScheduleClassRequest struct {
	SubjectCode string `json:"subject_code" validate:"required"`
	SectionName string `json:"section_name" validate:"required"`
	DayOfWeek   string `json:"day_of_week" validate:"required"`
	TimeStart   string `json:"time_start"`
	TimeEnd     string `json:"time_end"`
	SchoolYear  string `json:"school_year"`
	Building    string `json:"building"`
	Floor       int    `json:"floor"`
	RoomNumber  string `json:"room_number"`
	TeacherName string `json:"teacher_name"`
}

// ScheduleService validates and allocates weekly class slots: teacher time
// on one axis, section rooms on the other. Checks re-read current store
// state on every call, so a retried request converges on the same answer.
type ScheduleService struct {
	repo       scheduleRepository
	subjects   scheduleSubjectRepository
	sections   scheduleSectionRepository
	teacherMap scheduleTeacherAssignmentRepository
	rooms      scheduleRoomRepository
	studyLoads scheduleStudyLoadService
	cache      scheduleCache
	emitter    *events.Emitter
	metrics    operationMetrics
	validator  *validator.Validate
	logger     *zap.Logger

	activeSchoolYear      string
	defaultBuildingFloors int
	defaultRoomsPerFloor  int
}

// NewScheduleService creates a new schedule service.
func NewScheduleService(
	repo scheduleRepository,
	subjects scheduleSubjectRepository,
	sections scheduleSectionRepository,
	teacherMap scheduleTeacherAssignmentRepository,
	rooms scheduleRoomRepository,
	studyLoads scheduleStudyLoadService,
	cache scheduleCache,
	emitter *events.Emitter,
	metrics operationMetrics,
	activeSchoolYear string,
	defaultBuildingFloors, defaultRoomsPerFloor int,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultBuildingFloors <= 0 {
		defaultBuildingFloors = 4
	}
	if defaultRoomsPerFloor <= 0 {
		defaultRoomsPerFloor = 10
	}
	return &ScheduleService{
		repo:                  repo,
		subjects:              subjects,
		sections:              sections,
		teacherMap:            teacherMap,
		rooms:                 rooms,
		studyLoads:            studyLoads,
		cache:                 cache,
		emitter:               emitter,
		metrics:               metrics,
		validator:             validate,
		logger:                logger,
		activeSchoolYear:      activeSchoolYear,
		defaultBuildingFloors: defaultBuildingFloors,
		defaultRoomsPerFloor:  defaultRoomsPerFloor,
	}
}

// ScheduleClass allocates a weekly slot for a subject in a section.
//
// The request resolves by natural keys, then splits on placeholder mode:
// a zero-time request declares the pairing (room and curriculum sync only,
// rejected if the pairing already has a placeholder row), while a timed
// request additionally requires a teacher assignment and a conflict-free
// slot across that teacher's day.
func (s *ScheduleService) ScheduleClass(ctx context.Context, req ScheduleClassRequest) (*models.ScheduleDetail, error) {
	if s.metrics != nil {
		s.metrics.OperationStarted("schedule_class")
		defer s.metrics.OperationFinished("schedule_class")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	schoolYear := req.SchoolYear
	if schoolYear == "" {
		schoolYear = s.activeSchoolYear
	}

	subject, err := s.subjects.FindByCode(ctx, req.SubjectCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %q not found", req.SubjectCode))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject")
	}
	section, err := s.sections.FindByName(ctx, req.SectionName, schoolYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("section %q not found", req.SectionName))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve section")
	}

	placeholder := isPlaceholderSlot(req.TimeStart, req.TimeEnd)

	assignment, err := s.resolveTeacherAssignment(ctx, subject.ID, section.ID)
	if err != nil {
		return nil, err
	}
	if assignment == nil && !placeholder {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no teacher assigned to subject %q", subject.Code))
	}

	if placeholder {
		existing, err := s.repo.FindPlaceholder(ctx, section.ID, subject.ID, schoolYear)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check placeholder")
		}
		if existing != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("subject %q already declared for section %q", subject.Code, section.Name))
		}
	}

	roomAssignment, err := s.allocateRoom(ctx, req, section.ID, schoolYear, placeholder)
	if err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		SectionID:  section.ID,
		SubjectID:  subject.ID,
		DayOfWeek:  strings.TrimSpace(req.DayOfWeek),
		TimeStart:  models.PlaceholderTime,
		TimeEnd:    models.PlaceholderTime,
		SchoolYear: schoolYear,
	}
	if assignment != nil {
		schedule.TeacherAssignmentID = &assignment.ID
	}
	if roomAssignment != nil {
		schedule.RoomAssignmentID = &roomAssignment.ID
	}

	if !placeholder {
		start, end, err := parseSlot(req.TimeStart, req.TimeEnd)
		if err != nil {
			return nil, err
		}
		if err := s.checkTeacherDay(ctx, assignment.TeacherID, schedule.DayOfWeek, start, end); err != nil {
			return nil, err
		}
		schedule.TimeStart = req.TimeStart
		schedule.TimeEnd = req.TimeEnd
	}

	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, appErrors.FromError(err)
	}

	var teacherName *string
	if t := strings.TrimSpace(req.TeacherName); t != "" {
		teacherName = &t
	}
	if _, err := s.studyLoads.EnsureCurriculumEntry(ctx, section.ID, subject.ID, teacherName, false); err != nil {
		s.logger.Error("curriculum study load sync failed",
			zap.String("section_id", section.ID), zap.String("subject_id", subject.ID), zap.Error(err))
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKeySchedules)
	}
	if s.emitter != nil {
		s.emitter.Emit("schedule.created", map[string]interface{}{
			"schedule_id": schedule.ID,
			"section_id":  section.ID,
			"subject_id":  subject.ID,
			"placeholder": placeholder,
		})
	}

	detail, err := s.repo.FindDetailByID(ctx, schedule.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule detail")
	}
	return detail, nil
}

// resolveTeacherAssignment prefers the exact subject+section pairing and
// falls back to any active assignment for the subject. A miss on both
// returns nil without error; the caller decides whether that is tolerable.
func (s *ScheduleService) resolveTeacherAssignment(ctx context.Context, subjectID, sectionID string) (*models.TeacherAssignment, error) {
	assignment, err := s.teacherMap.FindBySubjectAndSection(ctx, subjectID, sectionID)
	if err == nil {
		return assignment, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher assignment")
	}
	assignment, err = s.teacherMap.FindActiveBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher assignment")
	}
	return assignment, nil
}

// allocateRoom claims a physical room for the section. Rooms named "TBA"
// or left blank skip allocation. An unknown building is created on first
// use with default capacity.
func (s *ScheduleService) allocateRoom(ctx context.Context, req ScheduleClassRequest, sectionID, schoolYear string, placeholder bool) (*models.RoomAssignment, error) {
	building := strings.TrimSpace(req.Building)
	room := strings.TrimSpace(req.RoomNumber)
	if building == "" || room == "" || strings.EqualFold(room, "TBA") {
		return nil, nil
	}
	if _, err := strconv.Atoi(room); err != nil {
		if placeholder {
			s.logger.Debug("skipping non-numeric room in placeholder mode",
				zap.String("room", room), zap.String("section_id", sectionID))
			return nil, nil
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("room number %q is not numeric", room))
	}

	b, err := s.rooms.FindBuildingByName(ctx, building)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve building")
		}
		b = &models.Building{
			Name:          building,
			Floors:        s.defaultBuildingFloors,
			RoomsPerFloor: s.defaultRoomsPerFloor,
		}
		if err := s.rooms.CreateBuilding(ctx, b); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create building")
		}
		s.logger.Info("created building with default capacity", zap.String("building", b.Name))
	}

	floor := req.Floor
	if floor <= 0 {
		floor = 1
	}

	claimed, err := s.rooms.FindBySlot(ctx, b.ID, floor, room, schoolYear)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room availability")
	}
	if claimed != nil && claimed.SectionID != sectionID {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("room %s floor %d in %s is taken for %s", room, floor, b.Name, schoolYear))
	}

	ra := &models.RoomAssignment{
		BuildingID: b.ID,
		Floor:      floor,
		RoomNumber: room,
		SchoolYear: schoolYear,
		SectionID:  sectionID,
	}
	if err := s.rooms.Upsert(ctx, ra); err != nil {
		return nil, appErrors.FromError(err)
	}
	return ra, nil
}

// checkTeacherDay rejects the slot when it overlaps any schedule on the
// teacher's day across all their active assignments. Ranges are half-open,
// so back-to-back classes touch without conflicting.
func (s *ScheduleService) checkTeacherDay(ctx context.Context, teacherID, dayOfWeek string, start, end int) error {
	ids, err := s.teacherMap.ListActiveIDsByTeacher(ctx, teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher assignments")
	}
	if len(ids) == 0 {
		return nil
	}
	existing, err := s.repo.ListByAssignmentIDsAndDay(ctx, ids, dayOfWeek)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher schedules")
	}
	for _, other := range existing {
		otherStart, otherEnd, err := parseSlot(other.TimeStart, other.TimeEnd)
		if err != nil {
			// Malformed legacy rows cannot be compared; skip rather
			// than block every new allocation on the day.
			s.logger.Warn("skipping unparsable schedule row in conflict check",
				zap.String("schedule_id", other.ID))
			continue
		}
		if start < otherEnd && end > otherStart {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("teacher already scheduled %s to %s on %s", other.TimeStart, other.TimeEnd, dayOfWeek))
		}
	}
	return nil
}

// scheduleListPayload is the cached shape for one list query.
type scheduleListPayload struct {
	Items      []models.ScheduleDetail `json:"items"`
	Pagination models.Pagination       `json:"pagination"`
}

// List returns paginated schedule details and reports whether the response
// was served from cache. Allocation writes invalidate the whole view, so a
// hit is never staler than the last write.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, *models.Pagination, bool, error) {
	if filter.SchoolYear == "" {
		filter.SchoolYear = s.activeSchoolYear
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	key := fmt.Sprintf("%s:list:%s:%s:%s:%s:%s:%d:%d", cacheKeySchedules,
		filter.SectionID, filter.SubjectID, filter.TeacherID,
		strings.ToLower(filter.DayOfWeek), filter.SchoolYear, filter.Page, filter.PageSize)
	if s.cache != nil {
		var cached scheduleListPayload
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached.Items, &cached.Pagination, true, nil
		}
	}

	details, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, scheduleListPayload{Items: details, Pagination: *pagination}, 0); err != nil {
			s.logger.Warn("schedule list cache write failed", zap.Error(err))
		}
	}
	return details, pagination, false, nil
}

// Get returns a schedule by identifier.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return detail, nil
}

// Delete removes a schedule entry.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.FromError(err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, cacheKeySchedules)
	}
	if s.emitter != nil {
		s.emitter.Emit("schedule.deleted", map[string]interface{}{"schedule_id": id})
	}
	return nil
}

func isPlaceholderSlot(start, end string) bool {
	return isZeroTime(start) && isZeroTime(end)
}

func isZeroTime(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == models.PlaceholderTime || v == models.PlaceholderTime+":00"
}

// parseSlot converts "HH:MM" bounds into minute offsets and rejects empty
// or inverted ranges.
func parseSlot(start, end string) (int, int, error) {
	s, err := parseMinutes(start)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid time %q", start))
	}
	e, err := parseMinutes(end)
	if err != nil {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid time %q", end))
	}
	if e <= s {
		return 0, 0, appErrors.Clone(appErrors.ErrValidation, "time_end must be after time_start")
	}
	return s, e, nil
}

func parseMinutes(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed time %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute %q", v)
	}
	return h*60 + m, nil
}
