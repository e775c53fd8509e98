package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/events"
)

type mockScheduleRepo struct {
	schedules    map[string]models.Schedule
	placeholders map[string]models.Schedule
	created      *models.Schedule
	listResult   []models.ScheduleDetail
	listCalls    int
}

func (m *mockScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	m.listCalls++
	return m.listResult, len(m.listResult), nil
}

func (m *mockScheduleRepo) FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	if s, ok := m.schedules[id]; ok {
		return &models.ScheduleDetail{Schedule: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleRepo) ListByAssignmentIDsAndDay(ctx context.Context, assignmentIDs []string, dayOfWeek string) ([]models.Schedule, error) {
	var out []models.Schedule
	for _, s := range m.schedules {
		if s.DayOfWeek != dayOfWeek || s.TeacherAssignmentID == nil || s.IsPlaceholder() {
			continue
		}
		for _, id := range assignmentIDs {
			if *s.TeacherAssignmentID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) FindPlaceholder(ctx context.Context, sectionID, subjectID, schoolYear string) (*models.Schedule, error) {
	if s, ok := m.placeholders[sectionID+"|"+subjectID]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScheduleRepo) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = "new-schedule"
	}
	if m.schedules == nil {
		m.schedules = make(map[string]models.Schedule)
	}
	m.schedules[schedule.ID] = *schedule
	m.created = schedule
	return nil
}

func (m *mockScheduleRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.schedules[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.schedules, id)
	return nil
}

type mockSubjectReader struct {
	byCode map[string]*models.Subject
}

func (m *mockSubjectReader) FindByCode(ctx context.Context, code string) (*models.Subject, error) {
	if s, ok := m.byCode[code]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockTeacherAssignmentReader struct {
	bySubjectSection map[string]*models.TeacherAssignment
	bySubject        map[string]*models.TeacherAssignment
	activeIDs        map[string][]string
}

func (m *mockTeacherAssignmentReader) FindBySubjectAndSection(ctx context.Context, subjectID, sectionID string) (*models.TeacherAssignment, error) {
	if a, ok := m.bySubjectSection[subjectID+"|"+sectionID]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherAssignmentReader) FindActiveBySubject(ctx context.Context, subjectID string) (*models.TeacherAssignment, error) {
	if a, ok := m.bySubject[subjectID]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherAssignmentReader) ListActiveIDsByTeacher(ctx context.Context, teacherID string) ([]string, error) {
	return m.activeIDs[teacherID], nil
}

type mockRoomRepo struct {
	buildings map[string]*models.Building
	slots     map[string]*models.RoomAssignment
	upserted  *models.RoomAssignment
}

func slotKey(buildingID string, floor int, roomNumber, schoolYear string) string {
	return fmt.Sprintf("%s|%d|%s|%s", buildingID, floor, roomNumber, schoolYear)
}

func (m *mockRoomRepo) FindBuildingByName(ctx context.Context, name string) (*models.Building, error) {
	if b, ok := m.buildings[name]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) CreateBuilding(ctx context.Context, b *models.Building) error {
	if b.ID == "" {
		b.ID = "new-building"
	}
	if m.buildings == nil {
		m.buildings = make(map[string]*models.Building)
	}
	m.buildings[b.Name] = b
	return nil
}

func (m *mockRoomRepo) FindBySlot(ctx context.Context, buildingID string, floor int, roomNumber, schoolYear string) (*models.RoomAssignment, error) {
	if ra, ok := m.slots[slotKey(buildingID, floor, roomNumber, schoolYear)]; ok {
		return ra, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoomRepo) Upsert(ctx context.Context, ra *models.RoomAssignment) error {
	if ra.ID == "" {
		ra.ID = "new-room-assignment"
	}
	if m.slots == nil {
		m.slots = make(map[string]*models.RoomAssignment)
	}
	m.slots[slotKey(ra.BuildingID, ra.Floor, ra.RoomNumber, ra.SchoolYear)] = ra
	m.upserted = ra
	return nil
}

type mockCurriculumSyncer struct {
	sectionID string
	subjectID string
	calls     int
}

func (m *mockCurriculumSyncer) EnsureCurriculumEntry(ctx context.Context, sectionID, subjectID string, teacherName *string, failIfExists bool) (*models.StudyLoadEntry, error) {
	m.sectionID = sectionID
	m.subjectID = subjectID
	m.calls++
	return &models.StudyLoadEntry{ID: "sl-1"}, nil
}

type scheduleFixture struct {
	svc        *ScheduleService
	repo       *mockScheduleRepo
	rooms      *mockRoomRepo
	curriculum *mockCurriculumSyncer
	teachers   *mockTeacherAssignmentReader
}

func newScheduleFixture() *scheduleFixture {
	return newScheduleFixtureWithCache(nil)
}

func newScheduleFixtureWithCache(cache scheduleCache) *scheduleFixture {
	repo := &mockScheduleRepo{}
	rooms := &mockRoomRepo{}
	curriculum := &mockCurriculumSyncer{}
	sectionID := "sec-1"
	teachers := &mockTeacherAssignmentReader{
		bySubjectSection: map[string]*models.TeacherAssignment{
			"subj-1|sec-1": {ID: "ta-7", TeacherID: "t-1", SubjectID: "subj-1", SectionID: &sectionID, Status: "active"},
		},
		activeIDs: map[string][]string{"t-1": {"ta-7"}},
	}
	subjects := &mockSubjectReader{byCode: map[string]*models.Subject{
		"CS101": {ID: "subj-1", Code: "CS101", Name: "Intro to Computing"},
	}}
	sections := &mockSectionReader{byName: map[string]*models.Section{
		"A": {ID: "sec-1", Name: "A"},
	}}
	svc := NewScheduleService(repo, subjects, sections, teachers, rooms, curriculum, cache,
		events.NewEmitter(), nil, "2025-2026", 4, 10, nil, nil)
	return &scheduleFixture{svc: svc, repo: repo, rooms: rooms, curriculum: curriculum, teachers: teachers}
}

func scheduleRequest() ScheduleClassRequest {
	return ScheduleClassRequest{
		SubjectCode: "CS101",
		SectionName: "A",
		DayOfWeek:   "Monday",
		TimeStart:   "09:00",
		TimeEnd:     "10:00",
	}
}

func assertConflict(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func assertValidation(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestScheduleClassCreatesAndSyncsCurriculum(t *testing.T) {
	f := newScheduleFixture()

	detail, err := f.svc.ScheduleClass(context.Background(), scheduleRequest())
	require.NoError(t, err)
	require.NotNil(t, f.repo.created)
	require.NotNil(t, f.repo.created.TeacherAssignmentID)
	assert.Equal(t, "ta-7", *f.repo.created.TeacherAssignmentID)
	assert.Equal(t, "09:00", detail.TimeStart)
	assert.Equal(t, 1, f.curriculum.calls)
	assert.Equal(t, "sec-1", f.curriculum.sectionID)
}

func TestScheduleClassUnknownSubject(t *testing.T) {
	f := newScheduleFixture()
	req := scheduleRequest()
	req.SubjectCode = "NOPE"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestScheduleClassOverlapConflicts(t *testing.T) {
	f := newScheduleFixture()

	_, err := f.svc.ScheduleClass(context.Background(), scheduleRequest())
	require.NoError(t, err)

	req := scheduleRequest()
	req.TimeStart = "09:45"
	req.TimeEnd = "10:45"
	_, err = f.svc.ScheduleClass(context.Background(), req)
	assertConflict(t, err)
}

func TestScheduleClassBackToBackIsNotConflict(t *testing.T) {
	f := newScheduleFixture()

	_, err := f.svc.ScheduleClass(context.Background(), scheduleRequest())
	require.NoError(t, err)

	req := scheduleRequest()
	req.TimeStart = "10:00"
	req.TimeEnd = "11:00"
	_, err = f.svc.ScheduleClass(context.Background(), req)
	require.NoError(t, err)
}

func TestScheduleClassInvertedRange(t *testing.T) {
	f := newScheduleFixture()
	req := scheduleRequest()
	req.TimeStart = "10:00"
	req.TimeEnd = "09:00"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	assertValidation(t, err)
}

func TestScheduleClassUnparsableTime(t *testing.T) {
	f := newScheduleFixture()
	req := scheduleRequest()
	req.TimeStart = "morning"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	assertValidation(t, err)
}

func TestScheduleClassPlaceholderSkipsConflictCheck(t *testing.T) {
	f := newScheduleFixture()
	// No teacher assignment exists for this subject at all.
	f.teachers.bySubjectSection = nil
	f.teachers.bySubject = nil

	req := scheduleRequest()
	req.TimeStart = "00:00"
	req.TimeEnd = "00:00"

	detail, err := f.svc.ScheduleClass(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, detail.IsPlaceholder())
	assert.Nil(t, f.repo.created.TeacherAssignmentID)
	assert.Equal(t, 1, f.curriculum.calls)
}

func TestScheduleClassDuplicatePlaceholderConflicts(t *testing.T) {
	f := newScheduleFixture()
	f.repo.placeholders = map[string]models.Schedule{
		"sec-1|subj-1": {ID: "ph-1", SectionID: "sec-1", SubjectID: "subj-1"},
	}

	req := scheduleRequest()
	req.TimeStart = ""
	req.TimeEnd = ""

	_, err := f.svc.ScheduleClass(context.Background(), req)
	assertConflict(t, err)
}

func TestScheduleClassRoomTakenByOtherSection(t *testing.T) {
	f := newScheduleFixture()
	f.rooms.buildings = map[string]*models.Building{
		"Main": {ID: "b-1", Name: "Main", Floors: 4, RoomsPerFloor: 10},
	}
	f.rooms.slots = map[string]*models.RoomAssignment{
		slotKey("b-1", 2, "201", "2025-2026"): {ID: "ra-1", BuildingID: "b-1", Floor: 2, RoomNumber: "201", SchoolYear: "2025-2026", SectionID: "sec-other"},
	}

	req := scheduleRequest()
	req.Building = "Main"
	req.Floor = 2
	req.RoomNumber = "201"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	assertConflict(t, err)
}

func TestScheduleClassRoomReclaimBySameSection(t *testing.T) {
	f := newScheduleFixture()
	f.rooms.buildings = map[string]*models.Building{
		"Main": {ID: "b-1", Name: "Main", Floors: 4, RoomsPerFloor: 10},
	}
	f.rooms.slots = map[string]*models.RoomAssignment{
		slotKey("b-1", 2, "201", "2025-2026"): {ID: "ra-1", BuildingID: "b-1", Floor: 2, RoomNumber: "201", SchoolYear: "2025-2026", SectionID: "sec-1"},
	}

	req := scheduleRequest()
	req.Building = "Main"
	req.Floor = 2
	req.RoomNumber = "201"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, f.rooms.upserted)
	assert.Equal(t, "sec-1", f.rooms.upserted.SectionID)
}

func TestScheduleClassCreatesUnknownBuilding(t *testing.T) {
	f := newScheduleFixture()

	req := scheduleRequest()
	req.Building = "Annex"
	req.Floor = 1
	req.RoomNumber = "105"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	require.NoError(t, err)
	b, ok := f.rooms.buildings["Annex"]
	require.True(t, ok)
	assert.Equal(t, 4, b.Floors)
	assert.Equal(t, 10, b.RoomsPerFloor)
}

func TestScheduleClassNonNumericRoomRejected(t *testing.T) {
	f := newScheduleFixture()

	req := scheduleRequest()
	req.Building = "Main"
	req.RoomNumber = "lab-a"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	assertValidation(t, err)
}

func TestScheduleClassNonNumericRoomSkippedInPlaceholderMode(t *testing.T) {
	f := newScheduleFixture()

	req := scheduleRequest()
	req.TimeStart = "00:00"
	req.TimeEnd = "00:00"
	req.Building = "Main"
	req.RoomNumber = "lab-a"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, f.rooms.upserted)
	assert.Nil(t, f.repo.created.RoomAssignmentID)
}

func TestScheduleClassTBARoomSkipsAllocation(t *testing.T) {
	f := newScheduleFixture()

	req := scheduleRequest()
	req.Building = "Main"
	req.RoomNumber = "TBA"

	_, err := f.svc.ScheduleClass(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, f.rooms.upserted)
}

func TestScheduleClassTimedWithoutTeacherAssignment(t *testing.T) {
	f := newScheduleFixture()
	f.teachers.bySubjectSection = nil
	f.teachers.bySubject = nil

	_, err := f.svc.ScheduleClass(context.Background(), scheduleRequest())
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestScheduleClassFallsBackToSubjectTeacher(t *testing.T) {
	f := newScheduleFixture()
	f.teachers.bySubjectSection = nil
	f.teachers.bySubject = map[string]*models.TeacherAssignment{
		"subj-1": {ID: "ta-9", TeacherID: "t-2", SubjectID: "subj-1", Status: "active"},
	}
	f.teachers.activeIDs = map[string][]string{"t-2": {"ta-9"}}

	_, err := f.svc.ScheduleClass(context.Background(), scheduleRequest())
	require.NoError(t, err)
	require.NotNil(t, f.repo.created.TeacherAssignmentID)
	assert.Equal(t, "ta-9", *f.repo.created.TeacherAssignmentID)
}

func TestScheduleListServedFromCacheUntilInvalidated(t *testing.T) {
	cache := NewCacheService(&mockCacheStore{}, nil, time.Minute, nil, true)
	f := newScheduleFixtureWithCache(cache)
	f.repo.listResult = []models.ScheduleDetail{
		{Schedule: models.Schedule{ID: "sch-1", DayOfWeek: "Monday", TimeStart: "09:00", TimeEnd: "10:00"}},
	}

	filter := models.ScheduleFilter{SectionID: "sec-1"}
	details, pagination, hit, err := f.svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, details, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, f.repo.listCalls)

	cached, _, hit, err := f.svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, cached, 1)
	assert.Equal(t, "sch-1", cached[0].ID)
	assert.Equal(t, 1, f.repo.listCalls)

	_, err = f.svc.ScheduleClass(context.Background(), scheduleRequest())
	require.NoError(t, err)

	_, _, hit, err = f.svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.repo.listCalls)
}

func TestScheduleListDistinctFiltersCacheSeparately(t *testing.T) {
	cache := NewCacheService(&mockCacheStore{}, nil, time.Minute, nil, true)
	f := newScheduleFixtureWithCache(cache)

	_, _, _, err := f.svc.List(context.Background(), models.ScheduleFilter{SectionID: "sec-1"})
	require.NoError(t, err)
	_, _, hit, err := f.svc.List(context.Background(), models.ScheduleFilter{SectionID: "sec-2"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, f.repo.listCalls)
}
