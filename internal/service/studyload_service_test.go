package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
	"github.com/scholaris/records-api/pkg/events"
)

type mockStudyLoadRepo struct {
	entries          map[string]models.StudyLoadEntry
	created          *models.StudyLoadEntry
	deleted          []string
	listSectionCalls int
}

func (m *mockStudyLoadRepo) FindCurriculumEntry(ctx context.Context, sectionID, subjectID string) (*models.StudyLoadEntry, error) {
	for _, e := range m.entries {
		if e.StudentID == nil && e.SectionID != nil && *e.SectionID == sectionID && e.SubjectID == subjectID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudyLoadRepo) FindCustomEntry(ctx context.Context, studentID, subjectID string) (*models.StudyLoadEntry, error) {
	for _, e := range m.entries {
		if e.StudentID != nil && *e.StudentID == studentID && e.SubjectID == subjectID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudyLoadRepo) FindCustomEntryBySubjectCode(ctx context.Context, studentID, subjectCode string) (*models.StudyLoadEntry, error) {
	return nil, sql.ErrNoRows
}

func (m *mockStudyLoadRepo) FindByID(ctx context.Context, id string) (*models.StudyLoadEntry, error) {
	if e, ok := m.entries[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudyLoadRepo) ListBySection(ctx context.Context, sectionID string) ([]models.StudyLoadDetail, error) {
	m.listSectionCalls++
	var out []models.StudyLoadDetail
	for _, e := range m.entries {
		if e.StudentID == nil && e.SectionID != nil && *e.SectionID == sectionID {
			out = append(out, models.StudyLoadDetail{StudyLoadEntry: e})
		}
	}
	return out, nil
}

func (m *mockStudyLoadRepo) ListByStudent(ctx context.Context, studentID string) ([]models.StudyLoadDetail, error) {
	var out []models.StudyLoadDetail
	for _, e := range m.entries {
		if e.StudentID != nil && *e.StudentID == studentID {
			out = append(out, models.StudyLoadDetail{StudyLoadEntry: e})
		}
	}
	return out, nil
}

func (m *mockStudyLoadRepo) Create(ctx context.Context, entry *models.StudyLoadEntry) error {
	if entry.ID == "" {
		entry.ID = "new-entry"
	}
	if m.entries == nil {
		m.entries = make(map[string]models.StudyLoadEntry)
	}
	m.entries[entry.ID] = *entry
	m.created = entry
	return nil
}

func (m *mockStudyLoadRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.entries[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.entries, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockResolver struct {
	detail *models.AssignmentDetail
}

func (m *mockResolver) ResolveActive(ctx context.Context, studentID string) (*models.AssignmentDetail, error) {
	return m.detail, nil
}

func irregularDetail(sectionID string) *models.AssignmentDetail {
	return &models.AssignmentDetail{Assignment: models.Assignment{
		ID:         "a-1",
		StudentID:  "stu-1",
		SectionID:  &sectionID,
		SchoolYear: "2025-2026",
		Status:     "Irregular",
	}}
}

func newStudyLoadFixture(repo *mockStudyLoadRepo, resolver *mockResolver) *StudyLoadService {
	return newStudyLoadFixtureWithCache(repo, resolver, nil)
}

func newStudyLoadFixtureWithCache(repo *mockStudyLoadRepo, resolver *mockResolver, cache studyLoadCache) *StudyLoadService {
	subjects := &mockSubjectReader{byCode: map[string]*models.Subject{
		"CS101": {ID: "subj-1", Code: "CS101", Name: "Intro to Computing"},
	}}
	return NewStudyLoadService(repo, subjects, resolver, cache, events.NewEmitter(), "2025-2026", nil, nil)
}

func TestEnsureCurriculumEntryIdempotent(t *testing.T) {
	repo := &mockStudyLoadRepo{}
	svc := newStudyLoadFixture(repo, &mockResolver{})

	first, err := svc.EnsureCurriculumEntry(context.Background(), "sec-1", "subj-1", nil, false)
	require.NoError(t, err)
	second, err := svc.EnsureCurriculumEntry(context.Background(), "sec-1", "subj-1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.entries, 1)
}

func TestEnsureCurriculumEntryFailIfExists(t *testing.T) {
	repo := &mockStudyLoadRepo{}
	svc := newStudyLoadFixture(repo, &mockResolver{})

	_, err := svc.EnsureCurriculumEntry(context.Background(), "sec-1", "subj-1", nil, true)
	require.NoError(t, err)
	_, err = svc.EnsureCurriculumEntry(context.Background(), "sec-1", "subj-1", nil, true)
	assertConflict(t, err)
}

func TestAddCustomEntryRequiresIrregularStatus(t *testing.T) {
	repo := &mockStudyLoadRepo{}
	sectionID := "sec-1"
	resolver := &mockResolver{detail: &models.AssignmentDetail{Assignment: models.Assignment{
		ID: "a-1", StudentID: "stu-1", SectionID: &sectionID, Status: "Active",
	}}}
	svc := newStudyLoadFixture(repo, resolver)

	_, err := svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "CS101"})
	assertValidation(t, err)
}

func TestAddCustomEntryNoAssignment(t *testing.T) {
	svc := newStudyLoadFixture(&mockStudyLoadRepo{}, &mockResolver{})

	_, err := svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "CS101"})
	assertValidation(t, err)
}

func TestAddCustomEntrySucceedsForIrregular(t *testing.T) {
	repo := &mockStudyLoadRepo{}
	svc := newStudyLoadFixture(repo, &mockResolver{detail: irregularDetail("sec-1")})

	entry, err := svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "CS101", TeacherName: "Reyes"})
	require.NoError(t, err)
	require.NotNil(t, entry.StudentID)
	assert.Equal(t, "stu-1", *entry.StudentID)
	assert.Equal(t, "subj-1", entry.SubjectID)
	require.NotNil(t, entry.TeacherName)
	assert.Equal(t, "Reyes", *entry.TeacherName)
}

func TestAddCustomEntryDuplicateConflicts(t *testing.T) {
	repo := &mockStudyLoadRepo{}
	svc := newStudyLoadFixture(repo, &mockResolver{detail: irregularDetail("sec-1")})

	_, err := svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "CS101"})
	require.NoError(t, err)
	_, err = svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "CS101"})
	assertConflict(t, err)
}

func TestAddCustomEntryUnknownSubject(t *testing.T) {
	svc := newStudyLoadFixture(&mockStudyLoadRepo{}, &mockResolver{detail: irregularDetail("sec-1")})

	_, err := svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "NOPE"})
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRemoveCustomEntryRejectsCurriculumRows(t *testing.T) {
	sectionID := "sec-1"
	repo := &mockStudyLoadRepo{entries: map[string]models.StudyLoadEntry{
		"sl-1": {ID: "sl-1", SectionID: &sectionID, SubjectID: "subj-1"},
	}}
	svc := newStudyLoadFixture(repo, &mockResolver{})

	err := svc.RemoveCustomEntry(context.Background(), "sl-1")
	assertValidation(t, err)
}

func TestRemoveCustomEntryDeletes(t *testing.T) {
	studentID := "stu-1"
	repo := &mockStudyLoadRepo{entries: map[string]models.StudyLoadEntry{
		"sl-1": {ID: "sl-1", StudentID: &studentID, SubjectID: "subj-1"},
	}}
	svc := newStudyLoadFixture(repo, &mockResolver{})

	require.NoError(t, svc.RemoveCustomEntry(context.Background(), "sl-1"))
	assert.Contains(t, repo.deleted, "sl-1")
}

func TestListByStudentIrregularPrefersCustomEntries(t *testing.T) {
	studentID := "stu-1"
	sectionID := "sec-1"
	repo := &mockStudyLoadRepo{entries: map[string]models.StudyLoadEntry{
		"sl-custom":     {ID: "sl-custom", StudentID: &studentID, SubjectID: "subj-2"},
		"sl-curriculum": {ID: "sl-curriculum", SectionID: &sectionID, SubjectID: "subj-1"},
	}}
	svc := newStudyLoadFixture(repo, &mockResolver{detail: irregularDetail("sec-1")})

	details, err := svc.ListByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "sl-custom", details[0].ID)
}

func TestListByStudentRegularGetsSectionCurriculum(t *testing.T) {
	sectionID := "sec-1"
	repo := &mockStudyLoadRepo{entries: map[string]models.StudyLoadEntry{
		"sl-curriculum": {ID: "sl-curriculum", SectionID: &sectionID, SubjectID: "subj-1"},
	}}
	resolver := &mockResolver{detail: &models.AssignmentDetail{Assignment: models.Assignment{
		ID: "a-1", StudentID: "stu-1", SectionID: &sectionID, Status: "Active",
	}}}
	svc := newStudyLoadFixture(repo, resolver)

	details, err := svc.ListByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "sl-curriculum", details[0].ID)
}

func TestListByStudentNoAssignmentIsEmpty(t *testing.T) {
	svc := newStudyLoadFixture(&mockStudyLoadRepo{}, &mockResolver{})

	details, err := svc.ListByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestListBySectionServedFromCacheUntilWrite(t *testing.T) {
	sectionID := "sec-1"
	repo := &mockStudyLoadRepo{entries: map[string]models.StudyLoadEntry{
		"sl-curriculum": {ID: "sl-curriculum", SectionID: &sectionID, SubjectID: "subj-1"},
	}}
	cache := NewCacheService(&mockCacheStore{}, nil, time.Minute, nil, true)
	svc := newStudyLoadFixtureWithCache(repo, &mockResolver{detail: irregularDetail("sec-1")}, cache)

	details, hit, err := svc.ListBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, details, 1)
	assert.Equal(t, 1, repo.listSectionCalls)

	cached, hit, err := svc.ListBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, cached, 1)
	assert.Equal(t, "sl-curriculum", cached[0].ID)
	assert.Equal(t, 1, repo.listSectionCalls)

	_, err = svc.AddCustomEntry(context.Background(), AddCustomEntryRequest{StudentID: "stu-1", SubjectCode: "CS101"})
	require.NoError(t, err)

	_, hit, err = svc.ListBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.listSectionCalls)
}

func TestEnsureCurriculumEntryInvalidatesSectionView(t *testing.T) {
	repo := &mockStudyLoadRepo{}
	cache := NewCacheService(&mockCacheStore{}, nil, time.Minute, nil, true)
	svc := newStudyLoadFixtureWithCache(repo, &mockResolver{}, cache)

	_, hit, err := svc.ListBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = svc.EnsureCurriculumEntry(context.Background(), "sec-1", "subj-1", nil, false)
	require.NoError(t, err)

	details, hit, err := svc.ListBySection(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, details, 1)
}
