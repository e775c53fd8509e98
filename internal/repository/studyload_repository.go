package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris/records-api/internal/models"
)

const studyLoadColumns = "id, section_id, student_id, subject_id, teacher_name, school_year, created_at, updated_at"

const studyLoadDetailColumns = `sl.id, sl.section_id, sl.student_id, sl.subject_id, sl.teacher_name, sl.school_year, sl.created_at, sl.updated_at,
       sub.code AS subject_code, sub.name AS subject_name, sub.units AS units`

// StudyLoadRepository persists curriculum and custom study load entries.
type StudyLoadRepository struct {
	db *sqlx.DB
}

// NewStudyLoadRepository creates a new study load repository.
func NewStudyLoadRepository(db *sqlx.DB) *StudyLoadRepository {
	return &StudyLoadRepository{db: db}
}

// FindCurriculumEntry returns the section-wide entry for a subject, if any.
func (r *StudyLoadRepository) FindCurriculumEntry(ctx context.Context, sectionID, subjectID string) (*models.StudyLoadEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_loads WHERE section_id = $1 AND subject_id = $2 AND student_id IS NULL LIMIT 1`, studyLoadColumns)
	var entry models.StudyLoadEntry
	if err := r.db.GetContext(ctx, &entry, query, sectionID, subjectID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindCustomEntry returns a student's custom entry for a subject, if any.
func (r *StudyLoadRepository) FindCustomEntry(ctx context.Context, studentID, subjectID string) (*models.StudyLoadEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_loads WHERE student_id = $1 AND subject_id = $2 LIMIT 1`, studyLoadColumns)
	var entry models.StudyLoadEntry
	if err := r.db.GetContext(ctx, &entry, query, studentID, subjectID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindCustomEntryBySubjectCode guards the second natural key: legacy rows
// were sometimes inserted by code while newer ones reference the subject id.
func (r *StudyLoadRepository) FindCustomEntryBySubjectCode(ctx context.Context, studentID, subjectCode string) (*models.StudyLoadEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_loads sl WHERE sl.student_id = $1
		AND sl.subject_id IN (SELECT id FROM subjects WHERE LOWER(code) = LOWER($2)) LIMIT 1`,
		"sl.id, sl.section_id, sl.student_id, sl.subject_id, sl.teacher_name, sl.school_year, sl.created_at, sl.updated_at")
	var entry models.StudyLoadEntry
	if err := r.db.GetContext(ctx, &entry, query, studentID, subjectCode); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByID loads an entry by id.
func (r *StudyLoadRepository) FindByID(ctx context.Context, id string) (*models.StudyLoadEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_loads WHERE id = $1`, studyLoadColumns)
	var entry models.StudyLoadEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListBySection returns a section's curriculum entries with subjects resolved.
func (r *StudyLoadRepository) ListBySection(ctx context.Context, sectionID string) ([]models.StudyLoadDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_loads sl
		JOIN subjects sub ON sub.id = sl.subject_id
		WHERE sl.section_id = $1 AND sl.student_id IS NULL
		ORDER BY sub.code ASC`, studyLoadDetailColumns)
	var entries []models.StudyLoadDetail
	if err := r.db.SelectContext(ctx, &entries, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section study loads: %w", err)
	}
	return entries, nil
}

// ListByStudent returns a student's custom entries with subjects resolved.
func (r *StudyLoadRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudyLoadDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM study_loads sl
		JOIN subjects sub ON sub.id = sl.subject_id
		WHERE sl.student_id = $1
		ORDER BY sub.code ASC`, studyLoadDetailColumns)
	var entries []models.StudyLoadDetail
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list student study loads: %w", err)
	}
	return entries, nil
}

// Create inserts a study load entry.
func (r *StudyLoadRepository) Create(ctx context.Context, entry *models.StudyLoadEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	const query = `INSERT INTO study_loads (id, section_id, student_id, subject_id, teacher_name, school_year, created_at, updated_at)
		VALUES (:id, :section_id, :student_id, :subject_id, :teacher_name, :school_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create study load: %w", err)
	}
	return nil
}

// Delete removes one entry by id.
func (r *StudyLoadRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM study_loads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete study load: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCustomByStudent removes every custom entry a student holds. Invoked
// when the student's status transitions away from irregular.
func (r *StudyLoadRepository) DeleteCustomByStudent(ctx context.Context, studentID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM study_loads WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete custom study loads: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
