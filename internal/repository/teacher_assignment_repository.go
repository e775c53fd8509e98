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

const teacherAssignmentColumns = "id, teacher_id, subject_id, section_id, status, created_at"

// TeacherAssignmentRepository persists teacher-subject assignments.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository constructs the repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// FindBySubjectAndSection prefers an assignment pinned to both the subject
// and the exact section.
func (r *TeacherAssignmentRepository) FindBySubjectAndSection(ctx context.Context, subjectID, sectionID string) (*models.TeacherAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM teacher_assignments
		WHERE subject_id = $1 AND section_id = $2 AND LOWER(COALESCE(status, '')) NOT IN ('inactive', 'dropped', 'archived', 'deleted', 'removed', 'cancelled')
		ORDER BY created_at DESC LIMIT 1`, teacherAssignmentColumns)
	var ta models.TeacherAssignment
	if err := r.db.GetContext(ctx, &ta, query, subjectID, sectionID); err != nil {
		return nil, err
	}
	return &ta, nil
}

// FindActiveBySubject falls back to any live assignment for the subject
// (single-teacher-per-subject assumption).
func (r *TeacherAssignmentRepository) FindActiveBySubject(ctx context.Context, subjectID string) (*models.TeacherAssignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM teacher_assignments
		WHERE subject_id = $1 AND LOWER(COALESCE(status, '')) NOT IN ('inactive', 'dropped', 'archived', 'deleted', 'removed', 'cancelled')
		ORDER BY section_id IS NULL ASC, created_at DESC LIMIT 1`, teacherAssignmentColumns)
	var ta models.TeacherAssignment
	if err := r.db.GetContext(ctx, &ta, query, subjectID); err != nil {
		return nil, err
	}
	return &ta, nil
}

// ListActiveIDsByTeacher returns ids of every live assignment held by the
// teacher. The time-conflict check spans all of them.
func (r *TeacherAssignmentRepository) ListActiveIDsByTeacher(ctx context.Context, teacherID string) ([]string, error) {
	const query = `SELECT id FROM teacher_assignments
		WHERE teacher_id = $1 AND LOWER(COALESCE(status, '')) NOT IN ('inactive', 'dropped', 'archived', 'deleted', 'removed', 'cancelled')`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher assignment ids: %w", err)
	}
	return ids, nil
}

// FindByID loads a teacher assignment by id.
func (r *TeacherAssignmentRepository) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_assignments WHERE id = $1", teacherAssignmentColumns)
	var ta models.TeacherAssignment
	if err := r.db.GetContext(ctx, &ta, query, id); err != nil {
		return nil, err
	}
	return &ta, nil
}

// ListByTeacher returns assignments owned by a teacher with resolved names.
func (r *TeacherAssignmentRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error) {
	const query = `
SELECT ta.id, ta.teacher_id, ta.subject_id, ta.section_id, ta.status, ta.created_at,
       COALESCE(u.full_name, '') AS teacher_name, sub.code AS subject_code, sub.name AS subject_name, sec.name AS section_name
FROM teacher_assignments ta
JOIN subjects sub ON sub.id = ta.subject_id
LEFT JOIN sections sec ON sec.id = ta.section_id
LEFT JOIN users u ON u.id = ta.teacher_id
WHERE ta.teacher_id = $1
ORDER BY ta.created_at DESC`
	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher assignments: %w", err)
	}
	return assignments, nil
}

// Create inserts a new assignment.
func (r *TeacherAssignmentRepository) Create(ctx context.Context, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_assignments (id, teacher_id, subject_id, section_id, status, created_at)
		VALUES (:id, :teacher_id, :subject_id, :section_id, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create teacher assignment: %w", err)
	}
	return nil
}

// Delete removes an assignment verifying ownership.
func (r *TeacherAssignmentRepository) Delete(ctx context.Context, teacherID, assignmentID string) error {
	const query = `DELETE FROM teacher_assignments WHERE id = $1 AND teacher_id = $2`
	result, err := r.db.ExecContext(ctx, query, assignmentID, teacherID)
	if err != nil {
		return fmt.Errorf("delete teacher assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
