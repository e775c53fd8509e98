package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris/records-api/internal/models"
	"github.com/scholaris/records-api/pkg/database"
)

const assignmentColumns = "id, student_id, section_id, section_name, school_year, status, balance, sanction, created_at, updated_at"

// AssignmentRepository provides persistence for student section assignments.
// Writes go through the adaptive StoreWriter because the assignments table
// is the one the legacy migrations lag behind on (financial and sanction
// columns arrive per deployment).
type AssignmentRepository struct {
	db     *sqlx.DB
	writer *StoreWriter
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sqlx.DB, writer *StoreWriter) *AssignmentRepository {
	return &AssignmentRepository{db: db, writer: writer}
}

// ListByStudent returns every assignment row for a student, newest update
// first, bounded by limit. An unprovisioned relation surfaces as
// ErrUnavailable so the resolver can treat it as "no assignment".
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.Assignment, error) {
	if limit <= 0 {
		limit = 500
	}
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE student_id = $1 ORDER BY updated_at DESC LIMIT %d", assignmentColumns, limit)
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, studentID); err != nil {
		if c := database.Classify(err); c.Kind == database.KindUndefinedTable {
			return nil, wrapStoreError(err, c, "list assignments")
		}
		return nil, fmt.Errorf("list assignments for student: %w", err)
	}
	return assignments, nil
}

// FindByID loads an assignment by id.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments WHERE id = $1", assignmentColumns)
	var a models.Assignment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindDetailByID loads an assignment flattened with section and student
// names resolved.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	const query = `SELECT a.id, a.student_id, a.section_id, a.section_name, a.school_year, a.status, a.balance, a.sanction, a.created_at, a.updated_at,
		COALESCE(s.name, a.section_name) AS resolved_section_name,
		COALESCE(s.grade_level, '') AS grade_level,
		COALESCE(s.course, '') AS course,
		COALESCE(u.full_name, '') AS student_name
		FROM assignments a
		LEFT JOIN sections s ON s.id = a.section_id
		LEFT JOIN users u ON u.id = a.student_id
		WHERE a.id = $1`
	var detail models.AssignmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns denormalized assignments with optional filtering.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error) {
	base := `FROM assignments a
		LEFT JOIN sections s ON s.id = a.section_id
		LEFT JOIN users u ON u.id = a.student_id
		WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("a.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("a.school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.student_id, a.section_id, a.section_name, a.school_year, a.status, a.balance, a.sanction, a.created_at, a.updated_at,
		COALESCE(s.name, a.section_name) AS resolved_section_name,
		COALESCE(s.grade_level, '') AS grade_level,
		COALESCE(s.course, '') AS course,
		COALESCE(u.full_name, '') AS student_name %s ORDER BY a.updated_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var details []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return details, total, nil
}

// Create inserts an assignment through the adaptive writer.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	fields := FieldMap{
		"id":           a.ID,
		"student_id":   a.StudentID,
		"section_id":   a.SectionID,
		"section_name": a.SectionName,
		"school_year":  a.SchoolYear,
		"status":       a.Status,
		"balance":      a.Balance,
		"sanction":     a.Sanction,
		"created_at":   a.CreatedAt,
		"updated_at":   a.UpdatedAt,
	}
	if _, err := r.writer.Insert(ctx, "assignments", fields); err != nil {
		return err
	}
	return nil
}

// Update rewrites the mutable columns through the adaptive writer.
func (r *AssignmentRepository) Update(ctx context.Context, a *models.Assignment) error {
	a.UpdatedAt = time.Now().UTC()
	fields := FieldMap{
		"section_id":   a.SectionID,
		"section_name": a.SectionName,
		"school_year":  a.SchoolYear,
		"status":       a.Status,
		"balance":      a.Balance,
		"sanction":     a.Sanction,
		"updated_at":   a.UpdatedAt,
	}
	if _, err := r.writer.Update(ctx, "assignments", a.ID, fields); err != nil {
		return err
	}
	return nil
}

// Delete removes an assignment row (admin only; the domain prefers marking
// status inactive).
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsNotFound reports whether an error is the store's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
