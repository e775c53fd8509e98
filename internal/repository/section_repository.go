package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris/records-api/internal/models"
)

const sectionColumns = "id, name, grade_level, school_year, course, created_at, updated_at"

// SectionRepository handles persistence for sections.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository creates a new section repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// List returns sections matching filters with pagination metadata.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.Section, int, error) {
	base := "FROM sections WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.GradeLevel != "" {
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)+1))
		args = append(args, filter.GradeLevel)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":        true,
		"grade_level": true,
		"school_year": true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", sectionColumns, base, sortBy, order, size, offset)
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}

	return sections, total, nil
}

// FindByID loads a section by id.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf("SELECT %s FROM sections WHERE id = $1", sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindByName resolves a section by case-insensitive name, optionally scoped
// to a school year. Assignments that reference sections only by name+year
// depend on this lookup.
func (r *SectionRepository) FindByName(ctx context.Context, name, schoolYear string) (*models.Section, error) {
	query := fmt.Sprintf("SELECT %s FROM sections WHERE LOWER(name) = LOWER($1)", sectionColumns)
	args := []interface{}{strings.TrimSpace(name)}
	if schoolYear != "" {
		query += " AND school_year = $2"
		args = append(args, schoolYear)
	}
	query += " ORDER BY created_at DESC LIMIT 1"
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, args...); err != nil {
		return nil, err
	}
	return &section, nil
}

// Create persists a new section.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if section.CreatedAt.IsZero() {
		section.CreatedAt = now
	}
	section.UpdatedAt = now

	const query = `INSERT INTO sections (id, name, grade_level, school_year, course, created_at, updated_at) VALUES (:id, :name, :grade_level, :school_year, :course, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}

// Update modifies a section.
func (r *SectionRepository) Update(ctx context.Context, section *models.Section) error {
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET name = :name, grade_level = :grade_level, school_year = :school_year, course = :course, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, section); err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	return nil
}
