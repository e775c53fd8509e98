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
)

// RoomRepository persists buildings and section room claims.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// FindBuildingByName resolves a building case-insensitively.
func (r *RoomRepository) FindBuildingByName(ctx context.Context, name string) (*models.Building, error) {
	const query = `SELECT id, name, floors, rooms_per_floor, created_at FROM buildings WHERE LOWER(name) = LOWER($1)`
	var b models.Building
	if err := r.db.GetContext(ctx, &b, query, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBuilding inserts a building with the given capacity defaults.
func (r *RoomRepository) CreateBuilding(ctx context.Context, b *models.Building) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO buildings (id, name, floors, rooms_per_floor, created_at) VALUES (:id, :name, :floors, :rooms_per_floor, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("create building: %w", err)
	}
	return nil
}

// FindBySlot returns whichever section currently claims the physical room
// for the school year.
func (r *RoomRepository) FindBySlot(ctx context.Context, buildingID string, floor int, roomNumber, schoolYear string) (*models.RoomAssignment, error) {
	const query = `SELECT id, building_id, floor, room_number, school_year, section_id, created_at, updated_at
		FROM room_assignments
		WHERE building_id = $1 AND floor = $2 AND room_number = $3 AND school_year = $4 LIMIT 1`
	var ra models.RoomAssignment
	if err := r.db.GetContext(ctx, &ra, query, buildingID, floor, roomNumber, schoolYear); err != nil {
		return nil, err
	}
	return &ra, nil
}

// FindBySection returns the section's current room claim for the year.
func (r *RoomRepository) FindBySection(ctx context.Context, sectionID, schoolYear string) (*models.RoomAssignment, error) {
	const query = `SELECT id, building_id, floor, room_number, school_year, section_id, created_at, updated_at
		FROM room_assignments
		WHERE section_id = $1 AND school_year = $2 LIMIT 1`
	var ra models.RoomAssignment
	if err := r.db.GetContext(ctx, &ra, query, sectionID, schoolYear); err != nil {
		return nil, err
	}
	return &ra, nil
}

// Upsert moves the section's single room claim for a year: the existing row
// is rewritten in place when one exists, otherwise a new row is inserted.
func (r *RoomRepository) Upsert(ctx context.Context, ra *models.RoomAssignment) error {
	now := time.Now().UTC()
	existing, err := r.FindBySection(ctx, ra.SectionID, ra.SchoolYear)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("find section room claim: %w", err)
	}

	if existing != nil {
		ra.ID = existing.ID
		ra.CreatedAt = existing.CreatedAt
		ra.UpdatedAt = now
		const query = `UPDATE room_assignments SET building_id = :building_id, floor = :floor, room_number = :room_number, updated_at = :updated_at WHERE id = :id`
		if _, err := r.db.NamedExecContext(ctx, query, ra); err != nil {
			return fmt.Errorf("update room assignment: %w", err)
		}
		return nil
	}

	if ra.ID == "" {
		ra.ID = uuid.NewString()
	}
	ra.CreatedAt = now
	ra.UpdatedAt = now
	const query = `INSERT INTO room_assignments (id, building_id, floor, room_number, school_year, section_id, created_at, updated_at)
		VALUES (:id, :building_id, :floor, :room_number, :school_year, :section_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, ra); err != nil {
		return fmt.Errorf("insert room assignment: %w", err)
	}
	return nil
}
