package models

import "time"

// Building is a physical building resolved by case-insensitive name.
// Unknown buildings are created on first use with default capacity.
type Building struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Floors        int       `db:"floors" json:"floors"`
	RoomsPerFloor int       `db:"rooms_per_floor" json:"rooms_per_floor"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RoomAssignment binds one section to a physical room for a school year.
// At most one section may hold a given (building, floor, room, year).
type RoomAssignment struct {
	ID         string    `db:"id" json:"id"`
	BuildingID string    `db:"building_id" json:"building_id"`
	Floor      int       `db:"floor" json:"floor"`
	RoomNumber string    `db:"room_number" json:"room_number"`
	SchoolYear string    `db:"school_year" json:"school_year"`
	SectionID  string    `db:"section_id" json:"section_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
