package models

import "time"

// Section is an institution-owned class group for a school year.
type Section struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	GradeLevel string    `db:"grade_level" json:"grade_level"`
	SchoolYear string    `db:"school_year" json:"school_year"`
	Course     string    `db:"course" json:"course"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SectionFilter captures filters for listing sections.
type SectionFilter struct {
	SchoolYear string
	GradeLevel string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
