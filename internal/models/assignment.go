package models

import "time"

// Assignment is a student's claim to a section membership for a school
// year. The table predates the engine: duplicates, historical rows and rows
// that name a section only by name+year all occur, and Status is free text.
// Exactly one row per student is treated as canonical at read time.
type Assignment struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	SectionID   *string   `db:"section_id" json:"section_id,omitempty"`
	SectionName string    `db:"section_name" json:"section_name"`
	SchoolYear  string    `db:"school_year" json:"school_year"`
	Status      string    `db:"status" json:"status"`
	Balance     *float64  `db:"balance" json:"balance,omitempty"`
	Sanction    *string   `db:"sanction" json:"sanction,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// AssignmentDetail flattens an assignment with its resolved section for
// direct UI consumption.
type AssignmentDetail struct {
	Assignment
	ResolvedSectionName string `db:"resolved_section_name" json:"resolved_section_name"`
	GradeLevel          string `db:"grade_level" json:"grade_level"`
	Course              string `db:"course" json:"course"`
	StudentName         string `db:"student_name" json:"student_name"`
}

// AssignmentFilter captures filters for listing assignments.
type AssignmentFilter struct {
	StudentID  string
	SectionID  string
	SchoolYear string
	Page       int
	PageSize   int
}
