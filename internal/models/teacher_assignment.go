package models

import "time"

// TeacherAssignment records that a teacher may teach a subject, optionally
// pinned to one section. Status is free text like Assignment.Status.
type TeacherAssignment struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	SectionID *string   `db:"section_id" json:"section_id,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TeacherAssignmentDetail enriches assignments with descriptive fields.
type TeacherAssignmentDetail struct {
	TeacherAssignment
	TeacherName string  `db:"teacher_name" json:"teacher_name"`
	SubjectCode string  `db:"subject_code" json:"subject_code"`
	SubjectName string  `db:"subject_name" json:"subject_name"`
	SectionName *string `db:"section_name" json:"section_name,omitempty"`
}
