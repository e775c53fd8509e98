package models

import "time"

// StudyLoadEntry is either a section-wide curriculum entry (StudentID nil)
// or a student-specific custom entry (StudentID set, irregular students
// only). The (owner, subject) pair is unique, where owner is the student
// when set and the section otherwise.
type StudyLoadEntry struct {
	ID          string    `db:"id" json:"id"`
	SectionID   *string   `db:"section_id" json:"section_id,omitempty"`
	StudentID   *string   `db:"student_id" json:"student_id,omitempty"`
	SubjectID   string    `db:"subject_id" json:"subject_id"`
	TeacherName *string   `db:"teacher_name" json:"teacher_name,omitempty"`
	SchoolYear  string    `db:"school_year" json:"school_year"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudyLoadDetail flattens an entry with its subject for UI consumption.
type StudyLoadDetail struct {
	StudyLoadEntry
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	Units       int    `db:"units" json:"units"`
}
