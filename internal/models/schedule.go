package models

import "time"

// PlaceholderTime is the sentinel meaning "time not yet decided". A schedule
// row whose start and end both carry it declares intent to teach a subject
// in a section without fixing a weekly slot.
const PlaceholderTime = "00:00"

// Schedule is a single weekly occurrence of a subject for a section.
// TimeStart/TimeEnd are "HH:MM" strings; the range is half-open. The
// teacher assignment reference is nil only for placeholder rows.
type Schedule struct {
	ID                  string    `db:"id" json:"id"`
	SectionID           string    `db:"section_id" json:"section_id"`
	SubjectID           string    `db:"subject_id" json:"subject_id"`
	TeacherAssignmentID *string   `db:"teacher_assignment_id" json:"teacher_assignment_id,omitempty"`
	DayOfWeek           string    `db:"day_of_week" json:"day_of_week"`
	TimeStart           string    `db:"time_start" json:"time_start"`
	TimeEnd             string    `db:"time_end" json:"time_end"`
	RoomAssignmentID    *string   `db:"room_assignment_id" json:"room_assignment_id,omitempty"`
	SchoolYear          string    `db:"school_year" json:"school_year"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// IsPlaceholder reports whether the row carries the zero-time sentinel on
// both ends.
func (s Schedule) IsPlaceholder() bool {
	return isPlaceholderTime(s.TimeStart) && isPlaceholderTime(s.TimeEnd)
}

func isPlaceholderTime(v string) bool {
	return v == "" || v == PlaceholderTime || v == PlaceholderTime+":00"
}

// ScheduleDetail flattens a schedule with resolved names for UI consumption.
type ScheduleDetail struct {
	Schedule
	SubjectCode  string  `db:"subject_code" json:"subject_code"`
	SubjectName  string  `db:"subject_name" json:"subject_name"`
	SectionName  string  `db:"section_name" json:"section_name"`
	TeacherName  *string `db:"teacher_name" json:"teacher_name,omitempty"`
	BuildingName *string `db:"building_name" json:"building_name,omitempty"`
	Floor        *int    `db:"floor" json:"floor,omitempty"`
	RoomNumber   *string `db:"room_number" json:"room_number,omitempty"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	SectionID  string
	SubjectID  string
	TeacherID  string
	DayOfWeek  string
	SchoolYear string
	Page       int
	PageSize   int
}
