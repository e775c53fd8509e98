package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholaris/records-api/internal/models"
)

const scheduleDetailColumns = `sch.id, sch.section_id, sch.subject_id, sch.teacher_assignment_id, sch.day_of_week,
       sch.time_start, sch.time_end, sch.room_assignment_id, sch.school_year, sch.created_at, sch.updated_at,
       sub.code AS subject_code, sub.name AS subject_name, sec.name AS section_name,
       u.full_name AS teacher_name, b.name AS building_name, ra.floor AS floor, ra.room_number AS room_number`

const scheduleDetailJoins = `FROM schedules sch
JOIN subjects sub ON sub.id = sch.subject_id
JOIN sections sec ON sec.id = sch.section_id
LEFT JOIN teacher_assignments ta ON ta.id = sch.teacher_assignment_id
LEFT JOIN users u ON u.id = ta.teacher_id
LEFT JOIN room_assignments ra ON ra.id = sch.room_assignment_id
LEFT JOIN buildings b ON b.id = ra.building_id`

// ScheduleRepository provides persistence for schedules. Inserts go through
// the adaptive StoreWriter: the schedules table gains columns (room
// references, audit stamps) ahead of some deployments' migrations.
type ScheduleRepository struct {
	db     *sqlx.DB
	writer *StoreWriter
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB, writer *StoreWriter) *ScheduleRepository {
	return &ScheduleRepository{db: db, writer: writer}
}

// List returns denormalized schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	base := scheduleDetailJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("sch.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("sch.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("ta.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.DayOfWeek != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(sch.day_of_week) = LOWER($%d)", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("sch.school_year = $%d", len(args)+1))
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY sch.day_of_week ASC, sch.time_start ASC LIMIT %d OFFSET %d",
		scheduleDetailColumns, base, size, offset)
	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	return schedules, total, nil
}

// FindDetailByID loads one denormalized schedule row.
func (r *ScheduleRepository) FindDetailByID(ctx context.Context, id string) (*models.ScheduleDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE sch.id = $1", scheduleDetailColumns, scheduleDetailJoins)
	var sched models.ScheduleDetail
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// ListByAssignmentIDsAndDay fetches every schedule row held by any of the
// given teacher assignments on one day. Placeholder rows are excluded; they
// carry no time claim.
func (r *ScheduleRepository) ListByAssignmentIDsAndDay(ctx context.Context, assignmentIDs []string, dayOfWeek string) ([]models.Schedule, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, section_id, subject_id, teacher_assignment_id, day_of_week, time_start, time_end, room_assignment_id, school_year, created_at, updated_at
		FROM schedules
		WHERE teacher_assignment_id IN (?) AND LOWER(day_of_week) = LOWER(?)
		AND NOT (time_start = '00:00' AND time_end = '00:00')`, assignmentIDs, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("build schedule day query: %w", err)
	}
	query = r.db.Rebind(query)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("list schedules by day: %w", err)
	}
	return schedules, nil
}

// FindPlaceholder returns the placeholder row for a (section, subject, year)
// if one exists.
func (r *ScheduleRepository) FindPlaceholder(ctx context.Context, sectionID, subjectID, schoolYear string) (*models.Schedule, error) {
	const query = `SELECT id, section_id, subject_id, teacher_assignment_id, day_of_week, time_start, time_end, room_assignment_id, school_year, created_at, updated_at
		FROM schedules
		WHERE section_id = $1 AND subject_id = $2 AND school_year = $3
		AND time_start = '00:00' AND time_end = '00:00' LIMIT 1`
	var sched models.Schedule
	if err := r.db.GetContext(ctx, &sched, query, sectionID, subjectID, schoolYear); err != nil {
		return nil, err
	}
	return &sched, nil
}

// Create stores a new schedule row through the adaptive writer.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	fields := FieldMap{
		"id":                    schedule.ID,
		"section_id":            schedule.SectionID,
		"subject_id":            schedule.SubjectID,
		"teacher_assignment_id": schedule.TeacherAssignmentID,
		"day_of_week":           schedule.DayOfWeek,
		"time_start":            schedule.TimeStart,
		"time_end":              schedule.TimeEnd,
		"room_assignment_id":    schedule.RoomAssignmentID,
		"school_year":           schedule.SchoolYear,
		"created_at":            schedule.CreatedAt,
		"updated_at":            schedule.UpdatedAt,
	}
	if _, err := r.writer.Insert(ctx, "schedules", fields); err != nil {
		return err
	}
	return nil
}

// Delete removes a schedule by id.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
