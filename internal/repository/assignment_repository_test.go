package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/records-api/internal/models"
	appErrors "github.com/scholaris/records-api/pkg/errors"
)

func newAssignmentRepoMock(t *testing.T) (*AssignmentRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sx := sqlx.NewDb(db, "sqlmock")
	return NewAssignmentRepository(sx, NewStoreWriter(sx, nil)), mock, func() { db.Close() }
}

func assignmentRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "student_id", "section_id", "section_name", "school_year", "status", "balance", "sanction", "created_at", "updated_at"}).
		AddRow("asg-1", "stu-1", "sec-1", "A", "2025-2026", "Active", nil, nil, now, now).
		AddRow("asg-2", "stu-1", nil, "B", "2025-2026", "dropped", nil, nil, now, now)
}

func TestAssignmentRepositoryListByStudent(t *testing.T) {
	repo, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM assignments WHERE student_id = \\$1 ORDER BY updated_at DESC LIMIT 500").
		WithArgs("stu-1").
		WillReturnRows(assignmentRows())

	assignments, err := repo.ListByStudent(context.Background(), "stu-1", 0)
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, "asg-1", assignments[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryListByStudentUnprovisioned(t *testing.T) {
	repo, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .+ FROM assignments").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "assignments" does not exist`})

	_, err := repo.ListByStudent(context.Background(), "stu-1", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnavailable))
}

func TestAssignmentRepositoryCreateThroughWriter(t *testing.T) {
	repo, mock, cleanup := newAssignmentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO assignments .+ RETURNING \\*").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("asg-1"))

	sectionID := "sec-1"
	a := &models.Assignment{
		StudentID:   "stu-1",
		SectionID:   &sectionID,
		SectionName: "A",
		SchoolYear:  "2025-2026",
		Status:      "Active",
	}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
