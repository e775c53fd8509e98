package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStudyLoadRepoMock(t *testing.T) (*StudyLoadRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sx := sqlx.NewDb(db, "sqlmock")
	return NewStudyLoadRepository(sx), mock, func() { db.Close() }
}

func studyLoadRows(studentID interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "section_id", "student_id", "subject_id", "teacher_name", "school_year", "created_at", "updated_at"}).
		AddRow("sl-1", "sec-1", studentID, "subj-1", nil, "2025-2026", now, now)
}

func TestStudyLoadRepositoryFindCurriculumEntry(t *testing.T) {
	repo, mock, cleanup := newStudyLoadRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`FROM study_loads WHERE section_id = \$1 AND subject_id = \$2 AND student_id IS NULL`).
		WithArgs("sec-1", "subj-1").
		WillReturnRows(studyLoadRows(nil))

	entry, err := repo.FindCurriculumEntry(context.Background(), "sec-1", "subj-1")
	require.NoError(t, err)
	assert.Equal(t, "sl-1", entry.ID)
	assert.Nil(t, entry.StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyLoadRepositoryFindCustomEntryBySubjectCode(t *testing.T) {
	repo, mock, cleanup := newStudyLoadRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`subject_id IN \(SELECT id FROM subjects WHERE LOWER\(code\) = LOWER\(\$2\)\)`).
		WithArgs("stu-1", "CS101").
		WillReturnRows(studyLoadRows("stu-1"))

	entry, err := repo.FindCustomEntryBySubjectCode(context.Background(), "stu-1", "CS101")
	require.NoError(t, err)
	require.NotNil(t, entry.StudentID)
	assert.Equal(t, "stu-1", *entry.StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyLoadRepositoryDeleteCustomByStudent(t *testing.T) {
	repo, mock, cleanup := newStudyLoadRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM study_loads WHERE student_id = \$1`).
		WithArgs("stu-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteCustomByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudyLoadRepositoryDeleteMissing(t *testing.T) {
	repo, mock, cleanup := newStudyLoadRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM study_loads WHERE id = \$1`).
		WithArgs("sl-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "sl-404")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}
