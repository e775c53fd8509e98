package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/scholaris/records-api/pkg/errors"
)

func newWriterMock(t *testing.T) (*StoreWriter, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewStoreWriter(sqlx.NewDb(db, "sqlmock"), nil), mock, func() { db.Close() }
}

func TestStoreWriterInsertFirstTry(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO assignments (status, student_id) VALUES ($1, $2) RETURNING *")).
		WithArgs("Active", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "status"}).AddRow("asg-1", "stu-1", "Active"))

	row, err := w.Insert(context.Background(), "assignments", FieldMap{"student_id": "stu-1", "status": "Active"})
	require.NoError(t, err)
	assert.Equal(t, "asg-1", row["id"])
	assert.Equal(t, "Active", row["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWriterStripsRejectedColumn(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO assignments (sanction, status, student_id) VALUES ($1, $2, $3) RETURNING *")).
		WillReturnError(&pq.Error{Code: "42703", Message: `column "sanction" of relation "assignments" does not exist`})
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO assignments (status, student_id) VALUES ($1, $2) RETURNING *")).
		WithArgs("Active", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "status"}).AddRow("asg-2", "stu-1", "Active"))

	row, err := w.Insert(context.Background(), "assignments", FieldMap{
		"student_id": "stu-1",
		"status":     "Active",
		"sanction":   "none",
	})
	require.NoError(t, err)
	assert.NotContains(t, row, "sanction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWriterSchemaExhausted(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO legacy_loads").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "subject_id" of relation "legacy_loads" does not exist`})
	mock.ExpectQuery("INSERT INTO legacy_loads").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "student_id" of relation "legacy_loads" does not exist`})

	_, err := w.Insert(context.Background(), "legacy_loads", FieldMap{
		"student_id": "stu-1",
		"subject_id": "sub-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSchemaExhausted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWriterNonSchemaErrorAborts(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	_, err := w.Insert(context.Background(), "assignments", FieldMap{"student_id": "stu-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	// No retry was attempted.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWriterUnknownColumnNotInFieldSetAborts(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "legacy_flag" does not exist`})

	_, err := w.Insert(context.Background(), "assignments", FieldMap{"student_id": "stu-1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrSchemaExhausted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWriterUpdateStripsRejectedColumn(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE assignments SET balance = $1, status = $2 WHERE id = $3 RETURNING *")).
		WillReturnError(&pq.Error{Code: "42703", Message: `column "balance" of relation "assignments" does not exist`})
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE assignments SET status = $1 WHERE id = $2 RETURNING *")).
		WithArgs("Inactive", "asg-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("asg-1", "Inactive"))

	row, err := w.Update(context.Background(), "assignments", "asg-1", FieldMap{
		"status":  "Inactive",
		"balance": 120.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "Inactive", row["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWriterUndefinedTableUnavailable(t *testing.T) {
	w, mock, cleanup := newWriterMock(t)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO assignments").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "assignments" does not exist`})

	_, err := w.Insert(context.Background(), "assignments", FieldMap{"student_id": "stu-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnavailable))
}
