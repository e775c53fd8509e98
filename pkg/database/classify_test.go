package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyUndefinedColumn(t *testing.T) {
	err := &pq.Error{Code: "42703", Message: `column "sanction" of relation "assignments" does not exist`}
	c := Classify(err)
	assert.Equal(t, KindUndefinedColumn, c.Kind)
	assert.Equal(t, "sanction", c.Column)
}

func TestClassifyUndefinedColumnFromColumnField(t *testing.T) {
	err := &pq.Error{Code: "42703", Column: "balance"}
	c := Classify(err)
	assert.Equal(t, KindUndefinedColumn, c.Kind)
	assert.Equal(t, "balance", c.Column)
}

func TestClassifyUndefinedTable(t *testing.T) {
	err := &pq.Error{Code: "42P01", Message: `relation "assignments" does not exist`}
	assert.Equal(t, KindUndefinedTable, Classify(err).Kind)
}

func TestClassifyUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert study load: %w", &pq.Error{Code: "23505"})
	assert.Equal(t, KindUniqueViolation, Classify(err).Kind)
}

func TestClassifyConnectionFault(t *testing.T) {
	err := &pq.Error{Code: "08006"}
	assert.Equal(t, KindTransient, Classify(err).Kind)
}

func TestClassifyNoRows(t *testing.T) {
	assert.Equal(t, KindNoRows, Classify(sql.ErrNoRows).Kind)
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, Classify(errors.New("boom")).Kind)
	assert.Equal(t, KindUnknown, Classify(nil).Kind)
}
