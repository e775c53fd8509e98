package database

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"regexp"

	"github.com/lib/pq"
)

// Kind enumerates store failure categories the engine reacts to.
type Kind int

const (
	// KindUnknown covers everything the classifier does not recognise.
	KindUnknown Kind = iota
	// KindUndefinedColumn means the statement referenced a column the
	// current schema does not carry (SQLSTATE 42703).
	KindUndefinedColumn
	// KindUndefinedTable means the relation itself is not provisioned
	// (SQLSTATE 42P01).
	KindUndefinedTable
	// KindUniqueViolation means a unique constraint rejected the write
	// (SQLSTATE 23505).
	KindUniqueViolation
	// KindTransient covers connection-level faults worth surfacing as
	// retryable to the caller.
	KindTransient
	// KindNoRows maps sql.ErrNoRows.
	KindNoRows
)

// Classification is the typed result of inspecting a store error.
type Classification struct {
	Kind Kind
	// Column carries the offending column name for KindUndefinedColumn.
	Column string
}

// quotedIdent pulls the first quoted identifier out of a driver message,
// e.g. `column "sanction" of relation "assignments" does not exist`.
var quotedIdent = regexp.MustCompile(`"([^"]+)"`)

// Classify maps a raw store error onto the engine's taxonomy. Callers never
// inspect driver message text themselves; this is the single place where
// SQLSTATE codes are interpreted.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Classification{Kind: KindNoRows}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return Classification{Kind: KindUndefinedColumn, Column: undefinedColumnName(pqErr)}
		case "42P01":
			return Classification{Kind: KindUndefinedTable}
		case "23505":
			return Classification{Kind: KindUniqueViolation}
		}
		if pqErr.Code.Class() == "08" {
			return Classification{Kind: KindTransient}
		}
		return Classification{Kind: KindUnknown}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return Classification{Kind: KindTransient}
	}
	return Classification{Kind: KindUnknown}
}

func undefinedColumnName(pqErr *pq.Error) string {
	// Postgres reports the column via the Column field for some statement
	// shapes and only in the message for others.
	if pqErr.Column != "" {
		return pqErr.Column
	}
	if m := quotedIdent.FindStringSubmatch(pqErr.Message); m != nil {
		return m[1]
	}
	return ""
}
