package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/scholaris/records-api/pkg/database"
	appErrors "github.com/scholaris/records-api/pkg/errors"
)

// FieldMap carries the intended column set for one adaptive write.
type FieldMap map[string]interface{}

// StoreWriter performs single-row inserts and updates against a schema that
// evolves by additive migration. When the store rejects an unknown column,
// the offending field is dropped and the write retried with the reduced
// set; the loop is bounded by the shrinking field count. Any error that is
// not an unknown-column rejection aborts immediately.
type StoreWriter struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStoreWriter constructs a StoreWriter.
func NewStoreWriter(db *sqlx.DB, logger *zap.Logger) *StoreWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreWriter{db: db, logger: logger}
}

// Insert writes a new row and returns it as stored, which may omit fields
// the current schema rejected.
func (w *StoreWriter) Insert(ctx context.Context, table string, fields FieldMap) (map[string]interface{}, error) {
	return w.adaptiveWrite(ctx, table, fields, func(remaining FieldMap) (string, []interface{}) {
		cols := sortedColumns(remaining)
		placeholders := make([]string, len(cols))
		args := make([]interface{}, len(cols))
		for i, col := range cols {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = remaining[col]
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		return query, args
	})
}

// Update rewrites the row with the given id and returns it as stored.
func (w *StoreWriter) Update(ctx context.Context, table, id string, fields FieldMap) (map[string]interface{}, error) {
	return w.adaptiveWrite(ctx, table, fields, func(remaining FieldMap) (string, []interface{}) {
		cols := sortedColumns(remaining)
		sets := make([]string, len(cols))
		args := make([]interface{}, 0, len(cols)+1)
		for i, col := range cols {
			sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
			args = append(args, remaining[col])
		}
		args = append(args, id)
		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
			table, strings.Join(sets, ", "), len(cols)+1)
		return query, args
	})
}

func (w *StoreWriter) adaptiveWrite(ctx context.Context, table string, fields FieldMap, build func(FieldMap) (string, []interface{})) (map[string]interface{}, error) {
	remaining := make(FieldMap, len(fields))
	for k, v := range fields {
		remaining[k] = v
	}

	for len(remaining) > 0 {
		query, args := build(remaining)
		row, err := w.execReturning(ctx, query, args)
		if err == nil {
			return row, nil
		}

		c := database.Classify(err)
		if c.Kind == database.KindUndefinedColumn && c.Column != "" {
			if _, present := remaining[c.Column]; present {
				w.logger.Warn("schema behind write, dropping column",
					zap.String("table", table),
					zap.String("column", c.Column))
				delete(remaining, c.Column)
				continue
			}
		}
		return nil, wrapStoreError(err, c, fmt.Sprintf("write %s", table))
	}

	return nil, appErrors.Clone(appErrors.ErrSchemaExhausted,
		fmt.Sprintf("no acceptable column subset writing %s", table))
}

func (w *StoreWriter) execReturning(ctx context.Context, query string, args []interface{}) (map[string]interface{}, error) {
	rows, err := w.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("write returned no row")
	}

	row := map[string]interface{}{}
	if err := rows.MapScan(row); err != nil {
		return nil, err
	}
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row, nil
}

// wrapStoreError translates a classified store failure into the engine's
// error taxonomy.
func wrapStoreError(err error, c database.Classification, msg string) error {
	switch c.Kind {
	case database.KindUndefinedTable:
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, msg+": relation not provisioned")
	case database.KindUniqueViolation:
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, msg+": duplicate")
	case database.KindTransient:
		return appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, msg+": store fault")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
	}
}

func sortedColumns(fields FieldMap) []string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
