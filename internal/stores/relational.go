// Relational target store backed by SQLite.
package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// RelationalStore implements [TargetStore] over a SQLite database. Upserts use
// INSERT ... ON CONFLICT DO UPDATE keyed by the caller's declared conflict
// column, so re-running a migration converges instead of accumulating rows.
type RelationalStore struct {
	db *sql.DB
}

// NewRelationalStore creates a target store over an open database connection.
// The connection is owned by the caller; Close it there.
func NewRelationalStore(db *sql.DB) *RelationalStore {
	return &RelationalStore{db: db}
}

// Upsert implements [TargetStore].
//
// The emitted SQL uses a deterministic column order so identical rows produce
// identical statements. Shape rejections come back as [*SchemaError] with the
// precise set of missing columns, determined by schema introspection rather
// than by matching driver message text.
func (r *RelationalStore) Upsert(ctx context.Context, table, conflictColumn string, row Row) error {
	if len(row) == 0 {
		return fmt.Errorf("empty row for table %q", table)
	}
	if _, ok := row[conflictColumn]; !ok {
		return fmt.Errorf("row for table %q is missing conflict column %q", table, conflictColumn)
	}

	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	var updates []string
	for i, col := range columns {
		placeholders[i] = "?"
		args[i] = row[col]
		if col != conflictColumn && col != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		conflictColumn,
		strings.Join(updates, ", "),
	)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return r.classify(ctx, table, columns, err)
	}
	return nil
}

// Count implements [TargetStore].
func (r *RelationalStore) Count(ctx context.Context, table string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	if err != nil {
		return 0, r.classify(ctx, table, nil, err)
	}
	return count, nil
}

// GetByNaturalKey fetches one row by its natural key. Columns absent from the
// stored row come back as nil values.
func (r *RelationalStore) GetByNaturalKey(ctx context.Context, table, naturalKey string) (Row, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE natural_key = ?", table), naturalKey)
	if err != nil {
		return nil, r.classify(ctx, table, nil, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(Row, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, rows.Err()
}

// tableColumns returns the set of columns actually present at the destination
// for a table. An empty set means the table does not exist.
func (r *RelationalStore) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		present[name] = true
	}
	return present, rows.Err()
}

// classify maps a driver failure onto the typed error taxonomy.
//
// Generic statement errors are cross-checked against the live schema: if the
// table or any emitted column is absent, the failure is schema drift, not a
// bad statement.
func (r *RelationalStore) classify(ctx context.Context, table string, emitted []string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return &ConstraintError{Table: table, Err: err}
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrProtocol:
			return &ConnectivityError{Store: "relational", Op: "exec", Err: err}
		}
	}

	present, introspectErr := r.tableColumns(ctx, table)
	if introspectErr == nil {
		if len(present) == 0 {
			return &SchemaError{Table: table, TableMissing: true, Err: err}
		}
		var missing []string
		for _, col := range emitted {
			if !present[col] {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			return &SchemaError{Table: table, Columns: missing, Err: err}
		}
	}

	return fmt.Errorf("write to table %q failed: %w", table, err)
}
