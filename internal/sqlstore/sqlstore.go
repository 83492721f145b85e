// Package sqlstore is the identifier-guarded SQL capability over an embedded
// SQLite database. Validated identifiers are the only values ever
// interpolated into query text; every filter value and limit goes through a
// placeholder. There is no raw-SQL entry point.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/toolgate/internal/guard"
)

// ErrNotFound marks a table that passed validation but does not exist.
// Handlers map it to 404 rather than a policy refusal.
var ErrNotFound = errors.New("sqlstore: not found")

// Open opens (or creates) the SQLite database at path with the pragmas the
// gateway needs for concurrent handlers: WAL for readers alongside the
// writer, a busy timeout instead of immediate SQLITE_BUSY.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", path, err)
	}
	return db, nil
}

// Service wraps the shared database handle with the current policy. The
// handle outlives reloads; the policy fields are rebuilt on each reload.
type Service struct {
	DB     *sql.DB
	Ident  guard.IdentPolicy
	Limits guard.Limits
}

// Column describes one column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// SelectRequest is one guarded read query. Filters are ANDed equality
// predicates; their values are always parameterized.
type SelectRequest struct {
	Schema  string
	Table   string
	Columns []string
	Filters map[string]any
	Limit   int
}

// SelectResult is the outcome of a guarded select.
type SelectResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Tables lists the user tables in schema (empty means main). The internal
// sqlite_* tables are never listed; their prefix is reserved anyway.
func (s Service) Tables(ctx context.Context, schema string) ([]string, error) {
	schema, rej := s.schemaName(schema)
	if rej != nil {
		return nil, rej
	}

	q := fmt.Sprintf("SELECT name FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name", schema)
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlstore: scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Describe returns the column layout of a table. A validated table name that
// does not exist is ErrNotFound.
func (s Service) Describe(ctx context.Context, schema, table string) ([]Column, error) {
	schema, rej := s.schemaName(schema)
	if rej != nil {
		return nil, rej
	}
	table, rej = guard.ValidateIdentifier(table, s.Ident)
	if rej != nil {
		return nil, rej
	}

	q := fmt.Sprintf("PRAGMA %s.table_info(%s)", schema, table)
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			c       Column
			dflt    sql.NullString
			notNull int
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("sqlstore: scan column: %w", err)
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk != 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// table_info yields zero rows for a missing table instead of an error.
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, table)
	}
	return cols, nil
}

// Select runs a guarded read query. The row cap probes one row past the
// limit to report truncation without a second query.
func (s Service) Select(ctx context.Context, req SelectRequest) (*SelectResult, error) {
	schema, rej := s.schemaName(req.Schema)
	if rej != nil {
		return nil, rej
	}
	table, rej := guard.ValidateIdentifier(req.Table, s.Ident)
	if rej != nil {
		return nil, rej
	}
	cap, rej := guard.CapCount(req.Limit, s.Limits.MaxRows)
	if rej != nil {
		return nil, rej
	}

	sel := "*"
	if len(req.Columns) > 0 {
		validated := make([]string, 0, len(req.Columns))
		for _, c := range req.Columns {
			name, rej := guard.ValidateIdentifier(c, s.Ident)
			if rej != nil {
				return nil, rej
			}
			validated = append(validated, name)
		}
		sel = strings.Join(validated, ", ")
	}

	var (
		where string
		args  []any
	)
	if len(req.Filters) > 0 {
		names := sortedKeys(req.Filters)
		preds := make([]string, 0, len(names))
		for _, name := range names {
			col, rej := guard.ValidateIdentifier(name, s.Ident)
			if rej != nil {
				return nil, rej
			}
			preds = append(preds, col+" = ?")
			args = append(args, req.Filters[name])
		}
		where = " WHERE " + strings.Join(preds, " AND ")
	}

	q := fmt.Sprintf("SELECT %s FROM %s.%s%s LIMIT ?", sel, schema, table, where)
	args = append(args, cap+1)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		if isMissingTable(err) {
			return nil, fmt.Errorf("%w: table %s", ErrNotFound, table)
		}
		return nil, fmt.Errorf("sqlstore: select from %s: %w", table, err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: columns: %w", err)
	}

	res := &SelectResult{Columns: colNames}
	for rows.Next() {
		values := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlstore: scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(res.Rows) > cap {
		res.Rows = res.Rows[:cap]
		res.Truncated = true
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// Insert adds one row. Column names are validated identifiers; every value
// is parameterized. Columns are sorted so the generated SQL is deterministic
// for a given value set.
func (s Service) Insert(ctx context.Context, schema, table string, values map[string]any) (int64, error) {
	schema, rej := s.schemaName(schema)
	if rej != nil {
		return 0, rej
	}
	table, rej = guard.ValidateIdentifier(table, s.Ident)
	if rej != nil {
		return 0, rej
	}
	if len(values) == 0 {
		return 0, guard.Reject(guard.KindMalformedSyntax, "insert requires at least one column value")
	}

	names := sortedKeys(values)
	cols := make([]string, 0, len(names))
	marks := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		col, rej := guard.ValidateIdentifier(name, s.Ident)
		if rej != nil {
			return 0, rej
		}
		cols = append(cols, col)
		marks = append(marks, "?")
		args = append(args, values[name])
	}

	q := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		schema, table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		if isMissingTable(err) {
			return 0, fmt.Errorf("%w: table %s", ErrNotFound, table)
		}
		return 0, fmt.Errorf("sqlstore: insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	return n, nil
}

// schemaName resolves and validates a schema, defaulting to main.
func (s Service) schemaName(schema string) (string, *guard.Rejection) {
	if schema == "" {
		schema = "main"
	}
	return guard.ValidateSchemaName(schema, s.Ident)
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
