package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRows is the no-match sentinel: the query ran but matched
// nothing. Callers surface it as an observation, not a failure.
var ErrNoRows = errors.New("query: no matching rows")

// Error wraps a data-source failure. Callers treat it as a non-fatal
// tool observation.
type Error struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("query %s: %v", e.Op, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Runner executes built queries against a SQL data source and returns
// rows as generic maps.
type Runner struct {
	db *sql.DB
}

// NewRunner wraps an open database handle. The caller owns the handle.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Run executes a query. Zero matched rows yields ErrNoRows; any
// data-source failure yields *Error.
func (r *Runner) Run(ctx context.Context, q Query) ([]map[string]any, error) {
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, &Error{Op: "execute", Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &Error{Op: "columns", Err: err}
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &Error{Op: "scan", Err: err}
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalize(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "iterate", Err: err}
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out, nil
}

// RunOne executes a query expected to match a single row.
func (r *Runner) RunOne(ctx context.Context, q Query) (map[string]any, error) {
	rows, err := r.Run(ctx, q)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

// normalize maps driver types to JSON-friendly values.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}
