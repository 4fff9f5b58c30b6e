// SPDX-License-Identifier: GPL-3.0-or-later

package sqlquery

import (
	"context"
	"database/sql"
	"time"
)

// Queryer is the minimal query interface required by the engine.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RowFunc receives the column names once per result set and the values of every row.
// NULL values are passed as empty strings.
type RowFunc func(columns []string) (func(values []string) error, error)

// QueryRows executes query and streams the rows through fn.
// The returned duration measures query submission latency (QueryContext call).
func QueryRows(ctx context.Context, q Queryer, query string, fn RowFunc, args ...any) (time.Duration, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	queryDuration := time.Since(start)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()
	if err := readRows(rows, fn); err != nil {
		return queryDuration, err
	}
	return queryDuration, nil
}

func readRows(rows *sql.Rows, fn RowFunc) error {
	if fn == nil {
		return nil
	}

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	handle, err := fn(columns)
	if err != nil {
		return err
	}

	values := makeValues(len(columns))
	strs := make([]string, len(columns))
	for rows.Next() {
		if err := rows.Scan(values...); err != nil {
			return err
		}
		for i := range values {
			strs[i] = valueToString(values[i])
		}
		if err := handle(strs); err != nil {
			return err
		}
	}
	return rows.Err()
}

func valueToString(value any) string {
	v, ok := value.(*sql.NullString)
	if !ok || !v.Valid {
		return ""
	}
	return v.String
}

func makeValues(size int) []any {
	vs := make([]any, size)
	for i := range vs {
		vs[i] = &sql.NullString{}
	}
	return vs
}
