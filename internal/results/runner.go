// Package results executes queries and renders their rows as canonical text,
// either materialized for display or streamed as CSV, TSV or NDJSON.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/storage"
)

// Engine grants exclusive use of the query connection
type Engine interface {
	Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, q storage.Querier) error) error
}

// TableData is a materialized, bounded result
type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Runner executes queries against the engine
type Runner struct {
	engine        Engine
	queryTimeout  time.Duration
	exportTimeout time.Duration
}

// NewRunner creates a runner. Zero timeouts disable the deadline.
func NewRunner(engine Engine, queryTimeout, exportTimeout time.Duration) *Runner {
	return &Runner{engine: engine, queryTimeout: queryTimeout, exportTimeout: exportTimeout}
}

// RunQuery returns at most limit rows of sql. NULL cells are empty strings.
func (r *Runner) RunQuery(ctx context.Context, query string, limit int) (*TableData, error) {
	data := &TableData{Rows: [][]string{}}

	err := r.engine.Do(ctx, r.queryTimeout, func(ctx context.Context, q storage.Querier) error {
		return Scan(ctx, q, query, limit,
			func(columns []string) error {
				data.Headers = columns
				return nil
			},
			func(cells []sql.NullString) error {
				row := make([]string, len(cells))
				for i, cell := range cells {
					row[i] = cell.String
				}

				data.Rows = append(data.Rows, row)

				return nil
			})
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// Stream writes the result of sql to w in the given encoding. Each record is
// flushed as soon as it is encoded; a limit of zero or less streams every row.
// The connection is held until the stream finishes.
func (r *Runner) Stream(ctx context.Context, w io.Writer, query string, enc Encoding, limit int) error {
	out := newRecordWriter(w, enc)
	flusher, _ := w.(interface{ Flush() })
	count := 0

	flush := func() error {
		if err := out.Flush(); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}

		if flusher != nil {
			flusher.Flush()
		}

		return nil
	}

	err := r.engine.Do(ctx, r.exportTimeout, func(ctx context.Context, q storage.Querier) error {
		return Scan(ctx, q, query, limit,
			func(columns []string) error {
				if err := out.Header(columns); err != nil {
					return fmt.Errorf("failed to write header: %w", err)
				}

				return flush()
			},
			func(cells []sql.NullString) error {
				if err := out.Row(cells); err != nil {
					return fmt.Errorf("failed to write row: %w", err)
				}

				count++

				return flush()
			})
	})

	logger := logging.WithFields(map[string]interface{}{"format": enc.String(), "rows": count})
	if err != nil {
		logger.ErrorWithErr("Stream failed", err)
		return err
	}

	logger.Debugf("Stream finished")

	return nil
}

// Scan executes query and hands the column names and then each row, as
// canonical text, to the callbacks. It stops fetching after limit rows when
// limit is positive.
func Scan(
	ctx context.Context,
	q storage.Querier,
	query string,
	limit int,
	header func(columns []string) error,
	row func(cells []sql.NullString) error,
) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("failed to read column types: %w", err)
	}

	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = t.DatabaseTypeName()
	}

	if err := header(columns); err != nil {
		return err
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))

	for i := range values {
		pointers[i] = &values[i]
	}

	cells := make([]sql.NullString, len(columns))
	count := 0

	for (limit <= 0 || count < limit) && rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := rows.Scan(pointers...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		for i, v := range values {
			cell, err := Canonical(columns[i], typeNames[i], v)
			if err != nil {
				return err
			}

			cells[i] = cell
		}

		if err := row(cells); err != nil {
			return err
		}

		count++
	}

	return rows.Err()
}
