package catalog

import (
	"context"
	"fmt"

	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/storage"
)

const (
	tablesQuery = `SELECT table_catalog, table_schema, table_name
FROM information_schema.tables
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')`

	columnsQuery = `SELECT table_catalog, table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
ORDER BY table_catalog, table_schema, table_name, ordinal_position`
)

// Build reads the engine's information_schema and unifies it
func Build(ctx context.Context, q storage.Querier, externals []External) (*Catalog, error) {
	tables, err := readTables(ctx, q)
	if err != nil {
		return nil, err
	}

	columns, err := readColumns(ctx, q)
	if err != nil {
		return nil, err
	}

	cat, err := Unify(tables, columns, externals)
	if err != nil {
		return nil, err
	}

	logging.WithFields(map[string]interface{}{
		"tables":   cat.Len(),
		"sections": len(cat.Sections),
	}).Infof("Built catalog")

	return cat, nil
}

func readTables(ctx context.Context, q storage.Querier) ([]TableRow, error) {
	rows, err := q.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []TableRow

	for rows.Next() {
		var t TableRow
		if err := rows.Scan(&t.Catalog, &t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}

		out = append(out, t)
	}

	return out, rows.Err()
}

func readColumns(ctx context.Context, q storage.Querier) ([]ColumnRow, error) {
	rows, err := q.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var out []ColumnRow

	for rows.Next() {
		var c ColumnRow
		if err := rows.Scan(&c.Catalog, &c.Schema, &c.Table, &c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("failed to scan column row: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}
