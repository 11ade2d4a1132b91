// Package probe checks external databases before DuckDB attaches them, so a
// wrong path or an unreachable server fails startup with a clear message.
package probe

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/logging"
)

// Report lists what an external database exposes
type Report struct {
	Source config.Source
	Kind   config.BackendKind
	Tables []string
	// Missing holds allow-listed tables the database does not have
	Missing []string
}

// Check connects to the database behind source and lists its tables.
// Connection failures are configuration errors.
func Check(ctx context.Context, source config.Source) (*Report, error) {
	kind, err := source.Kind()
	if err != nil {
		return nil, err
	}

	var tables []string

	switch kind {
	case config.BackendPostgres:
		tables, err = postgresTables(ctx, source.ConnectionString())
	case config.BackendSQLite:
		tables, err = sqliteTables(ctx, source.ConnectionString())
	default:
		return nil, errors.UnsupportedDatabaseKind(source.URI)
	}

	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeConfig, "cannot reach database %s", source.Name).
			WithSuggestion("Check that the database exists and the connection string is correct")
	}

	sort.Strings(tables)

	report := &Report{Source: source, Kind: kind, Tables: tables}
	report.Missing = missing(source.Tables, tables)

	logger := logging.WithFields(map[string]interface{}{
		"name":   source.Name,
		"type":   kind.String(),
		"tables": len(tables),
	})

	for _, name := range report.Missing {
		logger.WithField("table", name).Warnf("Allow-listed table not found")
	}

	logger.Debugf("Probed database")

	return report, nil
}

// missing returns the allow-listed names absent from tables. Entries may be
// bare names or schema-qualified.
func missing(allow, tables []string) []string {
	present := make(map[string]bool, len(tables)*2)
	for _, t := range tables {
		present[t] = true
		if i := strings.LastIndexByte(t, '.'); i >= 0 {
			present[t[i+1:]] = true
		}
	}

	var out []string

	for _, name := range allow {
		if !present[name] {
			out = append(out, name)
		}
	}

	return out
}

func sqliteTables(ctx context.Context, path string) ([]string, error) {
	uri, err := readOnlyURI(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list sqlite tables: %w", err)
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan sqlite table: %w", err)
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// readOnlyURI opens path read-only so a missing file is reported instead of created
func readOnlyURI(path string) (string, error) {
	if path == "" || path == ":memory:" || strings.Contains(path, "mode=memory") {
		return "", fmt.Errorf("in-memory sqlite databases cannot be attached")
	}

	if !strings.HasPrefix(path, "file:") {
		// escaped so "?", "#" and "%" in a file name stay part of the path
		u := url.URL{Scheme: "file", Path: path, OmitHost: true, RawQuery: "mode=ro"}
		return u.String(), nil
	}

	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse sqlite uri: %w", err)
	}

	q := u.Query()
	q.Set("mode", "ro")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func postgresTables(ctx context.Context, dsn string) ([]string, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, `SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_schema NOT IN ('information_schema', 'pg_catalog')`)
	if err != nil {
		return nil, fmt.Errorf("failed to list postgres tables: %w", err)
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("failed to scan postgres table: %w", err)
		}

		if schema == "public" {
			tables = append(tables, name)
		} else {
			tables = append(tables, schema+"."+name)
		}
	}

	return tables, rows.Err()
}
