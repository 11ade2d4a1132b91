package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"golang.org/x/sync/semaphore"

	"github.com/kyleking/sqlnow/internal/config"
	sqlerrors "github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/logging"
)

// Querier is the statement surface of the engine connection
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DuckDB owns the single engine connection. Every statement runs inside Do,
// which grants exclusive use of the connection until the callback returns.
type DuckDB struct {
	db   *sql.DB
	path string
	sem  *semaphore.Weighted
}

// NewDuckDB opens a DuckDB database at dbPath, or an in-memory one when dbPath is empty
func NewDuckDB(dbPath string) (*DuckDB, error) {
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one long-lived connection keeps session settings and attachments stable
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DuckDB{
		db:   db,
		path: dbPath,
		sem:  semaphore.NewWeighted(1),
	}, nil
}

// Path returns the database file, empty for in-memory databases
func (d *DuckDB) Path() string {
	return d.path
}

// Do runs fn with exclusive use of the connection. A positive timeout bounds
// both waiting for the connection and fn itself; on expiry the result is a
// timeout error and the connection is released.
func (d *DuckDB) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, q Querier) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return deadlineError(ctx.Err(), timeout)
	}
	defer d.sem.Release(1)

	err := fn(ctx, d.db)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return deadlineError(ctx.Err(), timeout)
	}

	return err
}

func deadlineError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sqlerrors.Wrapf(err, sqlerrors.ErrTypeTimeout, "query did not finish within %s", timeout)
	}

	return err
}

// Close closes the database
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// LoadExtension installs and loads a DuckDB extension
func LoadExtension(ctx context.Context, q Querier, name string) error {
	logging.WithField("extension", name).Debugf("Loading extension")

	for _, verb := range []string{"INSTALL", "LOAD"} {
		if _, err := q.ExecContext(ctx, verb+" "+name); err != nil {
			return fmt.Errorf("failed to %s extension %s: %w", strings.ToLower(verb), name, err)
		}
	}

	return nil
}

// Attach attaches an external database under the source's name
func Attach(ctx context.Context, q Querier, source config.Source) error {
	kind, err := source.Kind()
	if err != nil {
		return err
	}

	if err := LoadExtension(ctx, q, kind.Extension()); err != nil {
		return sqlerrors.Wrapf(err, sqlerrors.ErrTypeConfig, "cannot attach %s", source.Name)
	}

	if kind == config.BackendSQLite {
		if _, err := q.ExecContext(ctx, "SET GLOBAL sqlite_all_varchar = true"); err != nil {
			return fmt.Errorf("failed to configure sqlite extension: %w", err)
		}
	}

	stmt := fmt.Sprintf("ATTACH %s AS %s (TYPE %s)",
		QuoteLiteral(source.ConnectionString()), QuoteIdent(source.Name), kind)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return sqlerrors.Wrapf(err, sqlerrors.ErrTypeConfig, "failed to attach %s", source.Name).
			WithSuggestion("Check that the database exists and the connection string is correct")
	}

	logging.WithFields(map[string]interface{}{"name": source.Name, "type": kind.String()}).
		Infof("Attached database")

	return nil
}

// QuoteIdent quotes an identifier, doubling embedded quotes
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string literal, doubling embedded single quotes
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// IsMissingObject reports whether a DuckDB error came from the catalog, the
// class raised when a drop targets an object that is absent or of another kind.
func IsMissingObject(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Catalog Error")
}
