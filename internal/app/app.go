// Package app bootstraps the engine: it opens DuckDB, ingests every source
// and builds the catalog once, then serves catalog lookups, generated SQL and
// query execution to the HTTP API and the command line.
package app

import (
	"context"
	"io"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/ingest"
	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/results"
	"github.com/kyleking/sqlnow/internal/sqlgen"
	"github.com/kyleking/sqlnow/internal/storage"
)

// App is a loaded engine with its catalog
type App struct {
	cfg     *config.Config
	db      *storage.DuckDB
	catalog *catalog.Catalog
	runner  *results.Runner
}

// Option configures Build
type Option func(*options)

type options struct {
	probe ingest.ProbeFunc
}

// WithProbe replaces the pre-flight check of external databases
func WithProbe(fn ingest.ProbeFunc) Option {
	return func(o *options) {
		o.probe = fn
	}
}

// Build opens the engine, ingests all sources and builds the catalog. It
// runs to completion before anything else may use the engine; any failure
// is fatal and closes the engine.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	db, err := storage.NewDuckDBFromConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	a := &App{
		cfg:    cfg,
		db:     db,
		runner: results.NewRunner(db, cfg.QueryTimeoutDuration(), cfg.ExportTimeoutDuration()),
	}

	ing := ingest.New(cfg)
	if o.probe != nil {
		ing = ing.WithProbe(o.probe)
	}

	err = logging.LoggerMiddleware("bootstrap", func() error {
		return db.Do(ctx, 0, func(ctx context.Context, q storage.Querier) error {
			externals, err := ing.Run(ctx, q)
			if err != nil {
				return err
			}

			a.catalog, err = catalog.Build(ctx, q, externals)

			return err
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the engine
func (a *App) Close() error {
	return a.db.Close()
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config {
	return a.cfg
}

// Catalog returns the tables in display order
func (a *App) Catalog() []catalog.TableDescriptor {
	return a.catalog.Tables
}

// Sections returns the distinct non-empty display sections
func (a *App) Sections() []string {
	return a.catalog.Sections
}

// Table looks up a table by display name
func (a *App) Table(name string) (catalog.TableDescriptor, error) {
	table, ok := a.catalog.Lookup(name)
	if !ok {
		return catalog.TableDescriptor{}, errors.Newf(errors.ErrTypeNotFound, "table not found: %s", name).
			WithSuggestion("Run 'sqlnow tables' to list available tables")
	}

	return table, nil
}

// GenerateSQL renders the default query of an intent for a table
func (a *App) GenerateSQL(name string, intent sqlgen.Intent) (string, error) {
	table, err := a.Table(name)
	if err != nil {
		return "", err
	}

	return sqlgen.Generate(table, intent), nil
}

// RunQuery returns at most limit rows; a limit of zero or less uses the
// configured display limit.
func (a *App) RunQuery(ctx context.Context, query string, limit int) (*results.TableData, error) {
	if limit <= 0 {
		limit = a.cfg.Query.DisplayLimit
	}

	return a.runner.RunQuery(ctx, query, limit)
}

// Preview returns the first rows of a table
func (a *App) Preview(ctx context.Context, name string) (*results.TableData, error) {
	query, err := a.GenerateSQL(name, sqlgen.SelectStar)
	if err != nil {
		return nil, err
	}

	return a.runner.RunQuery(ctx, query, a.cfg.Query.PreviewLimit)
}

// Stream writes the result of query to w. A negative limit uses the
// configured export limit; zero streams every row.
func (a *App) Stream(ctx context.Context, w io.Writer, query string, enc results.Encoding, limit int) error {
	if limit < 0 {
		limit = a.cfg.Query.ExportLimit
	}

	return a.runner.Stream(ctx, w, query, enc, limit)
}
