// Package ingest runs every configured source into DuckDB: databases are
// attached, csv and parquet files become views or tables, and xlsx and json
// documents are flattened and bulk loaded.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/flatten"
	"github.com/kyleking/sqlnow/internal/loader"
	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/probe"
	"github.com/kyleking/sqlnow/internal/storage"
)

// ProbeFunc checks an external database before it is attached
type ProbeFunc func(ctx context.Context, source config.Source) (*probe.Report, error)

// Ingester loads sources described by configuration
type Ingester struct {
	cfg   *config.Config
	probe ProbeFunc
}

// New creates an ingester that probes databases with probe.Check
func New(cfg *config.Config) *Ingester {
	return &Ingester{cfg: cfg, probe: probe.Check}
}

// WithProbe replaces the database pre-flight check
func (i *Ingester) WithProbe(fn ProbeFunc) *Ingester {
	i.probe = fn
	return i
}

// Run ingests views then tables and returns the attached databases
func (i *Ingester) Run(ctx context.Context, q storage.Querier) ([]catalog.External, error) {
	if i.needsHTTPFS() {
		if err := storage.LoadExtension(ctx, q, "httpfs"); err != nil {
			return nil, err
		}
	}

	if i.cfg.Drop {
		if err := i.dropFileRelations(ctx, q); err != nil {
			return nil, err
		}
	}

	var externals []catalog.External

	for _, source := range i.cfg.Views {
		start := time.Now()

		if source.IsDatabase() {
			external, err := i.attach(ctx, q, source)
			if err != nil {
				return nil, err
			}

			externals = append(externals, external)
		} else if err := i.createView(ctx, q, source); err != nil {
			return nil, err
		}

		logSource(source, "view", start)
	}

	for _, source := range i.cfg.Tables {
		start := time.Now()

		if err := i.createTable(ctx, q, source); err != nil {
			return nil, err
		}

		logSource(source, "table", start)
	}

	return externals, nil
}

func logSource(source config.Source, as string, start time.Time) {
	logging.WithFields(map[string]interface{}{
		"name":     source.Name,
		"uri":      source.URI,
		"as":       as,
		"duration": time.Since(start),
	}).Infof("Ingested source")
}

func (i *Ingester) needsHTTPFS() bool {
	for _, source := range i.cfg.Sources() {
		if !source.IsDatabase() && source.IsRemote() {
			return true
		}
	}

	return false
}

// dropFileRelations removes relations left by earlier runs against a
// persistent database. Flattened sources drop their own tables when loaded.
func (i *Ingester) dropFileRelations(ctx context.Context, q storage.Querier) error {
	for _, source := range i.cfg.Sources() {
		if source.IsDatabase() {
			continue
		}

		if f := source.Format(); f != config.FormatCSV && f != config.FormatParquet {
			continue
		}

		for _, kind := range []string{"TABLE", "VIEW"} {
			stmt := fmt.Sprintf("DROP %s IF EXISTS %s", kind, storage.QuoteIdent(source.Name))

			_, err := q.ExecContext(ctx, stmt)
			if storage.IsMissingObject(err) {
				logging.WithField("name", source.Name).WithError(err).Debugf("Ignoring drop of missing object")
				continue
			} else if err != nil {
				return fmt.Errorf("failed to drop %s: %w", source.Name, err)
			}
		}
	}

	return nil
}

func (i *Ingester) attach(ctx context.Context, q storage.Querier, source config.Source) (catalog.External, error) {
	external, err := catalog.ExternalFromSource(source)
	if err != nil {
		return catalog.External{}, err
	}

	if i.probe != nil {
		if _, err := i.probe(ctx, source); err != nil {
			return catalog.External{}, err
		}
	}

	if err := storage.Attach(ctx, q, source); err != nil {
		return catalog.External{}, err
	}

	return external, nil
}

// reader returns the table function that scans a csv or parquet source
func (i *Ingester) reader(source config.Source) (string, error) {
	switch source.Format() {
	case config.FormatCSV:
		opts := ", header = true"
		if i.cfg.AllText {
			opts += ", all_varchar = true"
		}

		return fmt.Sprintf("read_csv(%s%s)", storage.QuoteLiteral(source.URI), opts), nil
	case config.FormatParquet:
		return fmt.Sprintf("read_parquet(%s)", storage.QuoteLiteral(source.URI)), nil
	default:
		return "", fmt.Errorf("%s: %s files cannot be read directly", source.URI, source.Format())
	}
}

func (i *Ingester) createView(ctx context.Context, q storage.Querier, source config.Source) error {
	reader, err := i.reader(source)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS SELECT * FROM %s", storage.QuoteIdent(source.Name), reader)
	logging.Debugf("Executing: %s", stmt)

	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create view %s: %w", source.Name, err)
	}

	return nil
}

func (i *Ingester) createTable(ctx context.Context, q storage.Querier, source config.Source) error {
	opts := flatten.Options{Root: source.Name, Tables: source.Tables}

	switch source.Format() {
	case config.FormatCSV, config.FormatParquet:
		reader, err := i.reader(source)
		if err != nil {
			return err
		}

		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS SELECT * FROM %s", storage.QuoteIdent(source.Name), reader)
		logging.Debugf("Executing: %s", stmt)

		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", source.Name, err)
		}

		return nil
	case config.FormatXLSX:
		result, err := flatten.SpreadsheetFile(source.URI, opts)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", source.URI, err)
		}

		return i.load(ctx, q, source, result)
	case config.FormatJSON:
		result, err := flatten.JSONFile(source.URI, opts)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", source.URI, err)
		}

		return i.load(ctx, q, source, result)
	default:
		return fmt.Errorf("%s: unsupported file type", source.URI)
	}
}

func (i *Ingester) load(ctx context.Context, q storage.Querier, source config.Source, result *flatten.Result) error {
	if result.Manifest.Len() == 0 {
		logging.WithField("name", source.Name).Warnf("Source has no tables to load")
		return nil
	}

	plan, err := loader.NewPlan(result.Manifest, source.Name, i.cfg.Drop)
	if err != nil {
		return err
	}

	if err := plan.Apply(ctx, q, result.Rows, i.cfg.Query.StagingDir); err != nil {
		return fmt.Errorf("failed to load %s: %w", source.Name, err)
	}

	return nil
}
