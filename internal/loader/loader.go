// Package loader materializes flattened tables in DuckDB.
//
// Loading happens in two phases. NewPlan decides single- versus multi-table
// layout and renders every statement; Apply then executes the plan. Nothing
// touches the database until the plan is complete.
package loader

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kyleking/sqlnow/internal/flatten"
	"github.com/kyleking/sqlnow/internal/inference"
	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/storage"
)

// nullMarker stands for a NULL cell in staging files so that empty strings
// survive COPY as empty strings
const nullMarker = `\N`

// Executor runs DDL and DML statements
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StorageType maps an inferred column type to its DuckDB column type
func StorageType(t inference.ColumnType) string {
	switch t {
	case inference.Text:
		return "TEXT"
	case inference.Timestamp:
		return "TIMESTAMP"
	case inference.Integer:
		return "BIGINT"
	case inference.Float:
		return "NUMERIC"
	case inference.Boolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Plan is the full set of statements for one load
type Plan struct {
	Root  string
	Multi bool
	Setup []string
	Steps []Step
}

// Step loads one destination table
type Step struct {
	Table  string
	Target string
	Drops  []string
	Create string
	Fields []flatten.Field
}

// NewPlan lays out the manifest under root. One table loads as "root";
// several load as "root"."table" inside a schema named root.
func NewPlan(manifest *flatten.Manifest, root string, drop bool) (*Plan, error) {
	if root == "" {
		return nil, fmt.Errorf("load needs a root name")
	}

	if manifest.Len() == 0 {
		return nil, fmt.Errorf("nothing to load into %s: no tables in manifest", root)
	}

	plan := &Plan{Root: root, Multi: manifest.Len() > 1}

	if plan.Multi {
		plan.Setup = append(plan.Setup, "CREATE SCHEMA IF NOT EXISTS "+storage.QuoteIdent(root))
	}

	for _, table := range manifest.Tables() {
		fields := manifest.Fields(table)
		if len(fields) == 0 {
			return nil, fmt.Errorf("table %s has no fields", table)
		}

		step := Step{Table: table, Fields: fields}

		if plan.Multi {
			step.Target = storage.QuoteIdent(root) + "." + storage.QuoteIdent(table)
		} else {
			step.Target = storage.QuoteIdent(root)
		}

		if drop {
			step.Drops = append(step.Drops, "DROP TABLE IF EXISTS "+step.Target)
			if !plan.Multi {
				step.Drops = append(step.Drops, "DROP VIEW IF EXISTS "+step.Target)
			}
		}

		step.Create = createStatement(step.Target, fields)
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

func createStatement(target string, fields []flatten.Field) string {
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = "    " + storage.QuoteIdent(field.Name) + " " + StorageType(field.Type)
	}

	return "CREATE TABLE " + target + " (\n" + strings.Join(columns, ",\n") + "\n)"
}

// Apply executes the plan. Rows are staged as CSV files under stagingDir
// (the OS temp dir when empty) and bulk loaded with COPY.
func (p *Plan) Apply(ctx context.Context, exec Executor, rows map[string][]flatten.Row, stagingDir string) error {
	stage, err := os.MkdirTemp(stagingDir, "sqlnow-load-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	for _, stmt := range p.Setup {
		if err := execLogged(ctx, exec, stmt); err != nil {
			return err
		}
	}

	for _, step := range p.Steps {
		if err := p.applyStep(ctx, exec, step, rows[step.Table], stage); err != nil {
			return err
		}
	}

	return nil
}

func (p *Plan) applyStep(ctx context.Context, exec Executor, step Step, rows []flatten.Row, stage string) error {
	logger := logging.WithField("table", step.Target)

	for _, stmt := range step.Drops {
		err := execLogged(ctx, exec, stmt)
		if storage.IsMissingObject(err) {
			logger.WithError(err).Debugf("Ignoring drop of missing object")
			continue
		} else if err != nil {
			return err
		}
	}

	if err := execLogged(ctx, exec, step.Create); err != nil {
		return err
	}

	if len(rows) == 0 {
		logger.Infof("Created empty table")
		return nil
	}

	path := filepath.Join(stage, uuid.NewString()+".csv")
	if err := writeStaging(path, step.Fields, rows); err != nil {
		return err
	}

	copyStmt := fmt.Sprintf(
		"COPY %s FROM %s (FORMAT csv, HEADER true, DELIMITER ',', QUOTE '\"', ESCAPE '\"', NULLSTR %s)",
		step.Target, storage.QuoteLiteral(path), storage.QuoteLiteral(nullMarker),
	)
	if err := execLogged(ctx, exec, copyStmt); err != nil {
		return err
	}

	logger.WithField("rows", len(rows)).Infof("Loaded table")

	return nil
}

func execLogged(ctx context.Context, exec Executor, stmt string) error {
	logging.Debugf("Executing: %s", stmt)

	if _, err := exec.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to execute %q: %w", firstLine(stmt), err)
	}

	return nil
}

// writeStaging writes rows with a header line. NULL cells are written as
// nullMarker; empty strings stay empty fields.
func writeStaging(path string, fields []flatten.Field, rows []flatten.Row) (err error) {
	file, err := os.Create(path) //nolint:gosec // path is inside our own staging directory
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close staging file: %w", closeErr)
		}
	}()

	w := csv.NewWriter(file)

	header := make([]string, len(fields))
	for i, field := range fields {
		header[i] = field.Name
	}

	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write staging header: %w", err)
	}

	record := make([]string, len(fields))

	for _, row := range rows {
		for i, field := range fields {
			record[i] = nullMarker
			if i >= len(row) || !row[i].Valid {
				continue
			}

			record[i] = row[i].String
			if field.Type == inference.Timestamp {
				if ts, ok := inference.CanonicalTimestamp(row[i].String); ok {
					record[i] = ts
				}
			}
		}

		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write staging row: %w", err)
		}
	}

	w.Flush()

	return w.Error()
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i] + " ..."
	}

	return stmt
}
