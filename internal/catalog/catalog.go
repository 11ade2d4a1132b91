// Package catalog unifies table metadata from the local DuckDB catalog and
// attached external databases into one ordered, SQL-safe namespace.
package catalog

import (
	"sort"
	"strings"

	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/storage"
)

// localSchema is the default schema of the DuckDB catalog
const localSchema = "main"

// Column is one column of a table, in ordinal order
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableDescriptor identifies one queryable table
type TableDescriptor struct {
	Catalog      string   `json:"catalog"`
	Schema       string   `json:"schema"`
	Name         string   `json:"name"`
	QualifiedRef string   `json:"qualified_reference"`
	DisplayName  string   `json:"display_name"`
	Section      string   `json:"display_section,omitempty"`
	Columns      []Column `json:"columns"`
}

// External describes an attached database as seen by the catalog
type External struct {
	Name   string
	Kind   config.BackendKind
	Tables []string
}

// ExternalFromSource derives the catalog view of a database source
func ExternalFromSource(source config.Source) (External, error) {
	kind, err := source.Kind()
	if err != nil {
		return External{}, err
	}

	return External{Name: source.Name, Kind: kind, Tables: source.Tables}, nil
}

func (e External) allows(table string) bool {
	if len(e.Tables) == 0 {
		return true
	}

	for _, t := range e.Tables {
		if t == table {
			return true
		}
	}

	return false
}

// defaultSchema is the schema a backend omits from its own table names
func defaultSchema(kind config.BackendKind) string {
	switch kind {
	case config.BackendPostgres:
		return "public"
	case config.BackendSQLite:
		return "main"
	default:
		return ""
	}
}

// TableRow is one row of information_schema.tables
type TableRow struct {
	Catalog string
	Schema  string
	Name    string
}

// ColumnRow is one row of information_schema.columns
type ColumnRow struct {
	Catalog  string
	Schema   string
	Table    string
	Name     string
	DataType string
}

type tableKey struct {
	catalog, schema, name string
}

// Catalog is the ordered list of tables plus their distinct sections
type Catalog struct {
	Tables   []TableDescriptor
	Sections []string

	byName map[string]int
}

// Lookup finds a table by display name
func (c *Catalog) Lookup(displayName string) (TableDescriptor, bool) {
	i, ok := c.byName[displayName]
	if !ok {
		return TableDescriptor{}, false
	}

	return c.Tables[i], true
}

// Len returns the number of tables
func (c *Catalog) Len() int {
	return len(c.Tables)
}

// Unify builds the catalog from raw information_schema rows. Tables of an
// external catalog are filtered by its allow-list; tables without columns are
// skipped; duplicates collapse to one descriptor.
func Unify(tables []TableRow, columns []ColumnRow, externals []External) (*Catalog, error) {
	ext := make(map[string]External, len(externals))
	for _, e := range externals {
		ext[e.Name] = e
	}

	cols := make(map[tableKey][]Column)
	for _, c := range columns {
		key := tableKey{c.Catalog, c.Schema, c.Table}
		cols[key] = append(cols[key], Column{Name: c.Name, Type: c.DataType})
	}

	seen := make(map[tableKey]bool, len(tables))
	result := &Catalog{}
	origins := make(map[int]TableRow)

	for _, t := range tables {
		key := tableKey{t.Catalog, t.Schema, t.Name}
		if seen[key] {
			continue
		}

		seen[key] = true

		external, isExternal := ext[t.Catalog]
		if isExternal && !external.allows(t.Name) {
			continue
		}

		if len(cols[key]) == 0 {
			continue
		}

		var desc TableDescriptor
		if isExternal {
			desc = describeExternal(t, external.Kind)
			origins[len(result.Tables)] = t
		} else {
			desc = describeLocal(t)
		}

		desc.Columns = cols[key]
		result.Tables = append(result.Tables, desc)
	}

	if len(result.Tables) == 0 {
		return nil, errors.NoTablesFound()
	}

	disambiguate(result.Tables, origins)

	sort.SliceStable(result.Tables, func(i, j int) bool {
		return result.Tables[i].DisplayName < result.Tables[j].DisplayName
	})

	result.index()

	return result, nil
}

// disambiguate spells out the default schema of external tables whose name
// matches a local schema-qualified table; both would otherwise share one
// two-part reference.
func disambiguate(tables []TableDescriptor, origins map[int]TableRow) {
	counts := make(map[string]int, len(tables))
	for _, t := range tables {
		counts[t.DisplayName]++
	}

	for i, row := range origins {
		t := tables[i]
		if counts[t.DisplayName] < 2 || t.Schema != "" {
			continue
		}

		desc := TableDescriptor{
			Catalog: t.Catalog,
			Schema:  row.Schema,
			Name:    t.Name,
			Section: t.Catalog + "." + row.Schema,
			Columns: t.Columns,
		}
		desc.QualifiedRef = qualify(t.Catalog, row.Schema, t.Name)
		desc.DisplayName = unquote(desc.QualifiedRef)

		logging.WithFields(map[string]interface{}{
			"table":  t.DisplayName,
			"rename": desc.DisplayName,
		}).Warnf("External table collides with a local table")

		tables[i] = desc
	}
}

func describeLocal(t TableRow) TableDescriptor {
	schema := t.Schema
	if schema == localSchema {
		schema = ""
	}

	desc := TableDescriptor{Catalog: t.Catalog, Schema: schema, Name: t.Name, Section: schema}
	desc.QualifiedRef = qualify("", schema, t.Name)
	desc.DisplayName = unquote(desc.QualifiedRef)

	return desc
}

func describeExternal(t TableRow, kind config.BackendKind) TableDescriptor {
	schema := t.Schema
	if schema == defaultSchema(kind) {
		schema = ""
	}

	section := t.Catalog
	if schema != "" {
		section += "." + schema
	}

	desc := TableDescriptor{Catalog: t.Catalog, Schema: schema, Name: t.Name, Section: section}
	desc.QualifiedRef = qualify(t.Catalog, schema, t.Name)
	desc.DisplayName = unquote(desc.QualifiedRef)

	return desc
}

func qualify(catalog, schema, name string) string {
	parts := make([]string, 0, 3)
	if catalog != "" {
		parts = append(parts, storage.QuoteIdent(catalog))
	}

	if schema != "" {
		parts = append(parts, storage.QuoteIdent(schema))
	}

	parts = append(parts, storage.QuoteIdent(name))

	return strings.Join(parts, ".")
}

func unquote(ref string) string {
	return strings.ReplaceAll(ref, `"`, "")
}

func (c *Catalog) index() {
	c.byName = make(map[string]int, len(c.Tables))
	sections := make(map[string]bool)

	for i, t := range c.Tables {
		if prev, dup := c.byName[t.DisplayName]; dup {
			logging.WithFields(map[string]interface{}{
				"table": t.DisplayName,
				"ref":   c.Tables[prev].QualifiedRef,
			}).Warnf("Duplicate table name; lookups resolve to the first")
		} else {
			c.byName[t.DisplayName] = i
		}

		if t.Section != "" && !sections[t.Section] {
			sections[t.Section] = true
			c.Sections = append(c.Sections, t.Section)
		}
	}

	sort.Strings(c.Sections)
}
