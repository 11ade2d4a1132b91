// Package flatten turns JSON documents and xlsx workbooks into flat tables:
// a manifest of typed fields per destination table plus the rows to load.
package flatten

import (
	"database/sql"

	"github.com/kyleking/sqlnow/internal/inference"
)

// Field describes one destination column
type Field struct {
	Table string               `json:"table_name"`
	Name  string               `json:"field_name"`
	Type  inference.ColumnType `json:"field_type"`
}

// Row is one record of a destination table; invalid cells are SQL NULL
type Row []sql.NullString

// Manifest groups fields by destination table in first-seen order
type Manifest struct {
	tables []string
	fields map[string][]Field
}

// NewManifest groups fields by table, keeping only tables the allow-list
// admits. An empty allow-list admits every table.
func NewManifest(fields []Field, allow []string) *Manifest {
	m := &Manifest{fields: make(map[string][]Field)}

	for _, field := range fields {
		if !allowed(allow, field.Table) {
			continue
		}

		if _, ok := m.fields[field.Table]; !ok {
			m.tables = append(m.tables, field.Table)
		}

		m.fields[field.Table] = append(m.fields[field.Table], field)
	}

	return m
}

// Tables returns table names in load order
func (m *Manifest) Tables() []string {
	return m.tables
}

// Fields returns the ordered fields of one table
func (m *Manifest) Fields(table string) []Field {
	return m.fields[table]
}

// Len returns the number of destination tables
func (m *Manifest) Len() int {
	return len(m.tables)
}

// Result is the output of one flattening run
type Result struct {
	Manifest *Manifest
	Rows     map[string][]Row
}

// Options control a flattening run
type Options struct {
	// Root names the main table; nested tables are prefixed with it.
	Root string
	// Tables restricts the output to these table or sheet names.
	Tables []string
}

func allowed(allow []string, table string) bool {
	if len(allow) == 0 {
		return true
	}

	for _, name := range allow {
		if name == table {
			return true
		}
	}

	return false
}

// text makes a valid cell
func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// pad extends a row with NULL cells to width
func pad(row Row, width int) Row {
	for len(row) < width {
		row = append(row, sql.NullString{})
	}

	return row
}
