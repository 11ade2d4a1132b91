package testutil

import (
	"strings"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/storage"
)

// TableOption is a functional option for configuring test table descriptors
type TableOption func(*catalog.TableDescriptor)

// WithSchema places the table in a local schema
func WithSchema(schema string) TableOption {
	return func(t *catalog.TableDescriptor) {
		t.Schema = schema
		t.Section = schema
	}
}

// WithExternal places the table in an attached catalog, optionally under a schema
func WithExternal(catalogName, schema string) TableOption {
	return func(t *catalog.TableDescriptor) {
		t.Catalog = catalogName
		t.Schema = schema

		t.Section = catalogName
		if schema != "" {
			t.Section += "." + schema
		}
	}
}

// WithColumns replaces the columns; arguments alternate name and type
func WithColumns(nameTypes ...string) TableOption {
	return func(t *catalog.TableDescriptor) {
		t.Columns = nil
		for i := 0; i+1 < len(nameTypes); i += 2 {
			t.Columns = append(t.Columns, catalog.Column{Name: nameTypes[i], Type: nameTypes[i+1]})
		}
	}
}

// NewTestTable creates a descriptor with sensible defaults and applies any
// provided options. The qualified reference and display name are derived last.
func NewTestTable(name string, opts ...TableOption) catalog.TableDescriptor {
	table := catalog.TableDescriptor{
		Catalog: TestCatalog,
		Name:    name,
		Columns: []catalog.Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "name", Type: "VARCHAR"},
		},
	}

	for _, opt := range opts {
		opt(&table)
	}

	var parts []string
	if table.Catalog != TestCatalog {
		parts = append(parts, storage.QuoteIdent(table.Catalog))
	}

	if table.Schema != "" {
		parts = append(parts, storage.QuoteIdent(table.Schema))
	}

	parts = append(parts, storage.QuoteIdent(name))

	table.QualifiedRef = strings.Join(parts, ".")
	table.DisplayName = strings.ReplaceAll(table.QualifiedRef, `"`, "")

	return table
}
