package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/storage"
)

func cols(catalog, schema, table string, names ...string) []ColumnRow {
	out := make([]ColumnRow, len(names))
	for i, n := range names {
		out[i] = ColumnRow{Catalog: catalog, Schema: schema, Table: table, Name: n, DataType: "VARCHAR"}
	}

	return out
}

func concat(groups ...[]ColumnRow) []ColumnRow {
	var out []ColumnRow
	for _, g := range groups {
		out = append(out, g...)
	}

	return out
}

func TestUnifyNaming(t *testing.T) {
	tables := []TableRow{
		{"memory", "main", "orders"},
		{"memory", "orders_json", "items"},
		{"shop", "public", "customers"},
		{"shop", "sales", "invoices"},
		{"local", "main", "notes"},
	}
	columns := concat(
		cols("memory", "main", "orders", "id"),
		cols("memory", "orders_json", "items", "sku"),
		cols("shop", "public", "customers", "id"),
		cols("shop", "sales", "invoices", "id"),
		cols("local", "main", "notes", "body"),
	)
	externals := []External{
		{Name: "shop", Kind: config.BackendPostgres},
		{Name: "local", Kind: config.BackendSQLite},
	}

	cat, err := Unify(tables, columns, externals)
	require.NoError(t, err)

	tests := []struct {
		display string
		ref     string
		schema  string
		section string
	}{
		{"local.notes", `"local"."notes"`, "", "local"},
		{"orders", `"orders"`, "", ""},
		{"orders_json.items", `"orders_json"."items"`, "orders_json", "orders_json"},
		{"shop.customers", `"shop"."customers"`, "", "shop"},
		{"shop.sales.invoices", `"shop"."sales"."invoices"`, "sales", "shop.sales"},
	}

	require.Len(t, cat.Tables, len(tests))

	for i, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			got := cat.Tables[i]
			assert.Equal(t, tt.display, got.DisplayName)
			assert.Equal(t, tt.ref, got.QualifiedRef)
			assert.Equal(t, tt.schema, got.Schema)
			assert.Equal(t, tt.section, got.Section)
		})
	}

	assert.Equal(t, []string{"local", "orders_json", "shop", "shop.sales"}, cat.Sections)
}

func TestUnifyDeduplicates(t *testing.T) {
	tables := []TableRow{
		{"shop", "public", "customers"},
		{"shop", "public", "customers"},
	}

	cat, err := Unify(tables, cols("shop", "public", "customers", "id", "name"),
		[]External{{Name: "shop", Kind: config.BackendPostgres}})
	require.NoError(t, err)

	require.Len(t, cat.Tables, 1)
	assert.Equal(t, []Column{{"id", "VARCHAR"}, {"name", "VARCHAR"}}, cat.Tables[0].Columns)
}

func TestUnifyAllowList(t *testing.T) {
	tables := []TableRow{
		{"shop", "public", "customers"},
		{"shop", "public", "secrets"},
		{"memory", "main", "secrets"},
	}
	columns := concat(
		cols("shop", "public", "customers", "id"),
		cols("shop", "public", "secrets", "id"),
		cols("memory", "main", "secrets", "id"),
	)

	cat, err := Unify(tables, columns, []External{
		{Name: "shop", Kind: config.BackendPostgres, Tables: []string{"customers"}},
	})
	require.NoError(t, err)

	var names []string
	for _, table := range cat.Tables {
		names = append(names, table.DisplayName)
	}

	assert.Equal(t, []string{"secrets", "shop.customers"}, names, "allow-lists bind external catalogs only")
}

func TestUnifySkipsTablesWithoutColumns(t *testing.T) {
	tables := []TableRow{{"memory", "main", "a"}, {"memory", "main", "empty"}}

	cat, err := Unify(tables, cols("memory", "main", "a", "x"), nil)
	require.NoError(t, err)
	require.Len(t, cat.Tables, 1)
	assert.Equal(t, "a", cat.Tables[0].Name)
}

func TestUnifyNoTables(t *testing.T) {
	_, err := Unify(nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNoTablesFound))

	_, err = Unify([]TableRow{{"memory", "main", "empty"}}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeNoTablesFound))
}

func TestUnifyQuotesEmbeddedQuotes(t *testing.T) {
	cat, err := Unify([]TableRow{{"memory", "main", `we"ird`}}, cols("memory", "main", `we"ird`, "x"), nil)
	require.NoError(t, err)

	assert.Equal(t, `"we""ird"`, cat.Tables[0].QualifiedRef)
	assert.Equal(t, "weird", cat.Tables[0].DisplayName)
}

func TestLookup(t *testing.T) {
	cat, err := Unify([]TableRow{{"memory", "s", "t"}}, cols("memory", "s", "t", "x"), nil)
	require.NoError(t, err)

	got, ok := cat.Lookup("s.t")
	require.True(t, ok)
	assert.Equal(t, `"s"."t"`, got.QualifiedRef)

	_, ok = cat.Lookup("t")
	assert.False(t, ok)
}

func TestUnifyExternalCollidingWithLocalSchema(t *testing.T) {
	tables := []TableRow{
		{"memory", "db", "t"},
		{"db", "public", "t"},
	}
	columns := concat(cols("memory", "db", "t", "local"), cols("db", "public", "t", "remote"))

	cat, err := Unify(tables, columns, []External{{Name: "db", Kind: config.BackendPostgres}})
	require.NoError(t, err)
	require.Len(t, cat.Tables, 2)

	local, ok := cat.Lookup("db.t")
	require.True(t, ok)
	assert.Equal(t, "memory", local.Catalog)
	assert.Equal(t, `"db"."t"`, local.QualifiedRef)

	remote, ok := cat.Lookup("db.public.t")
	require.True(t, ok)
	assert.Equal(t, `"db"."public"."t"`, remote.QualifiedRef)
	assert.Equal(t, "public", remote.Schema)
	assert.Equal(t, "db.public", remote.Section)
	assert.Equal(t, []Column{{"remote", "VARCHAR"}}, remote.Columns)

	assert.Equal(t, []string{"db", "db.public"}, cat.Sections)
}

func TestExternalFromSource(t *testing.T) {
	ext, err := ExternalFromSource(config.Source{Name: "shop", URI: "postgresql://localhost/shop", Tables: []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, External{Name: "shop", Kind: config.BackendPostgres, Tables: []string{"a"}}, ext)

	_, err = ExternalFromSource(config.Source{Name: "x", URI: "mysql://localhost/x"})
	assert.True(t, errors.IsType(err, errors.ErrTypeUnsupportedDatabaseKind))
}

func TestBuildFromDuckDB(t *testing.T) {
	db, cleanup := storage.NewTestDB(t)
	defer cleanup()

	storage.MustExec(t, db,
		`CREATE TABLE orders (id BIGINT, total NUMERIC)`,
		`CREATE SCHEMA nested`,
		`CREATE TABLE nested.items (sku TEXT, qty BIGINT, price NUMERIC)`,
		`CREATE VIEW big_orders AS SELECT * FROM orders WHERE total > 100`,
	)

	var cat *Catalog
	err := db.Do(context.Background(), 5*time.Second, func(ctx context.Context, q storage.Querier) error {
		var err error
		cat, err = Build(ctx, q, nil)

		return err
	})
	require.NoError(t, err)

	var names []string
	for _, table := range cat.Tables {
		names = append(names, table.DisplayName)
	}

	assert.Equal(t, []string{"big_orders", "nested.items", "orders"}, names)
	assert.Equal(t, []string{"nested"}, cat.Sections)

	items, ok := cat.Lookup("nested.items")
	require.True(t, ok)
	assert.Equal(t, []Column{{"sku", "VARCHAR"}, {"qty", "BIGINT"}, {"price", "DECIMAL(18,3)"}}, items.Columns)
}

func TestBuildEmptyEngine(t *testing.T) {
	db, cleanup := storage.NewTestDB(t)
	defer cleanup()

	err := db.Do(context.Background(), 5*time.Second, func(ctx context.Context, q storage.Querier) error {
		_, err := Build(ctx, q, nil)
		return err
	})
	assert.True(t, errors.IsType(err, errors.ErrTypeNoTablesFound))
}
