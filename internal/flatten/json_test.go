package flatten

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/kyleking/sqlnow/internal/inference"
)

func cells(row Row) []any {
	out := make([]any, len(row))
	for i, c := range row {
		if c.Valid {
			out[i] = c.String
		}
	}

	return out
}

func fieldNames(fields []Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}

	return names
}

func TestJSONArrayOfObjects(t *testing.T) {
	doc := `[
		{"id": 1, "name": "a", "price": 2.5, "active": true, "seen": "2024-01-02T03:04:05Z"},
		{"id": 2, "name": "b", "price": 3.25, "active": false, "seen": null}
	]`

	result, err := JSON(strings.NewReader(doc), Options{Root: "orders"})
	require.NoError(t, err)

	require.Equal(t, []string{"orders"}, result.Manifest.Tables())

	fields := result.Manifest.Fields("orders")
	assert.Equal(t, []string{"_link", "id", "name", "price", "active", "seen"}, fieldNames(fields))

	types := map[string]inference.ColumnType{}
	for _, f := range fields {
		types[f.Name] = f.Type
	}

	assert.Equal(t, inference.Integer, types["id"])
	assert.Equal(t, inference.Text, types["name"])
	assert.Equal(t, inference.Float, types["price"])
	assert.Equal(t, inference.Boolean, types["active"])
	assert.Equal(t, inference.Timestamp, types["seen"])

	rows := result.Rows["orders"]
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"0", "1", "a", "2.5", "true", "2024-01-02T03:04:05Z"}, cells(rows[0]))
	assert.Equal(t, []any{"1", "2", "b", "3.25", "false", nil}, cells(rows[1]))
}

func TestJSONKeyOrderFollowsDocument(t *testing.T) {
	result, err := JSON(strings.NewReader(`{"zeta": 1, "alpha": 2, "mid": 3}`), Options{Root: "t"})
	require.NoError(t, err)

	assert.Equal(t, []string{"_link", "zeta", "alpha", "mid"}, fieldNames(result.Manifest.Fields("t")))
}

func TestJSONStream(t *testing.T) {
	doc := "{\"id\": 1}\n{\"id\": 2, \"extra\": \"x\"}\n\n{\"id\": 3}\n"

	result, err := JSON(strings.NewReader(doc), Options{Root: "events"})
	require.NoError(t, err)

	rows := result.Rows["events"]
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"_link", "id", "extra"}, fieldNames(result.Manifest.Fields("events")))
	assert.Equal(t, []any{"0", "1", nil}, cells(rows[0]), "rows are padded to the final width")
	assert.Equal(t, []any{"1", "2", "x"}, cells(rows[1]))
}

func TestJSONNestedObjectsAndArrays(t *testing.T) {
	doc := `[{
		"id": 10,
		"customer": {"name": "ann", "address": {"city": "Oslo"}},
		"tags": ["a", "b"],
		"items": [{"sku": "x1", "qty": 2}, {"sku": "x2", "qty": 1}]
	}]`

	result, err := JSON(strings.NewReader(doc), Options{Root: "orders"})
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "orders_items"}, result.Manifest.Tables())
	assert.Equal(t,
		[]string{"_link", "id", "customer_name", "customer_address_city", "tags"},
		fieldNames(result.Manifest.Fields("orders")),
	)
	assert.Equal(t,
		[]string{"_link", "_link_orders", "sku", "qty"},
		fieldNames(result.Manifest.Fields("orders_items")),
	)

	assert.Equal(t, []any{"0", "10", "ann", "Oslo", "a,b"}, cells(result.Rows["orders"][0]))

	items := result.Rows["orders_items"]
	require.Len(t, items, 2)
	assert.Equal(t, []any{"0.items.0", "0", "x1", "2"}, cells(items[0]))
	assert.Equal(t, []any{"0.items.1", "0", "x2", "1"}, cells(items[1]))
}

func TestJSONCollidingColumnNamesKeepBothValues(t *testing.T) {
	doc := `[{"a_b": 1, "a": {"b": 2}}, {"a": {"b": 3}}, {"_link": "mine", "a_b": 4}]`

	result, err := JSON(strings.NewReader(doc), Options{Root: "t"})
	require.NoError(t, err)

	fields := result.Manifest.Fields("t")
	assert.Equal(t, []string{"_link", "a_b", "a_b_2", "_link_2"}, fieldNames(fields))
	assert.Equal(t, inference.Integer, fields[1].Type)
	assert.Equal(t, inference.Integer, fields[2].Type)

	rows := result.Rows["t"]
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"0", "1", "2", nil}, cells(rows[0]))
	assert.Equal(t, []any{"1", nil, "3", nil}, cells(rows[1]))
	assert.Equal(t, []any{"2", "4", nil, "mine"}, cells(rows[2]))
}

func TestJSONObjectArraysAddNoParentColumn(t *testing.T) {
	doc := `[{"id": 1, "items": [{"sku": "x"}]}, {"id": 2, "items": []}]`

	result, err := JSON(strings.NewReader(doc), Options{Root: "orders"})
	require.NoError(t, err)

	assert.Equal(t, []string{"_link", "id"}, fieldNames(result.Manifest.Fields("orders")))
	assert.Equal(t, []string{"_link", "_link_orders", "sku"}, fieldNames(result.Manifest.Fields("orders_items")))
}

func TestJSONAllowList(t *testing.T) {
	doc := `[{"id": 1, "items": [{"sku": "x"}]}]`

	result, err := JSON(strings.NewReader(doc), Options{Root: "orders", Tables: []string{"orders_items"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"orders_items"}, result.Manifest.Tables())
	assert.NotContains(t, result.Rows, "orders")
	assert.Len(t, result.Rows["orders_items"], 1)
}

func TestJSONMixedTypesFallBackToText(t *testing.T) {
	result, err := JSON(strings.NewReader(`[{"v": 1}, {"v": 1.5}, {"v": null}]`), Options{Root: "t"})
	require.NoError(t, err)

	fields := result.Manifest.Fields("t")
	require.Len(t, fields, 2)
	assert.Equal(t, inference.Text, fields[1].Type)
}

func TestJSONOnlyNullColumnIsText(t *testing.T) {
	result, err := JSON(strings.NewReader(`[{"v": null}]`), Options{Root: "t"})
	require.NoError(t, err)

	fields := result.Manifest.Fields("t")
	require.Len(t, fields, 2)
	assert.Equal(t, "v", fields[1].Name)
	assert.Equal(t, inference.Text, fields[1].Type)
	assert.Equal(t, sql.NullString{}, result.Rows["t"][0][1])
}

func TestJSONEmptyInput(t *testing.T) {
	result, err := JSON(strings.NewReader("  \n"), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"main"}, result.Manifest.Tables())
	assert.Empty(t, result.Rows["main"])
}

func TestJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"scalar records", `[1, 2]`},
		{"truncated object", `{"id": 1`},
		{"truncated array", `[{"id": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := JSON(strings.NewReader(tt.doc), Options{Root: "t"})
			assert.Error(t, err)
		})
	}
}

func TestJSONFileCompressed(t *testing.T) {
	doc := []byte("\xef\xbb\xbf[{\"id\": 1}, {\"id\": 2}]")
	dir := t.TempDir()

	var gz bytes.Buffer
	gzWriter := gzip.NewWriter(&gz)
	_, err := gzWriter.Write(doc)
	require.NoError(t, err)
	require.NoError(t, gzWriter.Close())

	var zs bytes.Buffer
	zsWriter, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zsWriter.Write(doc)
	require.NoError(t, err)
	require.NoError(t, zsWriter.Close())

	var xzBuf bytes.Buffer
	xzWriter, err := xz.NewWriter(&xzBuf)
	require.NoError(t, err)
	_, err = xzWriter.Write(doc)
	require.NoError(t, err)
	require.NoError(t, xzWriter.Close())

	files := map[string][]byte{
		"plain.json":    doc,
		"feed.json.gz":  gz.Bytes(),
		"feed.json.zst": zs.Bytes(),
		"feed.json.xz":  xzBuf.Bytes(),
	}

	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			result, err := JSONFile(path, Options{Root: "feed"})
			require.NoError(t, err)
			assert.Len(t, result.Rows["feed"], 2)
		})
	}
}

func TestNewManifestGroupsInFirstSeenOrder(t *testing.T) {
	fields := []Field{
		{Table: "b", Name: "x", Type: inference.Text},
		{Table: "a", Name: "y", Type: inference.Integer},
		{Table: "b", Name: "z", Type: inference.Float},
		{Table: "c", Name: "w", Type: inference.Text},
	}

	m := NewManifest(fields, nil)
	assert.Equal(t, []string{"b", "a", "c"}, m.Tables())
	assert.Equal(t, []string{"x", "z"}, fieldNames(m.Fields("b")))

	filtered := NewManifest(fields, []string{"c", "b"})
	assert.Equal(t, []string{"b", "c"}, filtered.Tables())
	assert.Equal(t, 2, filtered.Len())
}
