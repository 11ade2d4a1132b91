package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer

	root := NewRootCommand()
	root.Writer = &buf

	err := root.Run(context.Background(), append([]string{"sqlnow"}, args...))

	return buf.String(), err
}

func ordersCSV(t *testing.T) string {
	t.Helper()

	return testutil.WriteCSV(t, t.TempDir(), "orders.csv", [][]string{
		{"id", "item"}, {"1", "pen"}, {"2", "ink"}, {"3", "pad"}, {"4", "cap"},
	})
}

func TestQueryCommand(t *testing.T) {
	out, err := run(t, "--source", ordersCSV(t), "query", "SELECT COUNT(*) AS n FROM orders")
	require.NoError(t, err)

	assert.Equal(t, "n\n-\n4\n(1 row)\n", out)
}

func TestQueryCommandLimit(t *testing.T) {
	out, err := run(t, "-s", ordersCSV(t), "query", "--limit", "2", "SELECT id FROM orders ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, "id\n--\n1\n2\n(2 rows)\n", out)
}

func TestQueryCommandRequiresSQL(t *testing.T) {
	_, err := run(t, "--source", ordersCSV(t), "query")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestTablesCommand(t *testing.T) {
	path := ordersCSV(t)

	out, err := run(t, "--source", path, "tables")
	require.NoError(t, err)
	assert.Equal(t, "orders (2 columns)\n", out)

	out, err = run(t, "--source", path, "tables", "orders")
	require.NoError(t, err)
	assert.Contains(t, out, `orders  (ref: "orders")`)
	assert.Contains(t, out, "  item  VARCHAR")

	_, err = run(t, "--source", path, "tables", "nope")
	assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
}

func TestSQLCommand(t *testing.T) {
	path := ordersCSV(t)

	tests := []struct {
		name    string
		args    []string
		want    string
		errType errors.ErrorType
	}{
		{
			name: "default intent",
			args: []string{"sql", "orders"},
			want: "SELECT * FROM \"orders\"\n",
		},
		{
			name: "select fields",
			args: []string{"sql", "--intent", "select-fields", "orders"},
			want: "SELECT\n    \"id\",\n    \"item\"\nFROM \"orders\"\n",
		},
		{
			name:    "unknown intent",
			args:    []string{"sql", "--intent", "select-some", "orders"},
			errType: errors.ErrTypeValidation,
		},
		{
			name:    "missing table argument",
			args:    []string{"sql"},
			errType: errors.ErrTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"--source", path}, tt.args...)...)

			if tt.errType != "" {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, tt.errType), err.Error())

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestExportCommand(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.tsv")

	out, err := run(t, "--source", ordersCSV(t),
		"export", "--format", "tab", "--output", dest, "SELECT * FROM orders ORDER BY id")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "id\titem\n1\tpen\n2\tink\n3\tpad\n4\tcap\n", string(data))
}

func TestExportCommandToStdout(t *testing.T) {
	out, err := run(t, "--source", ordersCSV(t),
		"export", "--format", "jsonl", "--limit", "1", "SELECT * FROM orders ORDER BY id")
	require.NoError(t, err)

	assert.Equal(t, `{"id":"1","item":"pen"}`+"\n", out)
}

func TestExportCommandRejectsFormat(t *testing.T) {
	_, err := run(t, "--source", ordersCSV(t), "export", "--format", "xml", "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestNoSources(t *testing.T) {
	_, err := run(t, "tables")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeNoTablesFound))
}

func TestRunConfigWithConfig(t *testing.T) {
	tests := []struct {
		name     string
		cfg      func() *config.Config
		wantErr  bool
		contains []string
	}{
		{
			name: "defaults",
			cfg:  config.DefaultConfig,
			contains: []string{
				"Active Configuration:",
				"Database: (in memory)",
				"  (none)",
				"Display Limit: 1000",
				"Address: 127.0.0.1:3030",
				"Level: info",
				`addr = "127.0.0.1:3030"`,
			},
		},
		{
			name: "sources and file logging",
			cfg: func() *config.Config {
				cfg := config.DefaultConfig()
				cfg.Database = "/tmp/engine.duckdb"
				cfg.Views = []config.Source{{Name: "orders", URI: "/data/orders.csv"}}
				cfg.Tables = []config.Source{{Name: "people", URI: "/data/people.xlsx"}}
				cfg.Logging.Output = "file"
				cfg.Logging.File = "/tmp/sqlnow.log"

				return cfg
			},
			contains: []string{
				"Database: /tmp/engine.duckdb",
				"view  orders <- /data/orders.csv",
				"table people <- /data/people.xlsx",
				"File: /tmp/sqlnow.log",
			},
		},
		{
			name:    "nil configuration error",
			cfg:     func() *config.Config { return nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			err := RunConfigWithConfig(&buf, tt.cfg())
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)

			for _, expected := range tt.contains {
				assert.True(t, strings.Contains(buf.String(), expected), "missing %q in:\n%s", expected, buf.String())
			}
		})
	}
}

func TestConfigCommandPositionalSources(t *testing.T) {
	out, err := run(t, "config", "/data/orders.csv", "/data/people.json")
	require.NoError(t, err)

	assert.Contains(t, out, "view  orders <- /data/orders.csv")
	assert.Contains(t, out, "table people <- /data/people.json")
}
