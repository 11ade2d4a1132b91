package config

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/kyleking/sqlnow/internal/errors"
)

// BackendKind tags an external database that DuckDB can attach
type BackendKind int

const (
	BackendUnknown BackendKind = iota
	BackendPostgres
	BackendSQLite
)

// String returns the ATTACH type name of the backend
func (k BackendKind) String() string {
	switch k {
	case BackendPostgres:
		return "POSTGRES"
	case BackendSQLite:
		return "SQLITE"
	default:
		return "UNKNOWN"
	}
}

// Extension returns the DuckDB extension that implements the backend
func (k BackendKind) Extension() string {
	return strings.ToLower(k.String())
}

// Format is the file format of a non-database source
type Format string

const (
	FormatUnknown Format = ""
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
	FormatJSON    Format = "json"
)

var formatsByExt = map[string]Format{
	".csv":     FormatCSV,
	".tsv":     FormatCSV,
	".txt":     FormatCSV,
	".parquet": FormatParquet,
	".xlsx":    FormatXLSX,
	".json":    FormatJSON,
	".jsonl":   FormatJSON,
	".ndjson":  FormatJSON,
}

// Compressed inputs are recognised by these suffixes
var compressionExts = []string{".gz", ".bz2", ".zst", ".xz"}

const (
	postgresScheme    = "postgresql://"
	postgresAltScheme = "postgres://"
	sqliteScheme      = "sqlite://"
)

// Source is one configured input: a file or an external database
type Source struct {
	Name   string   `toml:"name"   json:"name"`
	URI    string   `toml:"uri"    json:"uri"`
	Tables []string `toml:"tables" json:"tables,omitempty"`
}

// IsDatabase reports whether the uri names an attachable database
func (s Source) IsDatabase() bool {
	return strings.HasPrefix(s.URI, postgresScheme) ||
		strings.HasPrefix(s.URI, postgresAltScheme) ||
		strings.HasPrefix(s.URI, sqliteScheme) ||
		strings.HasSuffix(s.URI, ".db") ||
		strings.HasSuffix(s.URI, ".sqlite")
}

// Kind returns the backend of a database source
func (s Source) Kind() (BackendKind, error) {
	switch {
	case strings.HasPrefix(s.URI, postgresScheme), strings.HasPrefix(s.URI, postgresAltScheme):
		return BackendPostgres, nil
	case strings.HasPrefix(s.URI, sqliteScheme),
		strings.HasSuffix(s.URI, ".db"),
		strings.HasSuffix(s.URI, ".sqlite"):
		return BackendSQLite, nil
	default:
		return BackendUnknown, errors.UnsupportedDatabaseKind(s.URI)
	}
}

// ConnectionString returns the string handed to ATTACH
func (s Source) ConnectionString() string {
	return strings.TrimPrefix(s.URI, sqliteScheme)
}

// Compression returns the compression suffix of the uri, if any
func (s Source) Compression() string {
	lower := strings.ToLower(s.URI)
	for _, ext := range compressionExts {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}

	return ""
}

// Format returns the file format implied by the uri extension
func (s Source) Format() Format {
	lower := strings.TrimSuffix(strings.ToLower(s.URI), s.Compression())
	return formatsByExt[path.Ext(lower)]
}

// IsRemote reports whether DuckDB needs httpfs to read the uri
func (s Source) IsRemote() bool {
	for _, scheme := range []string{"http://", "https://", "s3://", "gs://", "r2://"} {
		if strings.HasPrefix(s.URI, scheme) {
			return true
		}
	}

	return false
}

// Allows reports whether the allow-list admits the table; an empty list admits all
func (s Source) Allows(table string) bool {
	if len(s.Tables) == 0 {
		return true
	}

	for _, allowed := range s.Tables {
		if allowed == table {
			return true
		}
	}

	return false
}

func (s Source) withDefaults() Source {
	if s.Name == "" {
		s.Name = defaultName(s)
	}

	return s
}

// defaultName derives a relation or catalog name from the uri
func defaultName(s Source) string {
	if strings.HasPrefix(s.URI, postgresScheme) || strings.HasPrefix(s.URI, postgresAltScheme) {
		if u, err := url.Parse(s.URI); err == nil {
			if db := strings.Trim(u.Path, "/"); db != "" {
				return db
			}
		}

		return "postgres"
	}

	base := filepath.Base(s.ConnectionString())
	if ext := s.Compression(); ext != "" {
		base = base[:len(base)-len(ext)]
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SourcesFromArgs turns positional paths into sources named after their files.
// Databases, csv and parquet files become views; everything else becomes a table.
func SourcesFromArgs(args []string) (views, tables []Source) {
	for _, arg := range args {
		source := Source{URI: arg}.withDefaults()

		switch {
		case source.IsDatabase():
			views = append(views, source)
		case source.Format() == FormatCSV, source.Format() == FormatParquet:
			views = append(views, source)
		default:
			tables = append(tables, source)
		}
	}

	return views, tables
}
