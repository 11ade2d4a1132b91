package results

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kyleking/sqlnow/internal/errors"
)

// Encoding is an export format
type Encoding int

const (
	CSV Encoding = iota
	TSV
	NDJSON
)

// ParseEncoding accepts the format names used by the API and the CLI
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(name) {
	case "csv":
		return CSV, nil
	case "tab", "tsv":
		return TSV, nil
	case "jsonl", "ndjson", "json":
		return NDJSON, nil
	default:
		return CSV, errors.Newf(errors.ErrTypeValidation, "unknown output format: %s", name).
			WithSuggestion("Use csv, tsv or jsonl")
	}
}

func (e Encoding) String() string {
	switch e {
	case TSV:
		return "tsv"
	case NDJSON:
		return "jsonl"
	default:
		return "csv"
	}
}

// ContentType is the MIME type of the encoded stream
func (e Encoding) ContentType() string {
	switch e {
	case TSV:
		return "text/tab-separated-values"
	case NDJSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// Filename is the suggested download name
func (e Encoding) Filename() string {
	switch e {
	case TSV:
		return "download.tsv"
	case NDJSON:
		return "download.json"
	default:
		return "download.csv"
	}
}

// recordWriter encodes one result set
type recordWriter interface {
	Header(columns []string) error
	Row(cells []sql.NullString) error
	Flush() error
}

func newRecordWriter(w io.Writer, e Encoding) recordWriter {
	switch e {
	case TSV:
		return newDelimited(w, '\t')
	case NDJSON:
		return &ndjsonWriter{w: w}
	default:
		return newDelimited(w, ',')
	}
}

type delimitedWriter struct {
	csv    *csv.Writer
	record []string
}

func newDelimited(w io.Writer, comma rune) *delimitedWriter {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	return &delimitedWriter{csv: cw}
}

func (d *delimitedWriter) Header(columns []string) error {
	d.record = make([]string, len(columns))
	return d.csv.Write(columns)
}

func (d *delimitedWriter) Row(cells []sql.NullString) error {
	for i, cell := range cells {
		d.record[i] = cell.String
	}

	return d.csv.Write(d.record)
}

func (d *delimitedWriter) Flush() error {
	d.csv.Flush()
	return d.csv.Error()
}

// ndjsonWriter writes one object per row with keys in column order
type ndjsonWriter struct {
	w    io.Writer
	keys [][]byte
	buf  bytes.Buffer
}

func (n *ndjsonWriter) Header(columns []string) error {
	n.keys = make([][]byte, len(columns))

	for i, col := range columns {
		key, err := json.Marshal(col)
		if err != nil {
			return err
		}

		n.keys[i] = key
	}

	return nil
}

func (n *ndjsonWriter) Row(cells []sql.NullString) error {
	n.buf.Reset()
	n.buf.WriteByte('{')

	for i, cell := range cells {
		if i > 0 {
			n.buf.WriteByte(',')
		}

		n.buf.Write(n.keys[i])
		n.buf.WriteByte(':')

		if !cell.Valid {
			n.buf.WriteString("null")
			continue
		}

		value, err := json.Marshal(cell.String)
		if err != nil {
			return err
		}

		n.buf.Write(value)
	}

	n.buf.WriteString("}\n")

	_, err := n.w.Write(n.buf.Bytes())

	return err
}

func (n *ndjsonWriter) Flush() error {
	return nil
}
