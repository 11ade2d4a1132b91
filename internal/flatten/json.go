package flatten

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/kyleking/sqlnow/internal/inference"
)

const (
	defaultRoot = "main"
	linkColumn  = "_link"

	// key paths start with "." so these never match a document key
	linkPath     = "link"
	rootLinkPath = "root-link"
)

// object is a decoded JSON object that remembers key order
type object struct {
	keys   []string
	values map[string]any
}

// JSONFile flattens the JSON document at path
func JSONFile(path string, opts Options) (*Result, error) {
	r, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return JSON(r, opts)
}

// JSON flattens a top-level array of objects, or a stream of objects
// separated by whitespace or newlines. Nested objects become prefixed columns,
// arrays of objects become child tables and arrays of scalars are joined.
func JSON(r io.Reader, opts Options) (*Result, error) {
	root := opts.Root
	if root == "" {
		root = defaultRoot
	}

	f := &flattener{root: root, byName: make(map[string]*tableBuilder)}
	f.table(root, false)

	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return f.result(opts.Tables), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()

	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to read json array: %w", err)
		}

		for i := 0; dec.More(); i++ {
			if err := f.record(dec, i); err != nil {
				return nil, err
			}
		}

		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to read json array end: %w", err)
		}

		return f.result(opts.Tables), nil
	}

	for i := 0; ; i++ {
		err := f.record(dec, i)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, err
		}
	}

	return f.result(opts.Tables), nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}

		if !unicode.IsSpace(rune(b)) {
			return b, br.UnreadByte()
		}
	}
}

type flattener struct {
	root   string
	tables []*tableBuilder
	byName map[string]*tableBuilder
}

func (f *flattener) record(dec *json.Decoder, index int) error {
	v, err := decodeValue(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}

		return fmt.Errorf("failed to decode record %d: %w", index, err)
	}

	obj, ok := v.(*object)
	if !ok {
		return fmt.Errorf("record %d is %T, expected a JSON object", index, v)
	}

	f.emit(f.root, obj, strconv.Itoa(index), "")

	return nil
}

// emit writes obj as one row of the named table. rootLink is empty for rows
// of the main table.
func (f *flattener) emit(name string, obj *object, link, rootLink string) {
	t := f.table(name, rootLink != "")
	row := &rowBuilder{table: t}

	row.set(linkPath, linkColumn, link, inference.Text)

	if rootLink != "" {
		row.set(rootLinkPath, linkColumn+"_"+f.root, rootLink, inference.Text)
	} else {
		rootLink = link
	}

	f.fill(row, obj, "", "", link, rootLink)
	t.rows = append(t.rows, row.cells)
}

// fill flattens obj into row. prefix builds column names; path identifies
// the key chain so that distinct keys never share a column.
func (f *flattener) fill(row *rowBuilder, obj *object, prefix, path, link, rootLink string) {
	for _, key := range obj.keys {
		name := prefix + key
		keyPath := path + "." + strconv.Quote(key)

		switch v := obj.values[key].(type) {
		case *object:
			f.fill(row, v, name+"_", keyPath, link, rootLink)
		case []any:
			var scalars []string

			for i, el := range v {
				if child, ok := el.(*object); ok {
					childLink := link + "." + name + "." + strconv.Itoa(i)
					f.emit(row.table.name+"_"+name, child, childLink, rootLink)

					continue
				}

				if s, ok := scalarText(el); ok {
					scalars = append(scalars, s)
				}
			}

			// arrays holding only objects live entirely in the child table
			if len(scalars) > 0 {
				row.set(keyPath, name, strings.Join(scalars, ","), inference.Text)
			}
		default:
			if s, ok := scalarText(v); ok {
				row.set(keyPath, name, s, inference.NaturalType(v))
			} else {
				row.declare(keyPath, name)
			}
		}
	}
}

func (f *flattener) table(name string, child bool) *tableBuilder {
	if t, ok := f.byName[name]; ok {
		return t
	}

	t := &tableBuilder{name: name, index: make(map[string]int), paths: make(map[string]int)}
	t.column(linkPath, linkColumn)

	if child {
		t.column(rootLinkPath, linkColumn+"_"+f.root)
	}

	f.tables = append(f.tables, t)
	f.byName[name] = t

	return t
}

func (f *flattener) result(allow []string) *Result {
	var fields []Field

	for _, t := range f.tables {
		for i, name := range t.columns {
			fields = append(fields, Field{Table: t.name, Name: name, Type: t.accs[i].Finalize()})
		}
	}

	manifest := NewManifest(fields, allow)
	rows := make(map[string][]Row, manifest.Len())

	for _, name := range manifest.Tables() {
		t := f.byName[name]
		padded := make([]Row, len(t.rows))

		for i, row := range t.rows {
			padded[i] = pad(row, len(t.columns))
		}

		rows[name] = padded
	}

	return &Result{Manifest: manifest, Rows: rows}
}

type tableBuilder struct {
	name    string
	columns []string
	index   map[string]int // column name -> position
	paths   map[string]int // key path -> position
	accs    []*inference.Accumulator
	rows    []Row
}

// column returns the position of the column fed by path. A path seen for
// the first time whose name is already taken gets a numbered suffix.
func (t *tableBuilder) column(path, name string) int {
	if i, ok := t.paths[path]; ok {
		return i
	}

	candidate := name
	for n := 2; ; n++ {
		if _, taken := t.index[candidate]; !taken {
			break
		}

		candidate = fmt.Sprintf("%s_%d", name, n)
	}

	i := len(t.columns)
	t.index[candidate] = i
	t.paths[path] = i
	t.columns = append(t.columns, candidate)
	t.accs = append(t.accs, &inference.Accumulator{})

	return i
}

type rowBuilder struct {
	table *tableBuilder
	cells Row
}

// declare registers a column without giving this row a value for it
func (r *rowBuilder) declare(path, name string) int {
	i := r.table.column(path, name)
	r.cells = pad(r.cells, i+1)

	return i
}

func (r *rowBuilder) set(path, name, value string, kind inference.ColumnType) {
	i := r.declare(path, name)
	r.cells[i] = text(value)
	r.table.accs[i].Observe(kind)
}

// scalarText renders a scalar JSON value; ok is false for null
func scalarText(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case []any:
		parts := make([]string, 0, len(x))
		for _, el := range x {
			if s, ok := scalarText(el); ok {
				parts = append(parts, s)
			}
		}

		return "[" + strings.Join(parts, ",") + "]", true
	default:
		return fmt.Sprint(x), true
	}
}

// decodeValue reads one JSON value token by token so object key order survives
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &object{values: make(map[string]any)}

		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}

			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected object key %v", keyTok)
			}

			value, err := decodeValue(dec)
			if err != nil {
				return nil, unexpectedEOF(err)
			}

			if _, dup := obj.values[key]; !dup {
				obj.keys = append(obj.keys, key)
			}

			obj.values[key] = value
		}

		if _, err := dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}

		return obj, nil
	case '[':
		arr := []any{}

		for dec.More() {
			value, err := decodeValue(dec)
			if err != nil {
				return nil, unexpectedEOF(err)
			}

			arr = append(arr, value)
		}

		if _, err := dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}

		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

// unexpectedEOF keeps a truncated value from looking like a clean end of stream
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}
