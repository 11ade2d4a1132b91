// Package inference classifies raw cell values into column storage types.
//
// An Accumulator tracks one destination column. The first non-empty value
// fixes its type; any later value of a different natural type turns it into
// Text for good. Integers and floats are different natural types, so a column
// holding both ends up as Text rather than being widened to Float.
package inference

import (
	"regexp"
	"time"

	"github.com/goccy/go-json"
)

// ColumnType is the storage type inferred for a column
type ColumnType string

const (
	Text      ColumnType = "text"
	Integer   ColumnType = "integer"
	Float     ColumnType = "float"
	Boolean   ColumnType = "boolean"
	Timestamp ColumnType = "timestamp"
	Generic   ColumnType = "generic"
)

// Accumulator infers the type of a single column
type Accumulator struct {
	kind ColumnType
	seen bool
}

// Observe records the natural type of one value. Empty kinds are ignored.
func (a *Accumulator) Observe(kind ColumnType) {
	if kind == "" || a.kind == Text {
		return
	}

	if !a.seen {
		a.kind = kind
		a.seen = true

		return
	}

	if a.kind != kind {
		a.kind = Text
	}
}

// Finalize returns the inferred type; a column with no values is Text
func (a *Accumulator) Finalize() ColumnType {
	if !a.seen {
		return Text
	}

	return a.kind
}

// NaturalType returns the type a single value implies, or "" for empty values
func NaturalType(v any) ColumnType {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer
	case float32, float64:
		return Float
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return Integer
		}

		return Float
	case time.Time:
		return Timestamp
	case string:
		if x == "" {
			return ""
		}

		if LooksLikeTimestamp(x) {
			return Timestamp
		}

		return Text
	default:
		return Generic
	}
}

var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(:\d{2}(\.\d{1,9})?)?(Z|[+-]\d{2}:?\d{2})?$`),
}

// layouts accepted by CanonicalTimestamp, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05-0700",
	"2006-01-02",
}

// LooksLikeTimestamp reports whether s is an ISO-8601 date or date-time
func LooksLikeTimestamp(s string) bool {
	for _, pattern := range timestampPatterns {
		if pattern.MatchString(s) {
			_, ok := parseTimestamp(s)
			return ok
		}
	}

	return false
}

// CanonicalTimestamp renders an ISO-8601 string in the form DuckDB casts to
// TIMESTAMP. Zoned values are converted to UTC.
func CanonicalTimestamp(s string) (string, bool) {
	t, ok := parseTimestamp(s)
	if !ok {
		return "", false
	}

	return FormatTimestamp(t), true
}

// FormatTimestamp renders t as YYYY-MM-DD HH:MM:SS with microseconds when non-zero
func FormatTimestamp(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format("2006-01-02 15:04:05.999999")
	}

	return t.Format("2006-01-02 15:04:05")
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}
