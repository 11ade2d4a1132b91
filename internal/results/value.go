package results

import (
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/inference"
)

// Canonical renders one engine value as text. typeName is the column's
// database type name and selects the text form of temporal and UUID values.
// NULL comes back invalid.
func Canonical(column, typeName string, v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}

	s, err := canonical(column, strings.ToUpper(typeName), v)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: s, Valid: true}, nil
}

func canonical(column, typeName string, v any) (string, error) {
	// the driver decodes JSON documents; render them back as JSON text
	if typeName == "JSON" {
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode json column %q: %w", column, err)
		}

		return string(data), nil
	}

	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case *big.Int:
		return x.String(), nil
	case duckdb.Decimal:
		return formatDecimal(x.Value, int(x.Scale)), nil
	case string:
		return x, nil
	case []byte:
		if len(x) == 16 && typeName == "UUID" {
			return uuid.UUID(x).String(), nil
		}

		return strings.ToValidUTF8(string(x), "�"), nil
	case time.Time:
		return formatTime(typeName, x), nil
	case []any:
		var b strings.Builder

		for _, elem := range x {
			if elem == nil {
				continue
			}

			s, err := canonical(column, elementType(typeName), elem)
			if err != nil {
				return "", err
			}

			b.WriteString(s)
		}

		return b.String(), nil
	default:
		return "", errors.UnsupportedValueKind(column, v)
	}
}

func formatTime(typeName string, t time.Time) string {
	switch {
	case typeName == "DATE":
		return t.Format("2006-01-02")
	case strings.HasPrefix(typeName, "TIME") && !strings.HasPrefix(typeName, "TIMESTAMP"):
		if t.Nanosecond()/int(time.Microsecond) != 0 {
			return t.Format("15:04:05.999999")
		}

		return t.Format("15:04:05")
	case typeName == "TIMESTAMPTZ" || typeName == "TIMESTAMP WITH TIME ZONE":
		return inference.FormatTimestamp(t.UTC()) + "+00"
	default:
		return inference.FormatTimestamp(t)
	}
}

// elementType strips a list suffix, so INTEGER[] yields INTEGER
func elementType(typeName string) string {
	return strings.TrimSuffix(typeName, "[]")
}

// formatDecimal renders an unscaled value with exactly scale fractional digits
func formatDecimal(value *big.Int, scale int) string {
	if value == nil {
		return "0"
	}

	digits := new(big.Int).Abs(value).String()
	sign := ""

	if value.Sign() < 0 {
		sign = "-"
	}

	if scale <= 0 {
		return sign + digits
	}

	if len(digits) <= scale {
		digits = strings.Repeat("0", scale-len(digits)+1) + digits
	}

	point := len(digits) - scale

	return sign + digits[:point] + "." + digits[point:]
}
