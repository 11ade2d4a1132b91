package results

import (
	"math/big"
	"testing"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlnow/internal/errors"
)

func TestCanonical(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 500_000_000, time.UTC)

	tests := []struct {
		name     string
		typeName string
		value    any
		want     string
	}{
		{"bool", "BOOLEAN", true, "true"},
		{"tinyint", "TINYINT", int8(-3), "-3"},
		{"integer", "INTEGER", int32(42), "42"},
		{"bigint", "BIGINT", int64(9007199254740993), "9007199254740993"},
		{"ubigint", "UBIGINT", uint64(18446744073709551615), "18446744073709551615"},
		{"hugeint", "HUGEINT", new(big.Int).Lsh(big.NewInt(1), 100), "1267650600228229401496703205376"},
		{"float", "FLOAT", float32(1.5), "1.5"},
		{"double without exponent", "DOUBLE", 1e21, "1000000000000000000000"},
		{"decimal", "DECIMAL(10,2)", duckdb.Decimal{Width: 10, Scale: 2, Value: big.NewInt(250)}, "2.50"},
		{"small negative decimal", "DECIMAL(10,3)", duckdb.Decimal{Width: 10, Scale: 3, Value: big.NewInt(-5)}, "-0.005"},
		{"text", "VARCHAR", "hello", "hello"},
		{"blob", "BLOB", []byte{'a', 0xff, 'b'}, "a�b"},
		{"uuid", "UUID", []byte{0x55, 0x0e, 0x84, 0x00, 0xe2, 0x9b, 0x41, 0xd4, 0xa7, 0x16, 0x44, 0x66, 0x55, 0x44, 0x00, 0x00}, "550e8400-e29b-41d4-a716-446655440000"},
		{"date", "DATE", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), "2024-03-05"},
		{"time", "TIME", time.Date(1, 1, 1, 13, 14, 15, 0, time.UTC), "13:14:15"},
		{"timestamp", "TIMESTAMP", ts, "2024-01-02 03:04:05.5"},
		{"timestamptz", "TIMESTAMPTZ", ts, "2024-01-02 03:04:05.5+00"},
		{"list", "VARCHAR[]", []any{"a", nil, "b"}, "ab"},
		{"nested list", "INTEGER[][]", []any{[]any{int32(1), int32(2)}, []any{int32(3)}}, "123"},
		{"json object", "JSON", map[string]any{"a": float64(1)}, `{"a":1}`},
		{"json array", "JSON", []any{float64(1), float64(2)}, "[1,2]"},
		{"json string", "JSON", "hi", `"hi"`},
		{"json list element", "JSON[]", []any{map[string]any{"k": "v"}}, `{"k":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical("c", tt.typeName, tt.value)
			require.NoError(t, err)
			assert.True(t, got.Valid)
			assert.Equal(t, tt.want, got.String)
		})
	}
}

func TestCanonicalNull(t *testing.T) {
	got, err := Canonical("c", "VARCHAR", nil)
	require.NoError(t, err)
	assert.False(t, got.Valid)
}

func TestCanonicalUnsupported(t *testing.T) {
	for _, v := range []any{
		map[string]any{"a": 1},
		duckdb.Interval{Days: 1},
		[]any{map[string]any{"a": 1}},
	} {
		_, err := Canonical("payload", "STRUCT", v)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnsupportedValueKind))
		assert.Contains(t, err.Error(), `"payload"`)
	}
}

func TestFormatDecimal(t *testing.T) {
	assert.Equal(t, "0", formatDecimal(nil, 2))
	assert.Equal(t, "123", formatDecimal(big.NewInt(123), 0))
	assert.Equal(t, "0.123", formatDecimal(big.NewInt(123), 3))
	assert.Equal(t, "1.23", formatDecimal(big.NewInt(123), 2))
	assert.Equal(t, "-12.000", formatDecimal(big.NewInt(-12000), 3))
}
