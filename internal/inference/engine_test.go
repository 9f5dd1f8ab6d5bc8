package inference

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strs(vs ...string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func TestInfer_PriorityOrder(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig())

	tests := []struct {
		name   string
		sample []any
		want   Type
	}{
		{name: "integer", sample: strs("1", "2", "-3"), want: Type{Kind: KindInteger}},
		{name: "widened_to_bigint", sample: strs("1", "2", "3000000000"), want: Type{Kind: KindBigInt}},
		{name: "beyond_int64_is_numeric", sample: strs("1", "99999999999999999999"), want: Type{Kind: KindNumeric, Precision: 20}},
		{name: "numeric_nullable", sample: strs("1.5", "", "3"), want: Type{Kind: KindNumeric, Precision: 2, Scale: 1, Nullable: true}},
		{name: "numeric_widest_parts", sample: strs("123.4", "-0.125", "+7"), want: Type{Kind: KindNumeric, Precision: 6, Scale: 3}},
		{name: "numeric_fraction_only", sample: strs(".5", "0.25"), want: Type{Kind: KindNumeric, Precision: 2, Scale: 2}},
		{name: "ones_and_zeros_are_integers", sample: strs("1", "0", "1"), want: Type{Kind: KindInteger}},
		{name: "boolean_tokens_mixed_case", sample: strs("Sim", "NÃO", "true", "no", "1"), want: Type{Kind: KindBoolean}},
		{name: "timestamp_mixed_layouts", sample: strs("2024-01-31", "31/01/2024 10:15", "2024-01-31T10:15:00"), want: Type{Kind: KindTimestamp}},
		{name: "varchar_max_len_in_runes", sample: strs("ação", "ab", "x"), want: Type{Kind: KindVarchar, Length: 4}},
		{name: "mixed_falls_to_varchar", sample: strs("10", "abc", "2024-01-01"), want: Type{Kind: KindVarchar, Length: 10}},
		{name: "whitespace_is_null", sample: strs("  ", "a"), want: Type{Kind: KindVarchar, Length: 1, Nullable: true}},
		{name: "nil_is_null", sample: []any{nil, "7"}, want: Type{Kind: KindInteger, Nullable: true}},
		{name: "empty_sample", sample: nil, want: Type{Kind: KindText, Nullable: true}},
		{name: "all_null", sample: strs("", ""), want: Type{Kind: KindText, Nullable: true}},
		{name: "typed_ints", sample: []any{int64(1), 2, int32(3)}, want: Type{Kind: KindInteger}},
		{name: "typed_big_int", sample: []any{int64(5_000_000_000)}, want: Type{Kind: KindBigInt}},
		{name: "typed_floats", sample: []any{1.25, 10.5}, want: Type{Kind: KindNumeric, Precision: 4, Scale: 2}},
		{name: "typed_bool", sample: []any{true, "false"}, want: Type{Kind: KindBoolean}},
		{name: "typed_time", sample: []any{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-03"}, want: Type{Kind: KindTimestamp}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, e.Infer(tc.sample))
		})
	}
}

func TestInfer_VarcharThreshold(t *testing.T) {
	t.Parallel()

	e := New(Config{VarcharThreshold: 5})
	assert.Equal(t, Type{Kind: KindVarchar, Length: 5}, e.Infer(strs("abcde")))
	assert.Equal(t, Type{Kind: KindText}, e.Infer(strs("abcdef")))

	def := New(Config{})
	assert.Equal(t, KindVarchar, def.Infer(strs(strings.Repeat("a", 255))).Kind)
	assert.Equal(t, KindText, def.Infer(strs(strings.Repeat("a", 256))).Kind)
}

func TestInfer_ConfigurableLocale(t *testing.T) {
	t.Parallel()

	e := New(Config{
		TrueTokens:       []string{"oui"},
		FalseTokens:      []string{"non"},
		TimestampLayouts: []string{"01/02/2006"},
	})
	assert.Equal(t, KindBoolean, e.Infer(strs("OUI", "non")).Kind)
	assert.Equal(t, KindVarchar, e.Infer(strs("sim", "não")).Kind)
	assert.Equal(t, KindTimestamp, e.Infer(strs("12/31/2024")).Kind)
	assert.Equal(t, KindVarchar, e.Infer(strs("2024-12-31")).Kind)
}

func TestInfer_AllText(t *testing.T) {
	t.Parallel()

	e := New(Config{AllText: true})
	assert.Equal(t, Type{Kind: KindText, Nullable: true}, e.Infer(strs("1", "2")))
}

func TestInfer_Idempotent(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig())
	samples := [][]any{
		strs("1", "2", "3000000000"),
		strs("1.5", "", "3"),
		strs("sim", "não"),
		strs("x", "", "yy"),
		nil,
	}
	for _, s := range samples {
		first := e.Infer(s)
		assert.Equal(t, first, e.Infer(s))
		assert.Equal(t, first, New(DefaultConfig()).Infer(s))
	}
}

func TestColumn_IncrementalMatchesInfer(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig())
	sample := strs("10", "", "20.75", "3")

	c := e.NewColumn()
	for _, v := range sample {
		c.Observe(v)
	}
	assert.Equal(t, e.Infer(sample), c.Type())
	assert.Equal(t, 3, c.Seen())
}

func TestInfer_NumericPrecisionCap(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig())

	atCap := "5." + strings.Repeat("5", MaxNumericPrecision-1)
	assert.Equal(t, Type{Kind: KindNumeric, Precision: MaxNumericPrecision, Scale: MaxNumericPrecision - 1}, e.Infer(strs(atCap)))

	wide := "1." + strings.Repeat("5", MaxNumericPrecision)
	got := e.Infer(strs(wide, ""))
	assert.Equal(t, Type{Kind: KindNumeric, Nullable: true}, got)
	assert.Equal(t, "NUMERIC", got.SQL())

	huge := strings.Repeat("9", MaxNumericPrecision+1)
	assert.Equal(t, Type{Kind: KindNumeric}, e.Infer(strs(huge)))
}

func TestType_SQL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NUMERIC(10,2)", Type{Kind: KindNumeric, Precision: 10, Scale: 2}.SQL())
	assert.Equal(t, "NUMERIC", Type{Kind: KindNumeric}.SQL())
	assert.Equal(t, "VARCHAR(40)", Type{Kind: KindVarchar, Length: 40}.SQL())
	assert.Equal(t, "BIGINT NOT NULL", Type{Kind: KindBigInt}.String())
	assert.Equal(t, "TEXT NULL", Type{Kind: KindText, Nullable: true}.String())
}

func TestCanonicalNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "+007.50", want: "7.50", ok: true},
		{in: "-.5", want: "-0.5", ok: true},
		{in: "12.", want: "12", ok: true},
		{in: "-0", want: "0", ok: true},
		{in: " 42 ", want: "42", ok: true},
		{in: "1e5", ok: false},
		{in: "1,5", ok: false},
		{in: ".", ok: false},
	}
	for _, tc := range tests {
		got, ok := CanonicalNumber(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, ok := CanonicalInteger("1.0")
	assert.False(t, ok)
	got, ok := CanonicalInteger("0042")
	assert.True(t, ok)
	assert.Equal(t, "42", got)
}
