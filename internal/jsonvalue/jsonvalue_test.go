package jsonvalue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nested() Value {
	return Object(
		M("date", String("2024-01")),
		M("tavg", Number(math.NaN())),
		M("prcp", Number(12.5)),
		M("series", Array(
			Number(math.Inf(1)),
			Object(M("deep", Array(Number(math.Inf(-1)), Bool(true)))),
			Null(),
		)),
	)
}

func TestSanitize_ReplacesNonFiniteAtAnyDepth(t *testing.T) {
	out := Sanitize(nested())

	tavg, ok := out.Get("tavg")
	require.True(t, ok)
	assert.True(t, tavg.IsNull())

	prcp, _ := out.Get("prcp")
	f, ok := prcp.Float()
	require.True(t, ok)
	assert.Equal(t, 12.5, f)

	series, _ := out.Get("series")
	require.Len(t, series.Items(), 3)
	assert.True(t, series.Items()[0].IsNull())

	deep, _ := series.Items()[1].Get("deep")
	assert.True(t, deep.Items()[0].IsNull())
	b, ok := deep.Items()[1].Boolean()
	require.True(t, ok)
	assert.True(t, b)

	assert.False(t, HasNonFinite(out))
}

func TestSanitize_DoesNotMutateInput(t *testing.T) {
	in := nested()
	_ = Sanitize(in)

	tavg, _ := in.Get("tavg")
	f, ok := tavg.Float()
	require.True(t, ok)
	assert.True(t, math.IsNaN(f))
	assert.True(t, HasNonFinite(in))
}

func TestSanitize_FixedPoint(t *testing.T) {
	once := Sanitize(nested())
	twice := Sanitize(once)
	assert.True(t, Equal(once, twice))
}

func TestSanitize_PreservesOrderAndScalars(t *testing.T) {
	in := Object(
		M("z", String("last letter")),
		M("a", Int(7)),
		M("m", Bool(false)),
	)
	out := Sanitize(in)

	keys := make([]string, 0, 3)
	for _, m := range out.Members() {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"z", "a", "m"}, keys)
	assert.True(t, Equal(in, out))
}

func TestMarshalJSON_RejectsNonFinite(t *testing.T) {
	_, err := Array(Number(math.NaN())).MarshalJSON()
	require.ErrorIs(t, err, ErrNonFinite)
}

func TestMarshalIndent(t *testing.T) {
	v := Array(Object(
		M("date", String("2024-01-01")),
		M("height_m", Number(100.5)),
		M("storage_ml", Number(math.NaN())),
	))

	data, err := MarshalIndent(v)
	require.NoError(t, err)

	want := "[\n  {\n    \"date\": \"2024-01-01\",\n    \"height_m\": 100.5,\n    \"storage_ml\": null\n  }\n]"
	assert.Equal(t, want, string(data))
}

func TestUnmarshalJSON_KeepsOrderAndLiterals(t *testing.T) {
	src := `{"Id":9007199254740993,"location":"Sea Point","area":"Atlantic","Nested":{"b":1.50,"a":[true,null]}}`

	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte(src)))

	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestUnmarshalJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"truncated", `{"a":`},
		{"trailing data", `[1] [2]`},
		{"not json", `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			assert.Error(t, v.UnmarshalJSON([]byte(tt.src)))
		})
	}
}

func TestEncodeString_NoHTMLEscaping(t *testing.T) {
	out, err := String("Voëlvlei <dam> & co").MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"Voëlvlei <dam> & co"`, string(out))
}

func TestWith(t *testing.T) {
	v := Object(M("Id", Int(1)), M("area", String("A")))

	replaced := v.With("area", String("B"))
	area, _ := replaced.Get("area")
	s, _ := area.Str()
	assert.Equal(t, "B", s)
	assert.Len(t, replaced.Members(), 2)

	appended := v.With("coordinates", Null())
	assert.Equal(t, "coordinates", appended.Members()[2].Key)

	// original untouched
	assert.False(t, v.Has("coordinates"))
}

func TestInt64(t *testing.T) {
	n, ok := Int(42).Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = Number(4.5).Int64()
	assert.False(t, ok)

	_, ok = String("42").Int64()
	assert.False(t, ok)
}
