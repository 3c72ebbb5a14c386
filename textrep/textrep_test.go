package textrep

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dadrian/hessian"
)

func TestParseScalars(t *testing.T) {
	tests := []struct {
		src  string
		want hessian.Value
	}{
		{"null", hessian.Null{}},
		{"true", hessian.Bool(true)},
		{"-2147483648", hessian.Int32(math.MinInt32)},
		{"42L", hessian.Int64(42)},
		{"1.5", hessian.Double(1.5)},
		{"1e3", hessian.Double(1000)},
		{"-inf", hessian.Double(math.Inf(-1))},
		{`"hé\n"`, hessian.String("hé\n")},
		{`bin"68656c6c6f"`, hessian.Binary("hello")},
		{"date(1700000000000)", hessian.Date(1700000000000)},
		{`date("2023-11-14T22:13:20Z")`, hessian.Date(1700000000000)},
		{"# comment\n7 // trailing", hessian.Int32(7)},
	}
	for _, tt := range tests {
		v, err := Parse([]byte(tt.src))
		require.NoError(t, err, tt.src)
		require.Equal(t, tt.want, v, tt.src)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"2147483648",
		"[1, 2",
		`bin"zz"`,
		"object {}",
		`object "t" {a: 1, a: 2}`,
		"$a",
		"[$a, $b = []]",
		"$a = 5",
		"[$a = [], $a = []]",
		"1 2",
		"@",
	} {
		_, err := Parse([]byte(src))
		require.Error(t, err, src)
	}
}

func TestParseComposites(t *testing.T) {
	v, err := Parse([]byte(`object "com.example.Car" {
		color: "red",
		"model year": 1999L,
		parts: list<"[string">["wheel", "door"],
		extra: map<"java.util.HashMap">{1: null, "k": {}},
	}`))
	require.NoError(t, err)

	want := &hessian.Object{Type: "com.example.Car", Fields: []hessian.Field{
		{Name: "color", Value: hessian.String("red")},
		{Name: "model year", Value: hessian.Int64(1999)},
		{Name: "parts", Value: &hessian.List{Type: "[string", Elems: []hessian.Value{
			hessian.String("wheel"), hessian.String("door"),
		}}},
		{Name: "extra", Value: &hessian.Map{Type: "java.util.HashMap", Entries: []hessian.Entry{
			{Key: hessian.Int32(1), Value: hessian.Null{}},
			{Key: hessian.String("k"), Value: &hessian.Map{}},
		}}},
	}}
	require.True(t, hessian.Equal(want, v), Format(v))
}

func TestLabels(t *testing.T) {
	v, err := Parse([]byte(`$top = [$shared = [1], $shared, $top, $later, $later = {}]`))
	require.NoError(t, err)
	l := v.(*hessian.List)
	require.Len(t, l.Elems, 5)
	require.Same(t, l.Elems[0], l.Elems[1])
	require.Same(t, l, l.Elems[2])
	require.Same(t, l.Elems[3], l.Elems[4])
	require.IsType(t, &hessian.Map{}, l.Elems[3])
}

func TestCompileMatchesEncoder(t *testing.T) {
	out, err := Compile([]byte(`$a = object "Node" {name: "a", next: object "Node" {name: "b", next: $a}}`))
	require.NoError(t, err)

	a := &hessian.Object{Type: "Node"}
	b := &hessian.Object{Type: "Node"}
	a.Fields = []hessian.Field{{Name: "name", Value: hessian.String("a")}, {Name: "next", Value: b}}
	b.Fields = []hessian.Field{{Name: "name", Value: hessian.String("b")}, {Name: "next", Value: a}}
	want, err := hessian.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, want, out)

	var buf bytes.Buffer
	require.NoError(t, Encode(strings.NewReader(`[1, 2]`), &buf))
	require.Equal(t, []byte{0x7a, 0x91, 0x92}, buf.Bytes())
}

func TestFormatCompact(t *testing.T) {
	shared := &hessian.List{Elems: []hessian.Value{hessian.Int32(1)}}
	top := &hessian.Map{Type: "m"}
	top.Put(hessian.String("a"), shared)
	top.Put(hessian.String("b"), shared)
	top.Put(hessian.String("self"), top)
	top.Put(hessian.Double(2), hessian.Binary{0xca, 0xfe})

	got := Format(top, Compact())
	require.Equal(t, `$1 = map<"m">{"a": $2 = [1], "b": $2, "self": $1, 2.0: bin"cafe"}`, got)

	back, err := Parse([]byte(got))
	require.NoError(t, err)
	require.True(t, hessian.Equal(top, back))
	m := back.(*hessian.Map)
	require.Same(t, m.Entries[0].Value, m.Entries[1].Value)
	require.Same(t, m, m.Entries[2].Value)
}

func TestFormatIndented(t *testing.T) {
	o := &hessian.Object{Type: "p", Fields: []hessian.Field{
		{Name: "x", Value: hessian.Int64(-3)},
		{Name: "null", Value: hessian.Date(0)},
		{Name: "tags", Value: &hessian.List{}},
	}}
	want := `object "p" {
  x: -3L,
  "null": date("1970-01-01T00:00:00Z"),
  tags: []
}`
	require.Equal(t, want, Format(o))

	back, err := Parse([]byte(want))
	require.NoError(t, err)
	require.True(t, hessian.Equal(o, back))
}

func TestFormatColor(t *testing.T) {
	got := Format(hessian.Int32(5), Color(true))
	require.Contains(t, got, "\x1b[")
	require.Contains(t, got, "5")
	require.Equal(t, "5", Format(hessian.Int32(5), Color(false)))
}

func TestFormatDoubles(t *testing.T) {
	for _, f := range []float64{0, -0.5, 1e300, 3, math.Inf(1), math.NaN()} {
		s := Format(hessian.Double(f))
		v, err := Parse([]byte(s))
		require.NoError(t, err, s)
		d, ok := v.(hessian.Double)
		require.True(t, ok, s)
		if math.IsNaN(f) {
			require.True(t, math.IsNaN(float64(d)))
			continue
		}
		require.Equal(t, f, float64(d), s)
	}
}
