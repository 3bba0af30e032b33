package pgtypes

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

func mustType(t *testing.T, r *Registry, id uint32) *catalog.Type {
	t.Helper()
	typ, ok := r.Catalog().Type(id)
	require.True(t, ok)
	return typ
}

func TestNullPassesThrough(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	v, err := r.Decode(nil, mustType(t, r, OIDInterval))
	require.NoError(t, err)
	assert.Nil(t, v)

	frag, err := r.Encode(nil, mustType(t, r, typeInt4Array), catalog.NoModifier)
	require.NoError(t, err)
	text, _ := compile(t, frag)
	assert.Equal(t, "null", text)
}

func TestIntervalCodec(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	interval := mustType(t, r, OIDInterval)

	decoded, err := r.Decode("1 year 2 mons 3 days 04:05:06.5", interval)
	require.NoError(t, err)
	want := map[string]any{"years": 1, "months": 2, "days": 3, "hours": 4, "minutes": 5, "seconds": 6.5}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Fatalf("interval mismatch (-want +got):\n%s", diff)
	}

	frag, err := r.Encode(map[string]any{"years": 1, "hours": 2, "seconds": 30.5}, interval, catalog.NoModifier)
	require.NoError(t, err)
	_, args := compile(t, frag)
	assert.Equal(t, []any{"30.5 seconds 2 hours 1 years"}, args)

	frag, err = r.Encode(map[string]any{}, interval, catalog.NoModifier)
	require.NoError(t, err)
	_, args = compile(t, frag)
	assert.Equal(t, []any{"0 seconds"}, args)
}

func TestPointCodec(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	point := mustType(t, r, OIDPoint)

	decoded, err := r.Decode("(1.5,-2)", point)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1.5, "y": -2.0}, decoded)

	frag, err := r.Encode(map[string]any{"x": 1.5, "y": -2.0}, point, catalog.NoModifier)
	require.NoError(t, err)
	text, args := compile(t, frag)
	assert.Equal(t, "point($1, $2)", text)
	assert.Equal(t, []any{1.5, -2.0}, args)
}

func TestMoneyCodecAndTweak(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	money := mustType(t, r, OIDMoney)

	frag, err := r.Encode("12.50", money, catalog.NoModifier)
	require.NoError(t, err)
	text, args := compile(t, frag)
	assert.Equal(t, "($1)::money", text)
	assert.Equal(t, []any{"12.50"}, args)

	frag, err = r.Encode(12.5, money, catalog.NoModifier)
	require.NoError(t, err)
	_, args = compile(t, frag)
	assert.Equal(t, []any{"12.5"}, args)

	tweaked, err := r.Tweak(pgsql.Ident("t", "amount"), money, catalog.NoModifier)
	require.NoError(t, err)
	text, _ = compile(t, tweaked)
	assert.Equal(t, `("t"."amount")::numeric::text`, text)
}

func TestHstoreCodec(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	_, err := r.ResolveOutputType(typeHstore, catalog.NoModifier, true)
	require.NoError(t, err)
	hstore := mustType(t, r, typeHstore)

	frag, err := r.Encode(map[string]any{"a": "1", "b": nil, "c": `x"y\z`}, hstore, catalog.NoModifier)
	require.NoError(t, err)
	text, args := compile(t, frag)
	assert.Equal(t, `($1::"app"."hstore")`, text)
	assert.Equal(t, []any{`"a"=>"1", "b"=>NULL, "c"=>"x\"y\\z"`}, args)

	_, err = r.Encode(map[string]any{"a": 1}, hstore, catalog.NoModifier)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	decoded, err := r.Decode(`"k"=>"v", "n"=>NULL`, hstore)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v", "n": nil}, decoded)
}

func TestJSONCodec(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	jsonb := mustType(t, r, OIDJSONB)
	frag, err := r.Encode(map[string]any{"a": 1}, jsonb, catalog.NoModifier)
	require.NoError(t, err)
	_, args := compile(t, frag)
	assert.Equal(t, []any{`{"a":1}`}, args)

	plain := newTestRegistry(t, Options{})
	decoded, err := plain.Decode(map[string]any{"a": true}, jsonb)
	require.NoError(t, err)
	assert.Equal(t, `{"a":true}`, decoded)
}

func TestArrayCodec(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	arr := mustType(t, r, typeInt4Array)

	frag, err := r.Encode([]any{1, 2}, arr, catalog.NoModifier)
	require.NoError(t, err)
	text, args := compile(t, frag)
	assert.Equal(t, `array[$1, $2]::"pg_catalog"."int4"[]`, text)
	assert.Equal(t, []any{1, 2}, args)

	_, err = r.Encode("nope", arr, catalog.NoModifier)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorContains(t, err, "'pg_catalog._int4'")

	_, err = r.Decode("nope", arr)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	decoded, err := r.Decode([]any{"1 day", nil}, mustType(t, r, typeInt4Array))
	require.NoError(t, err)
	assert.Equal(t, []any{"1 day", nil}, decoded)
}

func TestDomainEncodesAsBase(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	frag, err := r.Encode("a@example.com", mustType(t, r, typeEmail), catalog.NoModifier)
	require.NoError(t, err)
	text, args := compile(t, frag)
	assert.Equal(t, "$1", text)
	assert.Equal(t, []any{"a@example.com"}, args)

	tweaked, err := r.Tweak(pgsql.Ident("p"), mustType(t, r, typePrice), catalog.NoModifier)
	require.NoError(t, err)
	text, _ = compile(t, tweaked)
	assert.Equal(t, `("p")::text`, text)
}

func TestRangeCodecAndTweak(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	_, err := r.ResolveOutputType(typeInt4Range, catalog.NoModifier, true)
	require.NoError(t, err)
	rng := mustType(t, r, typeInt4Range)

	frag, err := r.Encode(map[string]any{
		"start": map[string]any{"value": 1, "inclusive": true},
		"end":   map[string]any{"value": 5, "inclusive": false},
	}, rng, catalog.NoModifier)
	require.NoError(t, err)
	text, args := compile(t, frag)
	assert.Equal(t, `"pg_catalog"."int4range"($1, $2, '[)')`, text)
	assert.Equal(t, []any{1, 5}, args)

	frag, err = r.Encode(map[string]any{"end": map[string]any{"value": 5, "inclusive": true}}, rng, catalog.NoModifier)
	require.NoError(t, err)
	text, _ = compile(t, frag)
	assert.Equal(t, `"pg_catalog"."int4range"(null, $1, '[]')`, text)

	decoded, err := r.Decode(map[string]any{"start": map[string]any{"value": 1, "inclusive": true}, "end": nil}, rng)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"start": map[string]any{"value": 1, "inclusive": true}, "end": nil}, decoded)

	tweaked, err := r.Tweak(pgsql.Ident("r"), rng, catalog.NoModifier)
	require.NoError(t, err)
	text, _ = compile(t, tweaked)
	assert.Equal(t, `case when ("r") is null then null else json_build_object(`+
		`'start', case when lower("r") is null then null else json_build_object('value', lower("r"), 'inclusive', lower_inc("r")) end, `+
		`'end', case when upper("r") is null then null else json_build_object('value', upper("r"), 'inclusive', upper_inc("r")) end) end`, text)
}

func TestRangeBoundsIgnoreRangeModifier(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	widen := func(frag pgsql.Fragment, _ catalog.Modifier) pgsql.Fragment {
		return pgsql.Concat("(", frag, ")::int8")
	}
	require.NoError(t, r.RegisterModifierTweak(OIDInt4, 7, widen, false))
	_, err := r.ResolveOutputType(typeInt4Range, 7, true)
	require.NoError(t, err)
	rng := mustType(t, r, typeInt4Range)

	tweaked, err := r.Tweak(pgsql.Ident("r"), rng, 7)
	require.NoError(t, err)
	text, _ := compile(t, tweaked)
	assert.NotContains(t, text, "::int8")
	assert.Contains(t, text, `json_build_object('value', lower("r"), 'inclusive', lower_inc("r"))`)
}

func TestTweaks(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	col := pgsql.Ident("t", "c")
	cases := []struct {
		id   uint32
		want string
	}{
		{OIDInt8, `("t"."c")::text`},
		{OIDNumeric, `("t"."c")::text`},
		{OIDInterval, `("t"."c")::text`},
		{OIDInt4, `"t"."c"`},
		{OIDText, `"t"."c"`},
		{typeMood, `"t"."c"`},
	}
	for _, tc := range cases {
		frag, err := r.Tweak(col, mustType(t, r, tc.id), catalog.NoModifier)
		require.NoError(t, err)
		text, _ := compile(t, frag)
		assert.Equal(t, tc.want, text, "type %d", tc.id)
	}
}

func TestModifierTweakTakesPrecedence(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	require.NoError(t, r.RegisterModifierTweak(OIDText, 8, func(f pgsql.Fragment, _ catalog.Modifier) pgsql.Fragment {
		return pgsql.Concat("upper(", f, ")")
	}, false))
	text := mustType(t, r, OIDText)

	frag, err := r.Tweak(pgsql.Ident("c"), text, 8)
	require.NoError(t, err)
	got, _ := compile(t, frag)
	assert.Equal(t, `upper("c")`, got)

	frag, err = r.Tweak(pgsql.Ident("c"), text, catalog.NoModifier)
	require.NoError(t, err)
	got, _ = compile(t, frag)
	assert.Equal(t, `"c"`, got)
}

func TestArrayTweaks(t *testing.T) {
	r := newTestRegistry(t, DefaultOptions())
	int8arr := mustType(t, r, typeInt8Array)

	frag, err := r.Tweak(pgsql.Ident("a"), int8arr, catalog.NoModifier)
	require.NoError(t, err)
	text, _ := compile(t, frag)
	assert.Equal(t, `"a"`, text)

	strict := newTestRegistry(t, Options{StrictTweaks: true})
	_, err = strict.Tweak(pgsql.Ident("a"), int8arr, catalog.NoModifier)
	assert.ErrorContains(t, err, "should not attempt to tweak an array")

	frag, err = r.TweakValue(pgsql.Ident("a"), int8arr, catalog.NoModifier)
	require.NoError(t, err)
	text, _ = compile(t, frag)
	assert.Equal(t, `(case when ("a") is null then null else array(select (__local_0__."v")::text from unnest("a") with ordinality as __local_0__("v", "n") order by __local_0__."n") end)`, text)

	frag, err = r.TweakValue(pgsql.Ident("a"), mustType(t, r, typeInt4Array), catalog.NoModifier)
	require.NoError(t, err)
	text, _ = compile(t, frag)
	assert.Equal(t, `"a"`, text)
}
