package assembler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/cursor"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/testutil/catalogfixture"
)

func TestConnectionForward(t *testing.T) {
	f := newFixture(t)
	root := Field{
		Key:    "allUsers",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page:   &Page{First: intPtr(2), Order: f.pkOrder(t, false), OrderKey: "PRIMARY_KEY_ASC", TotalCount: true},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	want := `select json_build_object('rows', coalesce((select json_agg(json_build_object('c', __local_0__."c", 'n', __local_0__."n") order by __local_0__."i") ` +
		`from (select json_build_array(__local_1__."id") as "c", json_build_object('id', __local_1__."id") as "n", ` +
		`row_number() over (order by __local_1__."id" asc) as "i" from "app"."users" as __local_1__ ` +
		`order by __local_1__."id" asc limit 3 offset 0) as __local_0__), '[]'::json), ` +
		`'totalCount', (select count(*) from "app"."users" as __local_2__)) as "__data"`
	if diff := cmp.Diff(want, text); diff != "" {
		t.Fatalf("sql mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, args)

	got, err := f.asm.Decode(root, []byte(`{"rows": [
		{"c": [1], "n": {"id": 1}},
		{"c": [2], "n": {"id": 2}},
		{"c": [3], "n": {"id": 3}}
	], "totalCount": 7}`))
	require.NoError(t, err)
	conn := got.(*Connection)
	require.Len(t, conn.Edges, 2)
	assert.Equal(t, 7, conn.TotalCount)
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.False(t, conn.PageInfo.HasPreviousPage)
	assert.Equal(t, conn.Edges[0].Node, conn.Nodes[0])

	end, err := cursor.Decode(*conn.PageInfo.EndCursor)
	require.NoError(t, err)
	require.Len(t, end.Values, 1)
	assert.Equal(t, "2", *end.Values[0])
	assert.Equal(t, "PRIMARY_KEY_ASC", end.OrderKey)
	assert.Equal(t, conn.Edges[0].Cursor, *conn.PageInfo.StartCursor)
}

func TestConnectionBackwardWithCursor(t *testing.T) {
	f := newFixture(t)
	before := cursor.Encode("User", "PRIMARY_KEY_ASC", []string{"ASC"}, 5)
	root := Field{
		Key:    "allUsers",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page:   &Page{Last: intPtr(2), Before: before, Order: f.pkOrder(t, false), OrderKey: "PRIMARY_KEY_ASC"},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	assert.Contains(t, text, `where ((__local_1__."id" < $1::"pg_catalog"."int4")) order by __local_1__."id" desc limit 3 offset 0`)
	assert.Contains(t, text, `order by __local_0__."i" desc)`)
	assert.NotContains(t, text, "totalCount")
	assert.Equal(t, []any{"5"}, args)

	got, err := f.asm.Decode(root, []byte(`{"rows": [
		{"c": [2], "n": {"id": 2}},
		{"c": [3], "n": {"id": 3}},
		{"c": [4], "n": {"id": 4}}
	]}`))
	require.NoError(t, err)
	conn := got.(*Connection)
	require.Len(t, conn.Nodes, 2)
	assert.Equal(t, float64(3), conn.Nodes[0].(map[string]any)["id"])
	assert.True(t, conn.PageInfo.HasPreviousPage)
	assert.True(t, conn.PageInfo.HasNextPage)
}

func TestConnectionMixedDirectionSeek(t *testing.T) {
	f := newFixture(t)
	order := append(f.pkOrder(t, true), f.pkOrder(t, false)...)
	after := cursor.Encode("User", "A_DESC,B_ASC", []string{"DESC", "ASC"}, 9, 1)
	root := Field{
		Key:    "allUsers",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page:   &Page{After: after, Order: order, OrderKey: "A_DESC,B_ASC"},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	assert.Contains(t, text,
		`where ((__local_1__."id" < $1::"pg_catalog"."int4") or (__local_1__."id" = $2::"pg_catalog"."int4" and __local_1__."id" > $3::"pg_catalog"."int4"))`)
	assert.Contains(t, text, `limit 11 offset 0`)
	assert.Equal(t, []any{"9", "9", "1"}, args)
}

func TestConnectionNaturalOrder(t *testing.T) {
	f := newFixture(t)
	root := Field{
		Key:    "users",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page:   &Page{First: intPtr(2), After: cursor.EncodeNatural("User", 2)},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, _ := compile(t, stmt)
	assert.Contains(t, text, `row_number() over () as "i" from "app"."users" as __local_1__ limit 3 offset 2`)

	got, err := f.asm.Decode(root, []byte(`{"rows": [{"c": null, "n": {"id": 3}}, {"c": null, "n": {"id": 4}}]}`))
	require.NoError(t, err)
	conn := got.(*Connection)
	assert.True(t, conn.PageInfo.HasPreviousPage)
	assert.False(t, conn.PageInfo.HasNextPage)
	first, err := cursor.Decode(conn.Edges[0].Cursor)
	require.NoError(t, err)
	pos, err := first.Position()
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
}

func TestConnectionNaturalLast(t *testing.T) {
	f := newFixture(t)
	root := Field{
		Key:    "users",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page:   &Page{Last: intPtr(2), Before: cursor.EncodeNatural("User", 6)},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, _ := compile(t, stmt)
	assert.Contains(t, text, `limit 2 offset 3`)

	got, err := f.asm.Decode(root, []byte(`{"rows": [{"n": {"id": 4}}, {"n": {"id": 5}}]}`))
	require.NoError(t, err)
	conn := got.(*Connection)
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.True(t, conn.PageInfo.HasPreviousPage)
	end, err := cursor.Decode(*conn.PageInfo.EndCursor)
	require.NoError(t, err)
	pos, err := end.Position()
	require.NoError(t, err)
	assert.Equal(t, 5, pos)
}

func TestConnectionArgumentValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		page Page
		want string
	}{
		{"first and last", Page{First: intPtr(1), Last: intPtr(1)}, "cannot use both first and last"},
		{"after and before", Page{After: "a", Before: "b", Last: intPtr(1)}, "cannot use both after and before"},
		{"before without last", Page{Before: "b"}, "before requires last"},
		{"last with after", Page{Last: intPtr(1), After: "a"}, "last cannot be used with after"},
		{"negative first", Page{First: intPtr(-1)}, "first must be non-negative"},
		{"natural last", Page{Last: intPtr(1)}, "last requires before"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := tc.page
			_, err := f.asm.Assemble(Field{Key: "c", Kind: KindConnection, Source: f.source(), Page: &page}, pgsql.Fragment{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConnectionRejectsForeignCursor(t *testing.T) {
	f := newFixture(t)
	page := &Page{
		After:    cursor.Encode("User", "NAME_ASC", []string{"ASC"}, "bob"),
		Order:    f.pkOrder(t, false),
		OrderKey: "PRIMARY_KEY_ASC",
	}
	_, err := f.asm.Assemble(Field{Key: "c", Kind: KindConnection, Source: f.source(), Page: page}, pgsql.Fragment{})
	require.ErrorIs(t, err, ErrInvalidCursor)
	require.ErrorIs(t, err, cursor.ErrInvalid)

	page.After = "not a cursor"
	_, err = f.asm.Assemble(Field{Key: "c", Kind: KindConnection, Source: f.source(), Page: page}, pgsql.Fragment{})
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestConnectionClampsToMaxLimit(t *testing.T) {
	f := newFixture(t)
	root := Field{Key: "c", Kind: KindConnection, Source: f.source(), Data: columns(t, f.id), Page: &Page{First: intPtr(500), Order: f.pkOrder(t, false), OrderKey: "PRIMARY_KEY_ASC"}}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, _ := compile(t, stmt)
	assert.Contains(t, text, "limit 51 offset 0")
}

func (f *fixture) emailOrder(t *testing.T) []OrderTerm {
	email := f.cat.Attributes(catalogfixture.ClassUsers)[2]
	return append([]OrderTerm{{
		Expr: func(alias pgsql.Fragment) pgsql.Fragment { return pgsql.Concat(alias, ".", pgsql.Ident(email.Name)) },
		Type: f.typ(t, catalogfixture.TypeText),
		Mod:  catalog.NoModifier,
	}}, f.pkOrder(t, false)...)
}

func TestConnectionPagesPastNullOrderValues(t *testing.T) {
	f := newFixture(t)
	const orderKey = "EMAIL_ASC,PRIMARY_KEY_ASC"
	page := func(after string) Field {
		return Field{
			Key:    "allUsers",
			Kind:   KindConnection,
			Source: f.source(),
			Data:   columns(t, f.id),
			Page:   &Page{First: intPtr(2), After: after, Order: f.emailOrder(t), OrderKey: orderKey},
		}
	}

	first := page("")
	got, err := f.asm.Decode(first, []byte(`{"rows": [
		{"c": ["ada@example.com", 1], "n": {"id": 1}},
		{"c": [null, 2], "n": {"id": 2}},
		{"c": [null, 3], "n": {"id": 3}}
	]}`))
	require.NoError(t, err)
	conn := got.(*Connection)
	require.Len(t, conn.Edges, 2)
	assert.True(t, conn.PageInfo.HasNextPage)
	for _, e := range conn.Edges {
		assert.NotEmpty(t, e.Cursor)
	}
	require.NotNil(t, conn.PageInfo.EndCursor)
	end, err := cursor.Decode(*conn.PageInfo.EndCursor)
	require.NoError(t, err)
	require.Len(t, end.Values, 2)
	assert.Nil(t, end.Values[0])
	assert.Equal(t, "2", *end.Values[1])

	stmt, err := f.asm.Assemble(page(*conn.PageInfo.EndCursor), pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	assert.Contains(t, text,
		`where ((__local_1__."email" is null and __local_1__."id" > $1::"pg_catalog"."int4")) order by __local_1__."email" asc, __local_1__."id" asc`)
	assert.Equal(t, []any{"2"}, args)
}

func TestConnectionSeekIncludesTrailingNulls(t *testing.T) {
	f := newFixture(t)
	root := Field{
		Key:    "allUsers",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page: &Page{
			After:    cursor.Encode("User", "EMAIL_ASC,PRIMARY_KEY_ASC", []string{"ASC", "ASC"}, "bob@example.com", 5),
			Order:    f.emailOrder(t),
			OrderKey: "EMAIL_ASC,PRIMARY_KEY_ASC",
		},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	assert.Contains(t, text,
		`where (((__local_1__."email" > $1::"pg_catalog"."text" or __local_1__."email" is null)) or `+
			`(__local_1__."email" = $2::"pg_catalog"."text" and __local_1__."id" > $3::"pg_catalog"."int4"))`)
	assert.Equal(t, []any{"bob@example.com", "bob@example.com", "5"}, args)
}

func TestConnectionBackwardFromNullOrderValue(t *testing.T) {
	f := newFixture(t)
	root := Field{
		Key:    "allUsers",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page: &Page{
			Last:     intPtr(2),
			Before:   cursor.Encode("User", "EMAIL_ASC,PRIMARY_KEY_ASC", []string{"ASC", "ASC"}, nil, 3),
			Order:    f.emailOrder(t),
			OrderKey: "EMAIL_ASC,PRIMARY_KEY_ASC",
		},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	assert.Contains(t, text,
		`where ((__local_1__."email" is not null) or (__local_1__."email" is null and __local_1__."id" < $1::"pg_catalog"."int4")) `+
			`order by __local_1__."email" desc, __local_1__."id" desc`)
	assert.Equal(t, []any{"3"}, args)
}

func TestConnectionSeekAfterLastNullIsEmpty(t *testing.T) {
	f := newFixture(t)
	order := f.emailOrder(t)[:1]
	root := Field{
		Key:    "allUsers",
		Kind:   KindConnection,
		Source: f.source(),
		Data:   columns(t, f.id),
		Page: &Page{
			After:    cursor.Encode("User", "EMAIL_ASC", []string{"ASC"}, nil),
			Order:    order,
			OrderKey: "EMAIL_ASC",
		},
	}
	stmt, err := f.asm.Assemble(root, pgsql.Fragment{})
	require.NoError(t, err)
	text, _ := compile(t, stmt)
	assert.Contains(t, text, `where (false) order by`)
}
