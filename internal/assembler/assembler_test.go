package assembler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
	"pg-graphql/internal/testutil/catalogfixture"
)

type fixture struct {
	asm   *Assembler
	cat   *catalog.Catalog
	users *catalog.Class
	id    *catalog.Attribute
	name  *catalog.Attribute
	score *catalog.Attribute
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := catalogfixture.Catalog()
	reg, err := pgtypes.New(cat, naming.Default(), pgtypes.DefaultOptions(), nil)
	require.NoError(t, err)
	users, ok := cat.Class(catalogfixture.ClassUsers)
	require.True(t, ok)
	attrs := cat.Attributes(catalogfixture.ClassUsers)
	return &fixture{
		asm:   New(reg, Options{DefaultLimit: 10, MaxLimit: 50}),
		cat:   cat,
		users: users,
		id:    attrs[0],
		name:  attrs[1],
		score: attrs[3],
	}
}

func (f *fixture) source(conds ...Condition) *Source {
	return &Source{
		From:       Relation(f.users),
		Class:      f.users,
		TypeName:   "User",
		PrimaryKey: []*catalog.Attribute{f.id},
		Conditions: conds,
	}
}

func (f *fixture) typ(t *testing.T, id uint32) *catalog.Type {
	t.Helper()
	typ, ok := f.cat.Type(id)
	require.True(t, ok)
	return typ
}

func (f *fixture) pkOrder(t *testing.T, desc bool) []OrderTerm {
	return []OrderTerm{{
		Expr:    func(alias pgsql.Fragment) pgsql.Fragment { return pgsql.Concat(alias, ".", pgsql.Ident("id")) },
		Type:    f.typ(t, catalogfixture.TypeInt4),
		Mod:     catalog.NoModifier,
		Desc:    desc,
		NotNull: true,
	}}
}

func columns(t *testing.T, attrs ...*catalog.Attribute) *ResolveData {
	t.Helper()
	data := &ResolveData{}
	for _, attr := range attrs {
		require.NoError(t, data.Add(Field{Key: attr.Name, Kind: KindColumn, Attribute: attr}))
	}
	return data
}

func intPtr(n int) *int { return &n }

func compile(t *testing.T, frag pgsql.Fragment) (string, []any) {
	t.Helper()
	text, args, err := pgsql.Compile(frag)
	require.NoError(t, err)
	return text, args
}

func TestAssembleObject(t *testing.T) {
	f := newFixture(t)
	byID := func(alias, _ pgsql.Fragment) pgsql.Fragment {
		return pgsql.Concat(alias, ".", pgsql.Ident("id"), " = ", pgsql.Value(7))
	}
	src := f.source(byID)
	data := columns(t, f.id, f.name, f.score)
	require.NoError(t, data.Add(Field{Key: "nodeId", Kind: KindNodeID, Source: src, TypeName: "User"}))

	stmt, err := f.asm.Assemble(Field{Key: "user", Kind: KindObject, Source: src, Data: data}, pgsql.Fragment{})
	require.NoError(t, err)
	text, args := compile(t, stmt)
	assert.Equal(t,
		`select (select json_build_object('id', __local_0__."id", 'name', __local_0__."name", 'score', (__local_0__."score")::text, 'nodeId', json_build_array(__local_0__."id")) `+
			`from "app"."users" as __local_0__ where (__local_0__."id" = $1) limit 1) as "__data"`,
		text)
	assert.Equal(t, []any{7}, args)
}

func TestAssembleWithCommonTableExpression(t *testing.T) {
	f := newFixture(t)
	src := f.source()
	src.From = func(pgsql.Fragment) pgsql.Fragment { return pgsql.Ident("__captured") }
	with := pgsql.Concat(pgsql.Ident("__captured"), " as (select 1)")

	stmt, err := f.asm.Assemble(Field{Key: "user", Kind: KindObject, Source: src, Data: columns(t, f.id)}, with)
	require.NoError(t, err)
	text, _ := compile(t, stmt)
	assert.Equal(t,
		`with "__captured" as (select 1) select (select json_build_object('id', __local_0__."id") from "__captured" as __local_0__ limit 1) as "__data"`,
		text)
}

func TestComputedColumnsGetDistinctAliases(t *testing.T) {
	f := newFixture(t)
	call := func(parent pgsql.Fragment) pgsql.Fragment {
		return pgsql.Concat(pgsql.Ident("app", "users_display_name"), "(", parent, ")")
	}
	text := f.typ(t, catalogfixture.TypeText)
	data := &ResolveData{}
	for _, key := range []string{"displayName", "alias"} {
		require.NoError(t, data.Add(Field{
			Key:    key,
			Kind:   KindComputed,
			Source: &Source{From: call, Type: text, Mod: catalog.NoModifier},
		}))
	}

	stmt, err := f.asm.Assemble(Field{Key: "user", Kind: KindObject, Source: f.source(), Data: data}, pgsql.Fragment{})
	require.NoError(t, err)
	sql, _ := compile(t, stmt)
	assert.Contains(t, sql, `'displayName', (select __local_0__ from "app"."users_display_name"(__local_1__) as __local_0__)`)
	assert.Contains(t, sql, `'alias', (select __local_2__ from "app"."users_display_name"(__local_1__) as __local_2__)`)
}

func TestComputedColumnWithoutTypeIsUnmappable(t *testing.T) {
	f := newFixture(t)
	data := &ResolveData{}
	require.NoError(t, data.Add(Field{Key: "broken", Kind: KindComputed, Source: &Source{}}))
	_, err := f.asm.Assemble(Field{Key: "user", Kind: KindObject, Source: f.source(), Data: data}, pgsql.Fragment{})
	require.ErrorIs(t, err, ErrUnmappableReturnType)
}

func TestAddNullCase(t *testing.T) {
	f := newFixture(t)
	src := f.source()
	src.AddNullCase = true
	stmt, err := f.asm.Assemble(Field{Key: "user", Kind: KindObject, Source: src, Data: columns(t, f.id)}, pgsql.Fragment{})
	require.NoError(t, err)
	sql, _ := compile(t, stmt)
	assert.Contains(t, sql, `(case when (__local_0__ is null) then null else json_build_object('id', __local_0__."id") end)`)
}

func TestWideObjectsAreChunked(t *testing.T) {
	f := newFixture(t)
	data := &ResolveData{}
	for i := 0; i < 60; i++ {
		require.NoError(t, data.Add(Field{Key: fmt.Sprintf("f%d", i), Kind: KindColumn, Attribute: f.id}))
	}
	stmt, err := f.asm.Assemble(Field{Key: "user", Kind: KindObject, Source: f.source(), Data: data}, pgsql.Fragment{})
	require.NoError(t, err)
	sql, _ := compile(t, stmt)
	assert.Contains(t, sql, `'f49', __local_0__."id")::jsonb || json_build_object('f50', __local_0__."id"`)
	assert.Contains(t, sql, `)::jsonb)::json`)
}

func TestAssembleList(t *testing.T) {
	f := newFixture(t)
	stmt, err := f.asm.Assemble(Field{Key: "users", Kind: KindList, Source: f.source(), Data: columns(t, f.id)}, pgsql.Fragment{})
	require.NoError(t, err)
	sql, _ := compile(t, stmt)
	assert.Equal(t,
		`select coalesce((select json_agg(json_build_object('id', __local_0__."id")) from "app"."users" as __local_0__), '[]'::json) as "__data"`,
		sql)
}

func TestResolveDataMergesDuplicateKeys(t *testing.T) {
	f := newFixture(t)
	data := &ResolveData{}
	require.NoError(t, data.Add(Field{Key: "author", Kind: KindObject, Source: f.source(), Data: columns(t, f.id)}))
	require.NoError(t, data.Add(Field{Key: "author", Kind: KindObject, Source: f.source(), Data: columns(t, f.name)}))
	require.Len(t, data.Fields, 1)
	author, ok := data.Field("author")
	require.True(t, ok)
	assert.Len(t, author.Data.Fields, 2)

	err := data.Add(Field{Key: "author", Kind: KindColumn, Attribute: f.name})
	require.ErrorIs(t, err, ErrConflictingSelection)
}

func TestDecodeObject(t *testing.T) {
	f := newFixture(t)
	src := f.source()
	data := columns(t, f.id, f.score)
	require.NoError(t, data.Add(Field{Key: "nodeId", Kind: KindNodeID, Source: src, TypeName: "User"}))
	root := Field{Key: "user", Kind: KindObject, Source: src, Data: data}

	got, err := f.asm.Decode(root, []byte(`{"id": 7, "score": "9007199254740993", "nodeId": [7]}`))
	require.NoError(t, err)
	row := got.(map[string]any)
	assert.Equal(t, "User", row[TypeNameKey])
	assert.Equal(t, float64(7), row["id"])
	assert.Equal(t, "9007199254740993", row["score"])
	assert.Equal(t, nodeid.Encode("User", 7), row["nodeId"])

	missing, err := f.asm.Decode(root, []byte(`null`))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
