package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/pgsql"
)

func TestNodeIDCondition(t *testing.T) {
	e := newEnv(t)
	keys := e.attrs[:1]

	pred, err := NodeIDCondition(e.cat, "User", keys, nodeid.Encode("User", 7))
	require.NoError(t, err)
	text, args, err := pgsql.Compile(pred(pgsql.Raw("u")))
	require.NoError(t, err)
	assert.Equal(t, `u."id" = $1::"pg_catalog"."int4"`, text)
	assert.Equal(t, []any{"7"}, args)

	_, err = NodeIDCondition(e.cat, "User", keys, nodeid.Encode("Post", 7))
	require.ErrorIs(t, err, ErrMismatchedType)

	_, err = NodeIDCondition(e.cat, "User", keys, nodeid.Encode("User", 7, 8))
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = NodeIDCondition(e.cat, "User", keys, "%%%")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestKeyCondition(t *testing.T) {
	e := newEnv(t)

	pred, err := KeyCondition(e.reg, e.attrs[:1], []any{3})
	require.NoError(t, err)
	text, args, err := pgsql.Compile(pred(pgsql.Fragment{}))
	require.NoError(t, err)
	assert.Equal(t, `"id" = $1`, text)
	assert.Equal(t, []any{3}, args)

	_, err = KeyCondition(e.reg, e.attrs[:1], []any{nil})
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = KeyCondition(e.reg, e.attrs[:1], []any{1, "a@example.com"})
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	pred, err = KeyCondition(e.reg, e.attrs[:1], []any{1})
	require.NoError(t, err)
	text, _, err = pgsql.Compile(pred(pgsql.Raw("t")))
	require.NoError(t, err)
	assert.Equal(t, `t."id" = $1`, text)
}

func TestStatements(t *testing.T) {
	e := newEnv(t)
	pred, err := KeyCondition(e.reg, e.attrs[:1], []any{1})
	require.NoError(t, err)
	where := pred(pgsql.Fragment{})

	text, args, err := pgsql.Compile(Delete(e.users, where))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "app"."users" WHERE "id" = $1`, text)
	assert.Equal(t, []any{1}, args)

	text, _, err = pgsql.Compile(Insert(e.users, nil))
	require.NoError(t, err)
	assert.Equal(t, `insert into "app"."users" default values`, text)

	_, err = Update(e.users, nil, where)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, CodeInvalidInput, merr.Code)

	set, err := Assignments(e.reg, e.attrs, map[string]any{"tags": []any{"a", "b"}, "name": "n"})
	require.NoError(t, err)
	require.Len(t, set, 2)
	assert.Equal(t, "name", set[0].Column.Name)
	text, args, err = pgsql.Compile(Insert(e.users, set))
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "app"."users" ("name","tags") VALUES ($1,array[$2, $3]::"pg_catalog"."text"[])`, text)
	assert.Equal(t, []any{"n", "a", "b"}, args)
}

func TestCallOmitsTrailingDefaults(t *testing.T) {
	e := newEnv(t)
	promote := e.cat.Procedures()[4]
	require.Equal(t, "promote_user", promote.Name)

	frag, err := Call(e.reg, promote, []any{5, nil})
	require.NoError(t, err)
	text, args, err := pgsql.Compile(frag)
	require.NoError(t, err)
	assert.Equal(t, `"app"."promote_user"($1)`, text)
	assert.Equal(t, []any{5}, args)

	frag, err = Call(e.reg, promote, []any{5, 20})
	require.NoError(t, err)
	text, _, err = pgsql.Compile(frag)
	require.NoError(t, err)
	assert.Equal(t, `"app"."promote_user"($1, $2)`, text)

	frag, err = Call(e.reg, promote, []any{nil, 20})
	require.NoError(t, err)
	text, _, err = pgsql.Compile(frag)
	require.NoError(t, err)
	assert.Equal(t, `"app"."promote_user"(null, $1)`, text)
}

func TestEncodeArgsAfterRowArgument(t *testing.T) {
	e := newEnv(t)
	promote := e.cat.Procedures()[4]

	frags, err := EncodeArgs(e.reg, promote, 1, []any{nil})
	require.NoError(t, err)
	assert.Empty(t, frags)

	frags, err = EncodeArgs(e.reg, promote, 1, []any{3})
	require.NoError(t, err)
	require.Len(t, frags, 1)

	_, err = EncodeArgs(e.reg, promote, 1, []any{1, 2})
	require.Error(t, err)
}
