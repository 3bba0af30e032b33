//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pg-graphql/internal/config"
	"pg-graphql/internal/gqlrequest"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/testutil/pgcontainer"
)

const fixtureSQL = `
create schema app;
create table app.users (
  id serial primary key,
  name text not null,
  email text unique,
  score bigint
);
create table app.posts (
  id serial primary key,
  author_id int not null references app.users,
  title text not null,
  body text
);
create extension hstore;
create table app.samples (
  id serial primary key,
  span interval,
  during int4range,
  location point,
  attrs hstore,
  counts int[],
  big_counts bigint[],
  amount numeric,
  price money,
  doc jsonb
);
create function app.users_display_name(u app.users) returns text stable language sql
  as $$ select u.name || '!' $$;
create function app.search_users(term text) returns setof app.users stable language sql
  as $$ select * from app.users where name ilike '%' || term || '%' $$;
create function app.current_tenant() returns text stable language sql
  as $$ select current_setting('app.tenant', true) $$;
create function app.bump_scores(delta int) returns bigint volatile language sql
  as $$ with u as (update app.users set score = coalesce(score, 0) + delta returning 1) select count(*) from u $$;
insert into app.users (name, email, score) values ('Ada', 'ada@example.com', 10), ('Grace', 'grace@example.com', 20);
insert into app.posts (author_id, title, body) values (1, 'Notes', null), (1, 'Engines', 'draft'), (2, 'Compilers', null);
`

func startApp(t *testing.T) (*App, *pgcontainer.Container) {
	t.Helper()
	ctx := context.Background()
	pg := pgcontainer.Start(ctx, t, fixtureSQL)

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			ConnectionString: pg.DSN,
			Schemas:          []string{"app"},
			ConnectTimeout:   10 * time.Second,
			Pool:             config.PoolConfig{MaxOpen: 4, MaxIdle: 2},
			Settings:         []string{"app.tenant=acme"},
		},
		Types:   config.TypesConfig{ExtendedTypes: true},
		GraphQL: config.GraphQLConfig{DefaultPageSize: 100, MaxPageSize: 1000, MaxDepth: 10},
	}
	a, err := New(cfg, logging.NewLogger(logging.Config{Output: &bytes.Buffer{}}), nil)
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, pg
}

func execJSON(t *testing.T, a *App, query string) (string, []string) {
	t.Helper()
	return execVars(t, a, query, "")
}

func execVars(t *testing.T, a *App, query, variables string) (string, []string) {
	t.Helper()
	res, err := a.Execute(context.Background(), gqlrequest.NewEnvelope(query, "", []byte(variables)))
	require.NoError(t, err)
	data, err := json.Marshal(res.Data)
	require.NoError(t, err)
	var msgs []string
	for _, e := range res.Errors {
		msgs = append(msgs, e.Message)
	}
	return string(data), msgs
}

func TestIntegrationQueries(t *testing.T) {
	a, _ := startApp(t)

	t.Run("connection with computed column", func(t *testing.T) {
		data, errs := execJSON(t, a, `{ allUsers(orderBy: [NAME_DESC]) { totalCount nodes { name displayName } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"allUsers": {"totalCount": 2, "nodes": [
			{"name": "Grace", "displayName": "Grace!"},
			{"name": "Ada", "displayName": "Ada!"}]}}`, data)
	})

	t.Run("relations", func(t *testing.T) {
		data, errs := execJSON(t, a, `{ userById(id: 1) { name postsByAuthorId(orderBy: [TITLE_ASC]) { nodes { title userByAuthorId { email } } } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"userById": {"name": "Ada", "postsByAuthorId": {"nodes": [
			{"title": "Engines", "userByAuthorId": {"email": "ada@example.com"}},
			{"title": "Notes", "userByAuthorId": {"email": "ada@example.com"}}]}}}`, data)
	})

	t.Run("pagination", func(t *testing.T) {
		data, errs := execJSON(t, a, `{ allPosts(first: 1, orderBy: [PRIMARY_KEY_ASC]) { pageInfo { hasNextPage hasPreviousPage } nodes { title } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"allPosts": {"pageInfo": {"hasNextPage": true, "hasPreviousPage": false}, "nodes": [{"title": "Notes"}]}}`, data)
	})

	t.Run("cursor pagination over null order values", func(t *testing.T) {
		const q = `query Page($after: Cursor) {
			allPosts(first: 1, after: $after, orderBy: [BODY_ASC]) { pageInfo { hasNextPage endCursor } nodes { title } }
		}`
		type page struct {
			AllPosts struct {
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []struct {
					Title string `json:"title"`
				} `json:"nodes"`
			} `json:"allPosts"`
		}
		var titles, cursors []string
		vars := `{}`
		for i := 0; i < 5; i++ {
			data, errs := execVars(t, a, q, vars)
			require.Empty(t, errs)
			var p page
			require.NoError(t, json.Unmarshal([]byte(data), &p))
			require.Len(t, p.AllPosts.Nodes, 1)
			require.NotEmpty(t, p.AllPosts.PageInfo.EndCursor)
			titles = append(titles, p.AllPosts.Nodes[0].Title)
			cursors = append(cursors, p.AllPosts.PageInfo.EndCursor)
			if !p.AllPosts.PageInfo.HasNextPage {
				break
			}
			next, err := json.Marshal(map[string]string{"after": p.AllPosts.PageInfo.EndCursor})
			require.NoError(t, err)
			vars = string(next)
		}
		assert.Equal(t, []string{"Engines", "Notes", "Compilers"}, titles)

		before, err := json.Marshal(map[string]string{"before": cursors[2]})
		require.NoError(t, err)
		data, errs := execVars(t, a, `query Back($before: Cursor) {
			allPosts(last: 2, before: $before, orderBy: [BODY_ASC]) { nodes { title } }
		}`, string(before))
		require.Empty(t, errs)
		assert.JSONEq(t, `{"allPosts": {"nodes": [{"title": "Engines"}, {"title": "Notes"}]}}`, data)
	})

	t.Run("set returning procedure", func(t *testing.T) {
		data, errs := execJSON(t, a, `{ searchUsers(term: "gra") { nodes { name } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"searchUsers": {"nodes": [{"name": "Grace"}]}}`, data)
	})

	t.Run("transaction settings", func(t *testing.T) {
		data, errs := execJSON(t, a, `{ currentTenant }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"currentTenant": "acme"}`, data)
	})
}

func TestIntegrationMutations(t *testing.T) {
	a, pg := startApp(t)

	t.Run("create", func(t *testing.T) {
		data, errs := execJSON(t, a, `mutation { createUser(input: {clientMutationId: "c1", user: {name: "Linus", email: "linus@example.com"}}) { clientMutationId user { name score } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"createUser": {"clientMutationId": "c1", "user": {"name": "Linus", "score": null}}}`, data)
	})

	t.Run("failed field rolls back to its savepoint only", func(t *testing.T) {
		data, errs := execJSON(t, a, `mutation {
			ok: createUser(input: {user: {name: "Barbara", email: "barbara@example.com"}}) { user { name } }
			dup: createUser(input: {user: {name: "Imposter", email: "ada@example.com"}}) { user { name } }
		}`)
		require.Len(t, errs, 1)
		assert.JSONEq(t, `{"ok": {"user": {"name": "Barbara"}}, "dup": null}`, data)

		var names []string
		rows, err := pg.DB.Query(`select name from app.users order by id`)
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var n string
			require.NoError(t, rows.Scan(&n))
			names = append(names, n)
		}
		assert.Equal(t, []string{"Ada", "Grace", "Linus", "Barbara"}, names)
	})

	t.Run("update by key", func(t *testing.T) {
		data, errs := execJSON(t, a, `mutation { updateUserByEmail(input: {email: "grace@example.com", userPatch: {score: "99"}}) { user { name score } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"updateUserByEmail": {"user": {"name": "Grace", "score": "99"}}}`, data)
	})

	t.Run("volatile procedure", func(t *testing.T) {
		data, errs := execJSON(t, a, `mutation { bumpScores(input: {delta: 1}) { bigInt } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"bumpScores": {"bigInt": "4"}}`, data)
	})

	t.Run("delete", func(t *testing.T) {
		data, errs := execJSON(t, a, `mutation { deleteUserByEmail(input: {email: "barbara@example.com"}) { user { name } } }`)
		require.Empty(t, errs)
		assert.JSONEq(t, `{"deleteUserByEmail": {"user": {"name": "Barbara"}}}`, data)

		_, errs = execJSON(t, a, `mutation { deleteUserByEmail(input: {email: "barbara@example.com"}) { user { name } } }`)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "No values were deleted in collection 'users'")
	})
}

const sampleSelection = `
	span { seconds minutes hours days months years }
	during { start { value inclusive } end { value inclusive } }
	location { x y }
	attrs counts bigCounts amount price doc`

// Every value written through createSample must read back unchanged, except
// money, which passes through a float.
func TestIntegrationCodecRoundTrip(t *testing.T) {
	a, _ := startApp(t)

	const want = `{
		"span": {"seconds": 6.5, "minutes": 5, "hours": 4, "days": 3, "months": 2, "years": 1},
		"during": {"start": {"value": 1, "inclusive": true}, "end": {"value": 10, "inclusive": false}},
		"location": {"x": 1.5, "y": -2},
		"attrs": {"a": "1", "b": null, "c\"d": "e\\f"},
		"counts": [3, 1, 2],
		"bigCounts": ["9007199254740993", "1"],
		"amount": "12.345",
		"price": 12.5,
		"doc": {"k": [1, true]}
	}`
	input := `{"input": {"sample": ` + want + `}}`

	created, errs := execVars(t, a, `mutation Create($input: CreateSampleInput!) {
		createSample(input: $input) { sample {`+sampleSelection+` } }
	}`, input)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"createSample": {"sample": `+want+`}}`, created)

	read, errs := execJSON(t, a, `{ allSamples { nodes {`+sampleSelection+` } } }`)
	require.Empty(t, errs)
	assert.JSONEq(t, `{"allSamples": {"nodes": [`+want+`]}}`, read)
}
