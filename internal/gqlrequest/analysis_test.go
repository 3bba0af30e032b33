package gqlrequest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEnvelope(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		operationName string
		wantType      string
		wantName      string
		wantFields    int
		wantDepth     int
		wantVars      int
	}{
		{
			name:       "anonymous query",
			query:      `{ allUsers { nodes { id name } } }`,
			wantType:   "query",
			wantName:   "<anonymous>",
			wantFields: 4,
			wantDepth:  3,
		},
		{
			name: "named query with variables",
			query: `query GetUser($id: Int!, $withPosts: Boolean) {
				userById(id: $id) { id name }
			}`,
			operationName: "GetUser",
			wantType:      "query",
			wantName:      "GetUser",
			wantFields:    3,
			wantDepth:     2,
			wantVars:      2,
		},
		{
			name: "mutation",
			query: `mutation CreateUser($name: String!) {
				createUser(input: {user: {name: $name}}) { user { id } }
			}`,
			operationName: "CreateUser",
			wantType:      "mutation",
			wantName:      "CreateUser",
			wantFields:    3,
			wantDepth:     3,
			wantVars:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AnalyzeEnvelope(NewEnvelope(tt.query, tt.operationName, nil))
			require.NoError(t, a.Err())
			assert.Equal(t, tt.wantType, a.OperationType)
			assert.Equal(t, tt.wantName, a.OperationName)
			assert.Equal(t, tt.wantFields, a.FieldCount)
			assert.Equal(t, tt.wantDepth, a.SelectionDepth)
			assert.Equal(t, tt.wantVars, a.VariableCount)
			assert.Equal(t, tt.wantType == "mutation", a.IsMutation())
			assert.NotEmpty(t, a.OperationHash)
		})
	}
}

func TestAnalyzeEnvelopeFailures(t *testing.T) {
	a := AnalyzeEnvelope(NewEnvelope(`query { allUsers { `, "", nil))
	assert.Error(t, a.ParseError)
	assert.Error(t, a.Err())

	a = AnalyzeEnvelope(NewEnvelope(`query A { userCount } query B { userCount }`, "", nil))
	assert.NoError(t, a.ParseError)
	assert.EqualError(t, a.SelectionError, "operationName is required when request has multiple operations")

	a = AnalyzeEnvelope(NewEnvelope(`query A { userCount }`, "C", nil))
	assert.EqualError(t, a.Err(), `unknown operation named "C"`)

	a = AnalyzeEnvelope(NewEnvelope("", "", nil))
	assert.NoError(t, a.Err())
	assert.Nil(t, a.Operation)
	assert.False(t, a.IsMutation())
}

func TestAnalyzeEnvelopeFragmentCycle(t *testing.T) {
	query := `
		fragment A on User { id ...B }
		fragment B on User { name ...A }
		query { userById(id: 1) { ...A } }
	`
	a := AnalyzeEnvelope(NewEnvelope(query, "", nil))
	require.NoError(t, a.Err())
	assert.Equal(t, 3, a.FieldCount)
}

func TestOperationHashIgnoresFormatting(t *testing.T) {
	a := AnalyzeEnvelope(NewEnvelope("query GetUsers {\n  allUsers { nodes { id name } }\n}", "GetUsers", nil))
	b := AnalyzeEnvelope(NewEnvelope("# listing\nquery GetUsers { allUsers { nodes { id, name } } }", "GetUsers", nil))
	require.NotEmpty(t, a.OperationHash)
	assert.Equal(t, a.OperationHash, b.OperationHash)
}

func TestOperationHashFollowsSelectedOperation(t *testing.T) {
	query := `query A { allUsers { totalCount } } query B { allPosts { totalCount } }`
	a := AnalyzeEnvelope(NewEnvelope(query, "A", nil))
	b := AnalyzeEnvelope(NewEnvelope(query, "B", nil))
	assert.NotEqual(t, a.OperationHash, b.OperationHash)
}

func TestDigestDisambiguatesTuples(t *testing.T) {
	assert.NotEqual(t, digest("ab", "c"), digest("a", "bc"))
}

func TestCanonicalOperationCarriesReachableFragments(t *testing.T) {
	a := AnalyzeEnvelope(NewEnvelope(`
		fragment Unused on User { email }
		fragment B on User { name ...A }
		query Q { allUsers { nodes { ...A } } }
		fragment A on User { id ...B }`, "", nil))
	require.NoError(t, a.Err())
	require.NoError(t, a.CanonicalizeErr)

	canonical := a.CanonicalOperation
	assert.Contains(t, canonical, "fragment A on User")
	assert.Contains(t, canonical, "fragment B on User")
	assert.NotContains(t, canonical, "Unused")
	assert.Less(t, strings.Index(canonical, "query Q"), strings.Index(canonical, "fragment A"))
	assert.Less(t, strings.Index(canonical, "fragment A"), strings.Index(canonical, "fragment B"))
}

func TestCanonicalOperationReportsMissingFragment(t *testing.T) {
	a := AnalyzeEnvelope(NewEnvelope(`{ allUsers { nodes { ...Missing } } }`, "", nil))
	require.NoError(t, a.Err())
	assert.ErrorContains(t, a.CanonicalizeErr, `fragment "Missing" not found`)
	assert.Empty(t, a.OperationHash)
}

func TestSchemaFingerprint(t *testing.T) {
	sdl := "type Query {\n  node(nodeId: ID!): Node\n}\n"
	assert.Len(t, SchemaFingerprint(sdl), 64)
	assert.Equal(t, SchemaFingerprint(sdl), SchemaFingerprint(sdl))
	assert.NotEqual(t, SchemaFingerprint(sdl), SchemaFingerprint(sdl+"scalar Cursor\n"))
	assert.NotEqual(t, SchemaFingerprint(sdl), digest(operationDigestDomain, anonymousOperationName, sdl))
}
