package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCasing(t *testing.T) {
	tests := []struct {
		input string
		upper string
		camel string
	}{
		{"users", "Users", "users"},
		{"user_profiles", "UserProfiles", "userProfiles"},
		{"api_v2_endpoints", "ApiV2Endpoints", "apiV2Endpoints"},
		{"all-users", "AllUsers", "allUsers"},
		{"UUID", "UUID", "uuid"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.upper, UpperCamelCase(tt.input))
			assert.Equal(t, tt.camel, CamelCase(tt.input))
		})
	}
}

func TestConstantCase(t *testing.T) {
	assert.Equal(t, "CREATED_AT_ASC", ConstantCase("created_at_asc"))
	assert.Equal(t, "IN_PROGRESS", ConstantCase("in progress"))
	assert.Equal(t, "A_B", ConstantCase("--a--b--"))
	assert.Equal(t, "_1ST", ConstantCase("1st"))
}

func TestTableNames(t *testing.T) {
	n := Default()

	assert.Equal(t, "User", n.TableType("users"))
	assert.Equal(t, "UserProfile", n.TableType("user_profiles"))
	assert.Equal(t, "user", n.TableField("users"))
	assert.Equal(t, "allUsers", n.AllRows("users"))
	assert.Equal(t, "allPeople", n.AllRows("person"))
	assert.Equal(t, "UsersConnection", n.Connection("User"))
	assert.Equal(t, "UsersEdge", n.Edge("User"))
	assert.Equal(t, "UsersOrderBy", n.OrderByType("User"))
	assert.Equal(t, "UserCondition", n.ConditionType("User"))
	assert.Equal(t, "UserInput", n.InputType("User"))
	assert.Equal(t, "UserPatch", n.PatchType("User"))
	assert.Equal(t, "userPatch", n.PatchField("users"))
	assert.Equal(t, "FIRST_NAME_DESC", n.OrderByColumnEnum("first_name", false))
}

func TestRelationAndMutationNames(t *testing.T) {
	n := Default()

	assert.Equal(t, "userByAuthorId", n.SingleRelationByKeys("users", []string{"author_id"}))
	assert.Equal(t, "postsByAuthorId", n.ManyRelationByKeys("posts", []string{"author_id"}))
	assert.Equal(t, "userByOrgIdAndEmail", n.RowByUniqueKeys("users", []string{"org_id", "email"}))
	assert.Equal(t, "createUser", n.CreateField("users"))
	assert.Equal(t, "CreateUserInput", n.CreateInputType("users"))
	assert.Equal(t, "CreateUserPayload", n.CreatePayloadType("users"))
	assert.Equal(t, "updateUser", n.UpdateNode("users"))
	assert.Equal(t, "updateUserByEmail", n.UpdateByKeys("users", []string{"email"}))
	assert.Equal(t, "UpdateUserByEmailInput", n.UpdateByKeysInputType("users", []string{"email"}))
	assert.Equal(t, "deleteUser", n.DeleteNode("users"))
	assert.Equal(t, "DeleteUserPayload", n.DeletePayloadType("users"))
	assert.Equal(t, "deletedUserId", n.DeletedNodeID("users"))
}

func TestFunctionNames(t *testing.T) {
	n := Default()

	assert.Equal(t, "fullName", n.ComputedColumn("users_full_name", "users"))
	assert.Equal(t, "searchPosts", n.Function("search_posts"))
	assert.Equal(t, "SearchPostsPayload", n.FunctionPayloadType("search_posts"))
	assert.Equal(t, "SearchPostsInput", n.FunctionInputType("search_posts"))
	assert.Equal(t, "RandomNumbersConnection", n.ScalarFunctionConnection("random_numbers"))
	assert.Equal(t, "arg1", n.Argument("", 1))
	assert.Equal(t, "userId", n.Argument("user_id", 0))
	assert.Equal(t, "integers", n.ResultField("Int", true))
	assert.Equal(t, "user", n.ResultField("User", false))
}

func TestTypeNames(t *testing.T) {
	n := Default()

	assert.Equal(t, "MoodKind", n.EnumType("mood_kind"))
	assert.Equal(t, "IN_PROGRESS", n.EnumValue("in progress"))
	assert.Equal(t, "_EMPTY_", n.EnumValue(""))
	assert.Equal(t, "IntRange", n.RangeType("Int"))
	assert.Equal(t, "IntRangeBound", n.RangeBoundType("Int"))
	assert.Equal(t, "PointInput", n.InputObject("Point"))
}

func TestReservedTypeNamesAreSuffixed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := New(DefaultConfig(), logger)

	assert.Equal(t, "Query_", n.TableType("query"))
	assert.Equal(t, "Node_", n.TableType("nodes"))
	assert.Contains(t, buf.String(), "reserved word")
	assert.Equal(t, "nodeId_", n.Column("node_id"))
}

func TestOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PluralOverrides["datum"] = "data"
	cfg.SingularOverrides["data"] = "datum"
	n := New(cfg, nil)

	assert.Equal(t, "data", n.Pluralize("datum"))
	assert.Equal(t, "sensor_data", n.Pluralize("sensor_datum"))
	assert.Equal(t, "SensorDatum", n.TableType("sensor_data"))
}

func TestCollisionResolver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := New(DefaultConfig(), logger)

	assert.Equal(t, "User", n.RegisterType("User", "table:app.users"))
	assert.Equal(t, "User", n.RegisterType("User", "table:app.users"))
	assert.Equal(t, "User2", n.RegisterType("User", "table:other.users"))
	assert.Contains(t, buf.String(), "naming collision detected")

	assert.Equal(t, "email", n.RegisterField("User", "email", "column:email"))
	assert.Equal(t, "email2", n.RegisterField("User", "email", "computed:users_email"))

	assert.Equal(t, "allUsers", n.RegisterRootField("Query", "allUsers", "a"))
	assert.Equal(t, "allUsers", n.RegisterRootField("Mutation", "allUsers", "b"))

	n.Reset()
	assert.Equal(t, "User", n.RegisterType("User", "table:other.users"))
}
