package naming

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// Namer is the naming strategy injected into the schema build. Every method is
// a pure function of its inputs apart from the collision registry, which is
// reset per build.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// TableType names the object type of a table: "user_profiles" -> "UserProfile".
func (n *Namer) TableType(table string) string {
	return n.validateTypeAndSuffix(UpperCamelCase(n.Singularize(table)))
}

// TableField is the singular field name of a table: "user_profiles" -> "userProfile".
func (n *Namer) TableField(table string) string {
	return CamelCase(n.Singularize(table))
}

// AllRows names the root connection field: "users" -> "allUsers".
func (n *Namer) AllRows(table string) string {
	return CamelCase("all_" + n.Pluralize(table))
}

// Connection names the connection type for an object type: "User" -> "UsersConnection".
func (n *Namer) Connection(typeName string) string {
	return UpperCamelCase(n.Pluralize(typeName) + "_connection")
}

// Edge names the edge type for an object type: "User" -> "UsersEdge".
func (n *Namer) Edge(typeName string) string {
	return UpperCamelCase(n.Pluralize(typeName) + "_edge")
}

// OrderByType names the ordering enum: "User" -> "UsersOrderBy".
func (n *Namer) OrderByType(typeName string) string {
	return UpperCamelCase(n.Pluralize(typeName) + "_order_by")
}

// OrderByColumnEnum names an ordering value: ("created_at", true) -> "CREATED_AT_ASC".
func (n *Namer) OrderByColumnEnum(column string, ascending bool) string {
	if ascending {
		return ConstantCase(column + "_asc")
	}
	return ConstantCase(column + "_desc")
}

// ConditionType names the equality filter input: "User" -> "UserCondition".
func (n *Namer) ConditionType(typeName string) string {
	return UpperCamelCase(typeName + "_condition")
}

// InputType names the create input of an object type: "User" -> "UserInput".
func (n *Namer) InputType(typeName string) string {
	return UpperCamelCase(typeName + "_input")
}

// PatchType names the update input of an object type: "User" -> "UserPatch".
func (n *Namer) PatchType(typeName string) string {
	return UpperCamelCase(typeName + "_patch")
}

// PatchField names the patch argument inside an update input: "users" -> "userPatch".
func (n *Namer) PatchField(table string) string {
	return CamelCase(n.Singularize(table) + "_patch")
}

// Column names a column field: "first_name" -> "firstName".
func (n *Namer) Column(column string) string {
	return n.validateFieldAndSuffix(CamelCase(column))
}

// SingleRelationByKeys names a forward relation: ("users", ["author_id"]) -> "userByAuthorId".
func (n *Namer) SingleRelationByKeys(foreignTable string, keys []string) string {
	return CamelCase(n.Singularize(foreignTable) + "_by_" + strings.Join(keys, "_and_"))
}

// ManyRelationByKeys names a backward relation: ("posts", ["author_id"]) -> "postsByAuthorId".
func (n *Namer) ManyRelationByKeys(table string, keys []string) string {
	return CamelCase(n.Pluralize(n.Singularize(table)) + "_by_" + strings.Join(keys, "_and_"))
}

// RowByUniqueKeys names a unique lookup: ("users", ["id"]) -> "userById".
func (n *Namer) RowByUniqueKeys(table string, keys []string) string {
	return CamelCase(n.Singularize(table) + "_by_" + strings.Join(keys, "_and_"))
}

// CreateField names the create mutation: "users" -> "createUser".
func (n *Namer) CreateField(table string) string {
	return CamelCase("create_" + n.Singularize(table))
}

// CreateInputType names the create mutation input: "users" -> "CreateUserInput".
func (n *Namer) CreateInputType(table string) string {
	return UpperCamelCase("create_" + n.Singularize(table) + "_input")
}

// CreatePayloadType names the create mutation payload: "users" -> "CreateUserPayload".
func (n *Namer) CreatePayloadType(table string) string {
	return UpperCamelCase("create_" + n.Singularize(table) + "_payload")
}

// UpdateNode names the update-by-node-id mutation: "users" -> "updateUser".
func (n *Namer) UpdateNode(table string) string {
	return CamelCase("update_" + n.Singularize(table))
}

// UpdateByKeys names the update-by-unique-key mutation: ("users", ["email"]) -> "updateUserByEmail".
func (n *Namer) UpdateByKeys(table string, keys []string) string {
	return CamelCase("update_" + n.Singularize(table) + "_by_" + strings.Join(keys, "_and_"))
}

// UpdateNodeInputType: "users" -> "UpdateUserInput".
func (n *Namer) UpdateNodeInputType(table string) string {
	return UpperCamelCase("update_" + n.Singularize(table) + "_input")
}

// UpdateByKeysInputType: ("users", ["email"]) -> "UpdateUserByEmailInput".
func (n *Namer) UpdateByKeysInputType(table string, keys []string) string {
	return UpperCamelCase("update_" + n.Singularize(table) + "_by_" + strings.Join(keys, "_and_") + "_input")
}

// UpdatePayloadType: "users" -> "UpdateUserPayload".
func (n *Namer) UpdatePayloadType(table string) string {
	return UpperCamelCase("update_" + n.Singularize(table) + "_payload")
}

// DeleteNode names the delete-by-node-id mutation: "users" -> "deleteUser".
func (n *Namer) DeleteNode(table string) string {
	return CamelCase("delete_" + n.Singularize(table))
}

// DeleteByKeys: ("users", ["email"]) -> "deleteUserByEmail".
func (n *Namer) DeleteByKeys(table string, keys []string) string {
	return CamelCase("delete_" + n.Singularize(table) + "_by_" + strings.Join(keys, "_and_"))
}

// DeleteNodeInputType: "users" -> "DeleteUserInput".
func (n *Namer) DeleteNodeInputType(table string) string {
	return UpperCamelCase("delete_" + n.Singularize(table) + "_input")
}

// DeleteByKeysInputType: ("users", ["email"]) -> "DeleteUserByEmailInput".
func (n *Namer) DeleteByKeysInputType(table string, keys []string) string {
	return UpperCamelCase("delete_" + n.Singularize(table) + "_by_" + strings.Join(keys, "_and_") + "_input")
}

// DeletePayloadType: "users" -> "DeleteUserPayload".
func (n *Namer) DeletePayloadType(table string) string {
	return UpperCamelCase("delete_" + n.Singularize(table) + "_payload")
}

// DeletedNodeID names the payload field carrying a deleted row's node id: "users" -> "deletedUserId".
func (n *Namer) DeletedNodeID(table string) string {
	return CamelCase("deleted_" + n.Singularize(table) + "_id")
}

// Function names a root field backed by a function.
func (n *Namer) Function(proc string) string {
	return n.validateFieldAndSuffix(CamelCase(proc))
}

// FunctionPayloadType: "do_thing" -> "DoThingPayload".
func (n *Namer) FunctionPayloadType(proc string) string {
	return UpperCamelCase(proc + "_payload")
}

// FunctionInputType: "do_thing" -> "DoThingInput".
func (n *Namer) FunctionInputType(proc string) string {
	return UpperCamelCase(proc + "_input")
}

// ComputedColumn names a computed column after stripping the table prefix:
// ("users_full_name", "users") -> "fullName".
func (n *Namer) ComputedColumn(proc, table string) string {
	return n.validateFieldAndSuffix(CamelCase(strings.TrimPrefix(proc, table+"_")))
}

// ScalarFunctionConnection: "random_numbers" -> "RandomNumbersConnection".
func (n *Namer) ScalarFunctionConnection(proc string) string {
	return UpperCamelCase(proc + "_connection")
}

// ScalarFunctionEdge: "random_numbers" -> "RandomNumberEdge".
func (n *Namer) ScalarFunctionEdge(proc string) string {
	return UpperCamelCase(n.Singularize(proc) + "_edge")
}

// Argument names a function argument, falling back to its position.
func (n *Namer) Argument(name string, index int) string {
	if name == "" {
		return "arg" + strconv.Itoa(index)
	}
	return CamelCase(name)
}

// ResultField names the payload field of a mutation function from its GraphQL return type.
func (n *Namer) ResultField(typeName string, plural bool) string {
	var name string
	switch typeName {
	case "Int":
		name = "integer"
	case "Float":
		name = "float"
	case "Boolean":
		name = "boolean"
	case "String":
		name = "string"
	default:
		name = CamelCase(typeName)
	}
	if plural {
		return n.Pluralize(name)
	}
	return name
}

// EnumType names a Postgres enum: "mood_kind" -> "MoodKind".
func (n *Namer) EnumType(name string) string {
	return n.validateTypeAndSuffix(UpperCamelCase(name))
}

// EnumValue names an enum variant: "in progress" -> "IN_PROGRESS".
func (n *Namer) EnumValue(value string) string {
	if value == "" {
		return "_EMPTY_"
	}
	return ConstantCase(value)
}

// DomainType names a domain: "email_address" -> "EmailAddress".
func (n *Namer) DomainType(name string) string {
	return n.validateTypeAndSuffix(UpperCamelCase(name))
}

// CompositeType names a standalone composite type.
func (n *Namer) CompositeType(name string) string {
	return n.validateTypeAndSuffix(UpperCamelCase(name))
}

// RangeType names the object type for a range over typeName: "Int" -> "IntRange".
func (n *Namer) RangeType(typeName string) string {
	return UpperCamelCase(typeName + "_range")
}

// RangeBoundType: "Int" -> "IntRangeBound".
func (n *Namer) RangeBoundType(typeName string) string {
	return UpperCamelCase(typeName + "_range_bound")
}

// InputObject names the input counterpart of an object type: "Point" -> "PointInput".
func (n *Namer) InputObject(typeName string) string {
	return UpperCamelCase(typeName + "_input")
}

// RegisterType reserves a GraphQL type name, applying a numeric suffix on collision.
func (n *Namer) RegisterType(typeName, source string) string {
	return n.resolver.RegisterType(typeName, source)
}

// RegisterField reserves a field name on a type, applying a numeric suffix on collision.
func (n *Namer) RegisterField(typeName, fieldName, source string) string {
	return n.resolver.RegisterField(typeName, n.validateFieldAndSuffix(fieldName), source)
}

// RegisterRootField reserves a field on the Query or Mutation root.
func (n *Namer) RegisterRootField(root, fieldName, source string) string {
	return n.resolver.RegisterRoot(root, n.validateFieldAndSuffix(fieldName), source)
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// words splits on any non-alphanumeric rune and on lower-to-upper case boundaries.
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// UpperCamelCase converts "user_profiles" to "UserProfiles".
func UpperCamelCase(s string) string {
	var b strings.Builder
	for _, w := range words(s) {
		r := []rune(w)
		b.WriteString(strings.ToUpper(string(r[0])))
		b.WriteString(string(r[1:]))
	}
	return b.String()
}

// CamelCase converts "user_profiles" to "userProfiles".
func CamelCase(s string) string {
	upper := UpperCamelCase(s)
	if upper == "" {
		return ""
	}
	r := []rune(upper)
	i := 0
	for i < len(r) && unicode.IsUpper(r[i]) {
		// keep the last capital of an acronym followed by a lower-case letter
		if i > 0 && i+1 < len(r) && unicode.IsLower(r[i+1]) {
			break
		}
		r[i] = unicode.ToLower(r[i])
		i++
	}
	return string(r)
}

// ConstantCase converts "created_at asc" to "CREATED_AT_ASC". Names starting
// with a digit are prefixed with an underscore.
func ConstantCase(s string) string {
	var b strings.Builder
	prevUnderscore := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
			prevUnderscore = false
		case !prevUnderscore:
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
