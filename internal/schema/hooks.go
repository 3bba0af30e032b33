package schema

import (
	"github.com/graphql-go/graphql"

	"pg-graphql/internal/catalog"
)

// Scope describes the type a hook is being applied to.
type Scope struct {
	TypeName string
	// Class is the table or composite type behind the type, if any.
	Class *catalog.Class
	// Procedure is the function behind a function payload, if any.
	Procedure *catalog.Procedure

	IsRootQuery       bool
	IsRootMutation    bool
	IsTableType       bool
	IsMutationPayload bool
	IsOrderBy         bool
}

// ObjectFieldsHook may add, replace or remove fields of an object type before
// it is finalised. Fields a hook adds are resolved by their own Resolve
// functions; they never contribute to the generated SQL.
type ObjectFieldsHook func(b *Builder, scope Scope, fields graphql.Fields) (graphql.Fields, error)

// EnumValuesHook may add or remove values of an enum type before it is finalised.
type EnumValuesHook func(b *Builder, scope Scope, values graphql.EnumValueConfigMap) (graphql.EnumValueConfigMap, error)

// Hooks holds the extensions applied during one schema build, in registration order.
type Hooks struct {
	objectFields []ObjectFieldsHook
	enumValues   []EnumValuesHook
}

// OnObjectFields registers fn.
func (h *Hooks) OnObjectFields(fn ObjectFieldsHook) {
	h.objectFields = append(h.objectFields, fn)
}

// OnEnumValues registers fn.
func (h *Hooks) OnEnumValues(fn EnumValuesHook) {
	h.enumValues = append(h.enumValues, fn)
}

func (h *Hooks) applyObjectFields(b *Builder, scope Scope, fields graphql.Fields) (graphql.Fields, error) {
	if h == nil {
		return fields, nil
	}
	for _, fn := range h.objectFields {
		next, err := fn(b, scope, fields)
		if err != nil {
			return nil, err
		}
		if next != nil {
			fields = next
		}
	}
	return fields, nil
}

func (h *Hooks) applyEnumValues(b *Builder, scope Scope, values graphql.EnumValueConfigMap) (graphql.EnumValueConfigMap, error) {
	if h == nil {
		return values, nil
	}
	for _, fn := range h.enumValues {
		next, err := fn(b, scope, values)
		if err != nil {
			return nil, err
		}
		if next != nil {
			values = next
		}
	}
	return values, nil
}
