package pgtypes

import (
	"github.com/graphql-go/graphql"
)

// BindingKind tags a Binding.
type BindingKind uint8

const (
	// BindingDirect binds a GraphQL type as-is.
	BindingDirect BindingKind = iota
	// BindingAlias exposes a base type's behaviour under a new name.
	BindingAlias
)

// Binding is the output half of a type binding.
type Binding struct {
	Kind BindingKind
	// Type is the GraphQL type handed to the schema. For aliases it is the
	// materialised renamed type.
	Type graphql.Output
	// Name and Base are set for aliases.
	Name string
	Base graphql.Output
}

// InputBinding is the input half of a type binding.
type InputBinding struct {
	Kind BindingKind
	Type graphql.Input
	Name string
	Base graphql.Input
}

// Direct binds t without renaming.
func Direct(t graphql.Output) Binding {
	return Binding{Kind: BindingDirect, Type: t}
}

// DirectInput binds t without renaming.
func DirectInput(t graphql.Input) InputBinding {
	return InputBinding{Kind: BindingDirect, Type: t}
}

// IsZero reports whether the binding holds no type.
func (b Binding) IsZero() bool { return b.Type == nil }

// IsZero reports whether the binding holds no type.
func (b InputBinding) IsZero() bool { return b.Type == nil }

// IsInputType reports whether t may be used in input position.
func IsInputType(t graphql.Type) bool {
	switch v := t.(type) {
	case *graphql.Scalar, *graphql.Enum, *graphql.InputObject:
		return true
	case *graphql.List:
		return IsInputType(v.OfType)
	case *graphql.NonNull:
		return IsInputType(v.OfType)
	default:
		return false
	}
}

// aliasOutput materialises an output type named name that behaves like base.
// Unnamed wrappers cannot be renamed and are returned unchanged.
func aliasOutput(name, description string, base graphql.Output) graphql.Output {
	switch b := base.(type) {
	case *graphql.Scalar:
		return graphql.NewScalar(graphql.ScalarConfig{
			Name:         name,
			Description:  description,
			Serialize:    b.Serialize,
			ParseValue:   b.ParseValue,
			ParseLiteral: b.ParseLiteral,
		})
	case *graphql.Enum:
		return graphql.NewEnum(graphql.EnumConfig{
			Name:        name,
			Description: description,
			Values:      enumValueConfigs(b),
		})
	case *graphql.Object:
		return graphql.NewObject(graphql.ObjectConfig{
			Name:        name,
			Description: description,
			Interfaces:  b.Interfaces(),
			Fields: (graphql.FieldsThunk)(func() graphql.Fields {
				fields := graphql.Fields{}
				for fieldName, def := range b.Fields() {
					args := graphql.FieldConfigArgument{}
					for _, arg := range def.Args {
						args[arg.Name()] = &graphql.ArgumentConfig{
							Type:         arg.Type,
							DefaultValue: arg.DefaultValue,
							Description:  arg.Description(),
						}
					}
					fields[fieldName] = &graphql.Field{
						Type:              def.Type,
						Args:              args,
						Resolve:           def.Resolve,
						Description:       def.Description,
						DeprecationReason: def.DeprecationReason,
					}
				}
				return fields
			}),
		})
	default:
		return base
	}
}

// aliasInput materialises an input type named name that behaves like base.
func aliasInput(name, description string, base graphql.Input) graphql.Input {
	switch b := base.(type) {
	case *graphql.Scalar:
		return aliasOutput(name, description, b).(graphql.Input)
	case *graphql.Enum:
		return aliasOutput(name, description, b).(graphql.Input)
	case *graphql.InputObject:
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name:        name,
			Description: description,
			Fields: (graphql.InputObjectConfigFieldMapThunk)(func() graphql.InputObjectConfigFieldMap {
				fields := graphql.InputObjectConfigFieldMap{}
				for fieldName, def := range b.Fields() {
					fields[fieldName] = &graphql.InputObjectFieldConfig{
						Type:         def.Type,
						DefaultValue: def.DefaultValue,
						Description:  def.Description(),
					}
				}
				return fields
			}),
		})
	default:
		return base
	}
}

func enumValueConfigs(e *graphql.Enum) graphql.EnumValueConfigMap {
	values := graphql.EnumValueConfigMap{}
	for _, v := range e.Values() {
		values[v.Name] = &graphql.EnumValueConfig{
			Value:             v.Value,
			Description:       v.Description,
			DeprecationReason: v.DeprecationReason,
		}
	}
	return values
}
