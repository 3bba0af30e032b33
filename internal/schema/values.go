package schema

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// valueFromAST coerces a literal argument value to the internal value of t.
// Variables are looked up in vars, which graphql-go has already coerced.
// A nil result with a nil error means the argument is null.
func valueFromAST(value ast.Value, t graphql.Input, vars map[string]interface{}) (any, error) {
	if value == nil {
		return nil, nil
	}
	if v, ok := value.(*ast.Variable); ok {
		if v.Name == nil {
			return nil, nil
		}
		return vars[v.Name.Value], nil
	}
	switch t := t.(type) {
	case *graphql.NonNull:
		inner, ok := t.OfType.(graphql.Input)
		if !ok {
			return nil, fmt.Errorf("%s is not an input type", t)
		}
		out, err := valueFromAST(value, inner, vars)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, fmt.Errorf("expected non-null %s", t)
		}
		return out, nil
	case *graphql.List:
		inner, ok := t.OfType.(graphql.Input)
		if !ok {
			return nil, fmt.Errorf("%s is not an input type", t)
		}
		list, ok := value.(*ast.ListValue)
		if !ok {
			item, err := valueFromAST(value, inner, vars)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(list.Values))
		for i, item := range list.Values {
			v, err := valueFromAST(item, inner, vars)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *graphql.InputObject:
		obj, ok := value.(*ast.ObjectValue)
		if !ok {
			return nil, fmt.Errorf("expected %s object", t.Name())
		}
		defs := t.Fields()
		provided := make(map[string]ast.Value, len(obj.Fields))
		for _, f := range obj.Fields {
			if f == nil || f.Name == nil {
				continue
			}
			if _, ok := defs[f.Name.Value]; !ok {
				return nil, fmt.Errorf("unknown field %q on %s", f.Name.Value, t.Name())
			}
			provided[f.Name.Value] = f.Value
		}
		out := make(map[string]any, len(defs))
		for name, def := range defs {
			v, err := valueFromAST(provided[name], def.Type, vars)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.Name(), name, err)
			}
			if v == nil {
				v = def.DefaultValue
			}
			if v == nil {
				if _, required := def.Type.(*graphql.NonNull); required {
					return nil, fmt.Errorf("%s.%s is required", t.Name(), name)
				}
				continue
			}
			out[name] = v
		}
		return out, nil
	case *graphql.Scalar:
		out := t.ParseLiteral(value)
		if out == nil {
			return nil, fmt.Errorf("invalid %s literal", t.Name())
		}
		return out, nil
	case *graphql.Enum:
		out := t.ParseLiteral(value)
		if out == nil {
			return nil, fmt.Errorf("invalid %s value", t.Name())
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported input type %v", t)
	}
}

// argumentValues coerces the arguments of field against defs, applying defaults.
func argumentValues(defs graphql.FieldConfigArgument, field *ast.Field, vars map[string]interface{}) (map[string]any, error) {
	provided := make(map[string]ast.Value, len(field.Arguments))
	for _, arg := range field.Arguments {
		if arg == nil || arg.Name == nil {
			continue
		}
		provided[arg.Name.Value] = arg.Value
	}
	out := make(map[string]any, len(defs))
	for name, def := range defs {
		v, err := valueFromAST(provided[name], def.Type, vars)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		if v == nil {
			v = def.DefaultValue
		}
		if v == nil {
			if _, required := def.Type.(*graphql.NonNull); required {
				return nil, fmt.Errorf("argument %q of type %s is required", name, def.Type)
			}
			continue
		}
		out[name] = v
	}
	return out, nil
}
