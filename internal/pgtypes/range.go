package pgtypes

import (
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

// rangeHandler exposes range types as {start, end} objects of inclusive-aware bounds.
type rangeHandler struct{}

func (rangeHandler) Accepts(_ *Registry, t *catalog.Type) bool {
	return t.IsRange()
}

// Bounds always use the subtype's default modifier; a range's own modifier
// says nothing about its bounds.
func (rangeHandler) ResolveOutput(r *Registry, t *catalog.Type, mod catalog.Modifier) (Binding, error) {
	sub, err := r.lookupType(t.RangeSubTypeID)
	if err != nil {
		return Binding{}, err
	}
	subOut, err := r.ResolveOutputType(sub.ID, catalog.NoModifier, true)
	if err != nil {
		return Binding{}, err
	}
	subIn, err := r.ResolveInputType(sub.ID, catalog.NoModifier)
	if err != nil {
		return Binding{}, err
	}
	named := NamedType(subOut)
	if named == nil {
		return Binding{}, nil
	}
	rangeName := r.namer.RangeType(named.Name())
	out, ok := r.types[rangeName].(*graphql.Object)
	if !ok {
		out, err = r.buildRangeTypes(rangeName, named.Name(), subOut, subIn)
		if err != nil {
			return Binding{}, err
		}
	}

	if err := r.RegisterModifierTweak(t.ID, mod, func(frag pgsql.Fragment, _ catalog.Modifier) pgsql.Fragment {
		tweaked, err := r.rangeTweak(frag, sub)
		if err != nil {
			r.logger.Warn("range tweak failed", slog.String("type", qualifiedName(t)), slog.String("error", err.Error()))
			return frag
		}
		return tweaked
	}, true); err != nil {
		return Binding{}, err
	}
	if err := r.RegisterCodec(t.ID, r.rangeCodec(t, sub), true); err != nil {
		return Binding{}, err
	}
	return Direct(out), nil
}

func (r *Registry) buildRangeTypes(rangeName, subName string, subOut graphql.Output, subIn graphql.Input) (*graphql.Object, error) {
	boundName := r.namer.RangeBoundType(subName)
	bound := graphql.NewObject(graphql.ObjectConfig{
		Name:        boundName,
		Description: "The value at one end of a range. A range can either include this value, or not.",
		Fields: graphql.Fields{
			"value":     &graphql.Field{Type: graphql.NewNonNull(subOut), Description: "The value at one end of our range."},
			"inclusive": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Description: "Whether or not the value of this bound is included in the range."},
		},
	})
	out := graphql.NewObject(graphql.ObjectConfig{
		Name:        rangeName,
		Description: fmt.Sprintf("A range of `%s`.", subName),
		Fields: graphql.Fields{
			"start": &graphql.Field{Type: bound, Description: "The starting bound of our range."},
			"end":   &graphql.Field{Type: bound, Description: "The ending bound of our range."},
		},
	})
	for _, t := range []graphql.Type{bound, out} {
		if err := r.AddType(t); err != nil {
			return nil, err
		}
	}
	if subIn == nil {
		return out, nil
	}
	boundInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        r.namer.InputObject(boundName),
		Description: "The value at one end of a range. A range can either include this value, or not.",
		Fields: graphql.InputObjectConfigFieldMap{
			"value":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(subIn), Description: "The value at one end of our range."},
			"inclusive": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Boolean), Description: "Whether or not the value of this bound is included in the range."},
		},
	})
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        r.namer.InputObject(rangeName),
		Description: fmt.Sprintf("A range of `%s`.", subName),
		Fields: graphql.InputObjectConfigFieldMap{
			"start": &graphql.InputObjectFieldConfig{Type: boundInput, Description: "The starting bound of our range."},
			"end":   &graphql.InputObjectFieldConfig{Type: boundInput, Description: "The ending bound of our range."},
		},
	})
	for _, t := range []graphql.Type{boundInput, in} {
		if err := r.AddType(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (rangeHandler) ResolveInput(r *Registry, _ *catalog.Type, _ catalog.Modifier, out Binding) (InputBinding, error) {
	named := NamedType(out.Type)
	if named == nil {
		return InputBinding{}, nil
	}
	if in, ok := r.types[r.namer.InputObject(named.Name())].(*graphql.InputObject); ok {
		return DirectInput(in), nil
	}
	return InputBinding{}, nil
}

func (rangeHandler) Decode(r *Registry, value any, t *catalog.Type) (any, error) {
	sub, err := r.lookupType(t.RangeSubTypeID)
	if err != nil {
		return nil, err
	}
	return r.rangeCodec(t, sub).Map(value)
}

func (rangeHandler) Encode(r *Registry, value any, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error) {
	sub, err := r.lookupType(t.RangeSubTypeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return r.rangeCodec(t, sub).Unmap(value, mod)
}

func (rangeHandler) Tweak(r *Registry, frag pgsql.Fragment, t *catalog.Type, _ catalog.Modifier) (pgsql.Fragment, error) {
	sub, err := r.lookupType(t.RangeSubTypeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return r.rangeTweak(frag, sub)
}

// rangeTweak selects a range as a json object of bounds, tweaking each bound as the subtype.
func (r *Registry) rangeTweak(frag pgsql.Fragment, sub *catalog.Type) (pgsql.Fragment, error) {
	bound := func(fn, incFn string) (pgsql.Fragment, error) {
		value := pgsql.Concat(fn, "(", frag, ")")
		tweaked, err := r.TweakValue(value, sub, catalog.NoModifier)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		return pgsql.Concat(
			"case when ", value, " is null then null else json_build_object('value', ", tweaked,
			", 'inclusive', ", incFn, "(", frag, ")) end",
		), nil
	}
	start, err := bound("lower", "lower_inc")
	if err != nil {
		return pgsql.Fragment{}, err
	}
	end, err := bound("upper", "upper_inc")
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return pgsql.Concat(
		"case when (", frag, ") is null then null else json_build_object('start', ", start, ", 'end', ", end, ") end",
	), nil
}

func (r *Registry) rangeCodec(t, sub *catalog.Type) Codec {
	return Codec{
		Map: func(value any) (any, error) {
			obj, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("range %s: unexpected %T: %w", qualifiedName(t), value, ErrTypeMismatch)
			}
			out := map[string]any{"start": nil, "end": nil}
			for _, key := range []string{"start", "end"} {
				b, ok := obj[key].(map[string]any)
				if !ok {
					continue
				}
				decoded, err := r.Decode(b["value"], sub)
				if err != nil {
					return nil, err
				}
				out[key] = map[string]any{"value": decoded, "inclusive": b["inclusive"] == true}
			}
			return out, nil
		},
		Unmap: func(value any, _ catalog.Modifier) (pgsql.Fragment, error) {
			obj, ok := value.(map[string]any)
			if !ok {
				return pgsql.Fragment{}, fmt.Errorf("range %s: expected object, got %T: %w", qualifiedName(t), value, ErrTypeMismatch)
			}
			bound := func(key string) (pgsql.Fragment, bool, error) {
				b, ok := obj[key].(map[string]any)
				if !ok {
					return pgsql.Null, false, nil
				}
				frag, err := r.Encode(b["value"], sub, catalog.NoModifier)
				return frag, true, err
			}
			lower, hasLower, err := bound("start")
			if err != nil {
				return pgsql.Fragment{}, err
			}
			upper, hasUpper, err := bound("end")
			if err != nil {
				return pgsql.Fragment{}, err
			}
			brackets := "["
			if hasLower && !isInclusive(obj["start"]) {
				brackets = "("
			}
			if hasUpper && !isInclusive(obj["end"]) {
				brackets += ")"
			} else {
				brackets += "]"
			}
			return pgsql.Concat(typeIdent(t), "(", lower, ", ", upper, ", ", pgsql.Literal(brackets), ")"), nil
		},
	}
}

func isInclusive(bound any) bool {
	b, _ := bound.(map[string]any)
	return b["inclusive"] == true
}
