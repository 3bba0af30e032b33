package pgtypes

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

// Tag names a category handler.
type Tag string

const (
	TagBuiltin Tag = "builtin"
	TagEnum    Tag = "enum"
	TagRange   Tag = "range"
	TagDomain  Tag = "domain"
	TagArray   Tag = "array"
	TagBoolean Tag = "boolean"
	TagNumeric Tag = "numeric"
	TagText    Tag = "text"
)

// Handler implements type resolution and value/fragment conversion for one
// category of Postgres type. ResolveOutput returning a zero Binding declines.
type Handler interface {
	Accepts(r *Registry, t *catalog.Type) bool
	ResolveOutput(r *Registry, t *catalog.Type, mod catalog.Modifier) (Binding, error)
	ResolveInput(r *Registry, t *catalog.Type, mod catalog.Modifier, out Binding) (InputBinding, error)
	Decode(r *Registry, value any, t *catalog.Type) (any, error)
	Encode(r *Registry, value any, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error)
	Tweak(r *Registry, frag pgsql.Fragment, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error)
}

type registeredHandler struct {
	tag     Tag
	handler Handler
}

// RegisterHandler installs h under tag. A tag holds at most one handler unless
// override is set. New tags are consulted before the final text fallback.
func (r *Registry) RegisterHandler(tag Tag, h Handler, override bool) error {
	if r.frozen {
		return ErrFrozen
	}
	for i, rh := range r.handlers {
		if rh.tag != tag {
			continue
		}
		if !override {
			return fmt.Errorf("handler %q: %w", tag, ErrDuplicateRegistration)
		}
		r.handlers[i].handler = h
		return nil
	}
	entry := registeredHandler{tag: tag, handler: h}
	if n := len(r.handlers); n > 0 && r.handlers[n-1].tag == TagText {
		r.handlers = append(r.handlers[:n-1], entry, r.handlers[n-1])
		return nil
	}
	r.handlers = append(r.handlers, entry)
	return nil
}

func (r *Registry) installHandlers() error {
	for _, rh := range []registeredHandler{
		{TagBuiltin, builtinHandler{}},
		{TagEnum, enumHandler{}},
		{TagRange, rangeHandler{}},
		{TagDomain, domainHandler{}},
		{TagArray, arrayHandler{}},
		{TagBoolean, booleanHandler{}},
		{TagNumeric, numericHandler{}},
		{TagText, textHandler{}},
	} {
		if err := r.RegisterHandler(rh.tag, rh.handler, false); err != nil {
			return err
		}
	}
	return nil
}

// handlerFor returns the first handler accepting t.
func (r *Registry) handlerFor(t *catalog.Type) Handler {
	for _, rh := range r.handlers {
		if rh.handler.Accepts(r, t) {
			return rh.handler
		}
	}
	return textHandler{}
}

// baseHandler supplies pass-through behaviour.
type baseHandler struct{}

func (baseHandler) ResolveInput(*Registry, *catalog.Type, catalog.Modifier, Binding) (InputBinding, error) {
	return InputBinding{}, nil
}

func (baseHandler) Decode(_ *Registry, value any, _ *catalog.Type) (any, error) {
	return value, nil
}

func (baseHandler) Encode(_ *Registry, value any, _ *catalog.Type, _ catalog.Modifier) (pgsql.Fragment, error) {
	return pgsql.Value(value), nil
}

func (baseHandler) Tweak(_ *Registry, frag pgsql.Fragment, _ *catalog.Type, _ catalog.Modifier) (pgsql.Fragment, error) {
	return frag, nil
}

type enumHandler struct{ baseHandler }

func (enumHandler) Accepts(_ *Registry, t *catalog.Type) bool {
	return t.Kind == catalog.KindEnum
}

func (enumHandler) ResolveOutput(r *Registry, t *catalog.Type, _ catalog.Modifier) (Binding, error) {
	if len(t.EnumVariants) == 0 {
		return Binding{}, nil
	}
	name := r.namer.RegisterType(r.namer.EnumType(t.Name), "enum:"+qualifiedName(t))
	if existing, ok := r.types[name].(*graphql.Enum); ok {
		return Direct(existing), nil
	}
	values := graphql.EnumValueConfigMap{}
	for _, variant := range t.EnumVariants {
		valueName := r.namer.EnumValue(variant)
		for i := 2; values[valueName] != nil; i++ {
			valueName = fmt.Sprintf("%s_%d", r.namer.EnumValue(variant), i)
		}
		values[valueName] = &graphql.EnumValueConfig{Value: variant}
	}
	enum := graphql.NewEnum(graphql.EnumConfig{
		Name:        name,
		Description: t.Description,
		Values:      values,
	})
	return Direct(enum), nil
}

type domainHandler struct{}

func (domainHandler) Accepts(_ *Registry, t *catalog.Type) bool {
	return t.IsDomain()
}

func (domainHandler) ResolveOutput(r *Registry, t *catalog.Type, mod catalog.Modifier) (Binding, error) {
	base, err := r.ResolveOutputType(t.DomainBaseTypeID, mod, true)
	if err != nil {
		return Binding{}, err
	}
	name := r.namer.RegisterType(r.namer.DomainType(t.Name), "domain:"+qualifiedName(t))
	return r.materializeAlias(name, t.Description, base), nil
}

// ResolveInput aliases the base input only when it differs from the base
// output; scalar domains reuse the aliased output type as input.
func (domainHandler) ResolveInput(r *Registry, t *catalog.Type, mod catalog.Modifier, out Binding) (InputBinding, error) {
	baseOut, err := r.ResolveOutputType(t.DomainBaseTypeID, mod, true)
	if err != nil {
		return InputBinding{}, err
	}
	baseIn, err := r.ResolveInputType(t.DomainBaseTypeID, mod)
	if err != nil {
		return InputBinding{}, err
	}
	if baseIn == nil || graphql.Type(baseIn) == graphql.Type(baseOut) {
		return InputBinding{}, nil
	}
	named := NamedType(out.Type)
	if named == nil {
		return DirectInput(baseIn), nil
	}
	return r.materializeInputAlias(r.namer.InputObject(named.Name()), t.Description, baseIn), nil
}

func (domainHandler) Decode(r *Registry, value any, t *catalog.Type) (any, error) {
	base, err := r.lookupType(t.DomainBaseTypeID)
	if err != nil {
		return nil, err
	}
	return r.Decode(value, base)
}

func (domainHandler) Encode(r *Registry, value any, t *catalog.Type, _ catalog.Modifier) (pgsql.Fragment, error) {
	base, err := r.lookupType(t.DomainBaseTypeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return r.Encode(value, base, t.DomainTypeModifier)
}

func (domainHandler) Tweak(r *Registry, frag pgsql.Fragment, t *catalog.Type, _ catalog.Modifier) (pgsql.Fragment, error) {
	base, err := r.lookupType(t.DomainBaseTypeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return r.Tweak(frag, base, t.DomainTypeModifier)
}

type arrayHandler struct{}

func (arrayHandler) Accepts(_ *Registry, t *catalog.Type) bool {
	return t.IsArray()
}

func (arrayHandler) ResolveOutput(r *Registry, t *catalog.Type, mod catalog.Modifier) (Binding, error) {
	elem, err := r.ResolveOutputType(t.ArrayItemTypeID, mod, true)
	if err != nil {
		return Binding{}, err
	}
	return Direct(graphql.NewList(elem)), nil
}

func (arrayHandler) ResolveInput(r *Registry, t *catalog.Type, mod catalog.Modifier, _ Binding) (InputBinding, error) {
	if r.opts.LegacyArrayInput {
		return InputBinding{}, nil
	}
	elem, err := r.ResolveInputType(t.ArrayItemTypeID, mod)
	if err != nil || elem == nil {
		return InputBinding{}, err
	}
	return DirectInput(graphql.NewList(elem)), nil
}

func (arrayHandler) Decode(r *Registry, value any, t *catalog.Type) (any, error) {
	items, ok := asSlice(value)
	if !ok {
		return nil, fmt.Errorf("expected array when converting PostgreSQL data into GraphQL; failing type: '%s': %w", qualifiedName(t), ErrTypeMismatch)
	}
	elemType, err := r.lookupType(t.ArrayItemTypeID)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		decoded, err := r.Decode(item, elemType)
		if err != nil {
			return nil, err
		}
		out[i] = decoded
	}
	return out, nil
}

func (arrayHandler) Encode(r *Registry, value any, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error) {
	items, ok := asSlice(value)
	if !ok {
		return pgsql.Fragment{}, fmt.Errorf("expected array when converting GraphQL data into PostgreSQL data; failing type: '%s': %w", qualifiedName(t), ErrTypeMismatch)
	}
	elemType, err := r.lookupType(t.ArrayItemTypeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	frags := make([]pgsql.Fragment, len(items))
	for i, item := range items {
		frag, err := r.Encode(item, elemType, mod)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		frags[i] = frag
	}
	return pgsql.Concat("array[", pgsql.Join(frags, ", "), "]::", typeIdent(elemType), "[]"), nil
}

func (arrayHandler) Tweak(r *Registry, frag pgsql.Fragment, t *catalog.Type, _ catalog.Modifier) (pgsql.Fragment, error) {
	err := fmt.Errorf("should not attempt to tweak an array, please process array before tweaking (type: %q)", qualifiedName(t))
	if r.opts.StrictTweaks {
		return pgsql.Fragment{}, err
	}
	r.logger.Error("array fragment tweaked directly", slog.String("error", err.Error()))
	return frag, nil
}

type booleanHandler struct{ baseHandler }

func (booleanHandler) Accepts(_ *Registry, t *catalog.Type) bool {
	return t.Category == catalog.CategoryBoolean
}

func (booleanHandler) ResolveOutput(*Registry, *catalog.Type, catalog.Modifier) (Binding, error) {
	return Direct(graphql.Boolean), nil
}

type numericHandler struct{ baseHandler }

func (numericHandler) Accepts(_ *Registry, t *catalog.Type) bool {
	return t.Category == catalog.CategoryNumeric
}

func (numericHandler) ResolveOutput(r *Registry, t *catalog.Type, _ catalog.Modifier) (Binding, error) {
	if err := r.RegisterTweak(t.ID, tweakToText, true); err != nil {
		return Binding{}, err
	}
	return Direct(r.builtins.bigFloat), nil
}

func (numericHandler) Tweak(_ *Registry, frag pgsql.Fragment, _ *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error) {
	return tweakToText(frag, mod), nil
}

type textHandler struct{ baseHandler }

func (textHandler) Accepts(*Registry, *catalog.Type) bool { return true }

func (textHandler) ResolveOutput(*Registry, *catalog.Type, catalog.Modifier) (Binding, error) {
	return Direct(graphql.String), nil
}

func typeIdent(t *catalog.Type) pgsql.Fragment {
	if t.NamespaceName == "" {
		return pgsql.Ident(t.Name)
	}
	return pgsql.Ident(t.NamespaceName, t.Name)
}

// asSlice accepts []any and any other slice kind except []byte.
func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
