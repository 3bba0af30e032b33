// Package pgtypes maps Postgres types to GraphQL types and converts values and
// SQL fragments between the two worlds.
//
// A Registry is the build context for one schema build. Bindings are resolved
// lazily, memoised per (type id, modifier) key, and frozen once the schema is
// finalised. After Freeze the registry is read-only and safe for concurrent use.
package pgtypes

import (
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/naming"
)

// maxResolutionDepth bounds nested fallback resolution.
const maxResolutionDepth = 50

// Options toggles optional type behaviour.
type Options struct {
	// ExtendedTypes exposes json/jsonb structurally instead of as strings.
	ExtendedTypes bool
	// SkipHstore disables the KeyValueHash mapping even when hstore is installed.
	SkipHstore bool
	// CustomNetworkScalars maps cidr/macaddr/macaddr8 to dedicated scalars instead of String.
	CustomNetworkScalars bool
	// LegacyArrayInput derives array input types from the array output type
	// instead of from the element input type.
	LegacyArrayInput bool
	// StrictTweaks turns tweaking a raw array fragment into an error instead of a logged warning.
	StrictTweaks bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{ExtendedTypes: true}
}

// OutputGenerator produces the output type for a type id. set may be called
// before the type is fully built so self-referencing types resolve; the
// returned type must agree with any value passed to set. A nil return with a
// nil error declines.
type OutputGenerator func(set func(graphql.Output), mod catalog.Modifier) (graphql.Output, error)

// InputGenerator is the input counterpart of OutputGenerator.
type InputGenerator func(set func(graphql.Input), mod catalog.Modifier) (graphql.Input, error)

type bindingKey struct {
	typeID uint32
	mod    catalog.Modifier
}

// Registry is the Type Registry, Value Codec and Fragment Tweaker for one schema build.
type Registry struct {
	catalog *catalog.Catalog
	namer   *naming.Namer
	opts    Options
	logger  *slog.Logger

	outputs map[bindingKey]Binding
	inputs  map[bindingKey]InputBinding

	outputGenerators map[uint32]OutputGenerator
	inputGenerators  map[uint32]InputGenerator
	codecs           map[uint32]Codec
	tweaks           map[uint32]TweakFunc
	modifierTweaks   map[bindingKey]TweakFunc

	handlers []registeredHandler
	builtins *builtinTable

	types map[string]graphql.Type
	order []string

	depth  int
	frozen bool
}

// New creates a registry over cat with the built-in types, codecs, tweaks and category handlers installed.
func New(cat *catalog.Catalog, namer *naming.Namer, opts Options, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if namer == nil {
		namer = naming.Default()
	}
	r := &Registry{
		catalog:          cat,
		namer:            namer,
		opts:             opts,
		logger:           logger,
		outputs:          make(map[bindingKey]Binding),
		inputs:           make(map[bindingKey]InputBinding),
		outputGenerators: make(map[uint32]OutputGenerator),
		inputGenerators:  make(map[uint32]InputGenerator),
		codecs:           make(map[uint32]Codec),
		tweaks:           make(map[uint32]TweakFunc),
		modifierTweaks:   make(map[bindingKey]TweakFunc),
		types:            make(map[string]graphql.Type),
	}
	if err := r.installBuiltins(); err != nil {
		return nil, err
	}
	if err := r.installHandlers(); err != nil {
		return nil, err
	}
	return r, nil
}

// Catalog returns the catalog the registry resolves against.
func (r *Registry) Catalog() *catalog.Catalog { return r.catalog }

// Namer returns the naming strategy.
func (r *Registry) Namer() *naming.Namer { return r.namer }

// Options returns the registry options.
func (r *Registry) Options() Options { return r.opts }

// Freeze makes the registry immutable. Subsequent registrations and uncached lookups fail with ErrFrozen.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen }

// RegisterOutputGenerator registers gen for typeID.
func (r *Registry) RegisterOutputGenerator(typeID uint32, gen OutputGenerator, yieldToExisting bool) error {
	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.outputGenerators[typeID]; exists {
		if yieldToExisting {
			return nil
		}
		return fmt.Errorf("output type generator for type %d: %w", typeID, ErrDuplicateRegistration)
	}
	r.outputGenerators[typeID] = gen
	return nil
}

// RegisterInputGenerator registers gen for typeID.
func (r *Registry) RegisterInputGenerator(typeID uint32, gen InputGenerator, yieldToExisting bool) error {
	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.inputGenerators[typeID]; exists {
		if yieldToExisting {
			return nil
		}
		return fmt.Errorf("input type generator for type %d: %w", typeID, ErrDuplicateRegistration)
	}
	r.inputGenerators[typeID] = gen
	return nil
}

// NamedType strips list and non-null wrappers from t.
func NamedType(t graphql.Type) graphql.Type {
	for {
		switch w := t.(type) {
		case *graphql.NonNull:
			t = w.OfType
		case *graphql.List:
			t = w.OfType
		default:
			return t
		}
	}
}

// AddType records a named GraphQL type so it is included in the schema and
// so later lookups by name reuse it. Adding a different type under a taken name fails.
func (r *Registry) AddType(t graphql.Type) error {
	named := NamedType(t)
	if named == nil {
		return nil
	}
	name := named.Name()
	if existing, ok := r.types[name]; ok {
		if existing == named {
			return nil
		}
		return fmt.Errorf("type name %q: %w", name, ErrDuplicateRegistration)
	}
	r.types[name] = named
	r.order = append(r.order, name)
	return nil
}

// TypeByName returns a previously added named type.
func (r *Registry) TypeByName(name string) (graphql.Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns every added named type in insertion order.
func (r *Registry) Types() []graphql.Type {
	out := make([]graphql.Type, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// OutputBinding returns the memoised output binding for a key, if any.
func (r *Registry) OutputBinding(typeID uint32, mod catalog.Modifier) (Binding, bool) {
	b, ok := r.outputs[bindingKey{typeID, mod}]
	return b, ok
}

// InputBinding returns the memoised input binding for a key, if any.
func (r *Registry) InputBinding(typeID uint32, mod catalog.Modifier) (InputBinding, bool) {
	b, ok := r.inputs[bindingKey{typeID, mod}]
	return b, ok
}

func (r *Registry) lookupType(typeID uint32) (*catalog.Type, error) {
	t, ok := r.catalog.Type(typeID)
	if !ok {
		return nil, fmt.Errorf("type %d: %w", typeID, ErrUnknownType)
	}
	return t, nil
}

// ResolveOutputType returns the GraphQL output type for (typeID, mod). It runs,
// in order: the memoised binding, a registered generator, the default-modifier
// binding when mod is not NoModifier, and (when useFallback is set) the category
// fallback chain. Without a fallback the result may be nil.
func (r *Registry) ResolveOutputType(typeID uint32, mod catalog.Modifier, useFallback bool) (graphql.Output, error) {
	key := bindingKey{typeID, mod}
	if b, ok := r.outputs[key]; ok {
		return b.Type, nil
	}
	t, err := r.lookupType(typeID)
	if err != nil {
		return nil, err
	}
	if r.frozen {
		return nil, fmt.Errorf("output type for %s: %w", qualifiedName(t), ErrFrozen)
	}
	if gen, ok := r.outputGenerators[typeID]; ok {
		var set graphql.Output
		result, err := gen(func(o graphql.Output) {
			set = o
			r.outputs[key] = Direct(o)
		}, mod)
		if err != nil {
			return nil, fmt.Errorf("generating output type for %s: %w", qualifiedName(t), err)
		}
		if result != nil {
			if set != nil && set != result {
				return nil, fmt.Errorf("callback and return types differ when defining type for %s", qualifiedName(t))
			}
			r.outputs[key] = Direct(result)
		}
		if b, ok := r.outputs[key]; ok {
			return b.Type, nil
		}
	}
	if mod != catalog.NoModifier {
		fallback, err := r.ResolveOutputType(typeID, catalog.NoModifier, false)
		if err != nil {
			return nil, err
		}
		if fallback != nil {
			return fallback, nil
		}
	}
	if !useFallback {
		return nil, nil
	}
	b, err := r.enforce(t, mod)
	if err != nil {
		return nil, err
	}
	return b.Type, nil
}

// ResolveInputType returns the GraphQL input type for (typeID, mod), or nil
// when the type has no input representation.
func (r *Registry) ResolveInputType(typeID uint32, mod catalog.Modifier) (graphql.Input, error) {
	out, err := r.ResolveOutputType(typeID, mod, true)
	if err != nil {
		return nil, err
	}
	key := bindingKey{typeID, mod}
	if b, ok := r.inputs[key]; ok {
		return b.Type, nil
	}
	t, err := r.lookupType(typeID)
	if err != nil {
		return nil, err
	}
	if gen, ok := r.inputGenerators[typeID]; ok && !r.frozen {
		var set graphql.Input
		result, err := gen(func(in graphql.Input) {
			set = in
			r.inputs[key] = DirectInput(in)
		}, mod)
		if err != nil {
			return nil, fmt.Errorf("generating input type for %s: %w", qualifiedName(t), err)
		}
		if result != nil {
			if set != nil && set != result {
				return nil, fmt.Errorf("callback and return types differ when defining input type for %s", qualifiedName(t))
			}
			r.inputs[key] = DirectInput(result)
		}
	}
	if b, ok := r.inputs[key]; ok {
		return b.Type, nil
	}
	if own, ok := r.outputs[key]; ok && IsInputType(own.Type) {
		in := own.Type.(graphql.Input)
		if !r.frozen {
			r.inputs[key] = DirectInput(in)
		}
		return in, nil
	}
	if mod != catalog.NoModifier {
		return r.ResolveInputType(typeID, catalog.NoModifier)
	}
	if out != nil && IsInputType(out) {
		return out.(graphql.Input), nil
	}
	return nil, nil
}

// enforce runs the category fallback chain for t.
func (r *Registry) enforce(t *catalog.Type, mod catalog.Modifier) (Binding, error) {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > maxResolutionDepth {
		return Binding{}, fmt.Errorf("resolving %s: %w", qualifiedName(t), ErrTypeResolutionTooDeep)
	}

	b, err := r.reallyEnforce(t, mod)
	if err != nil {
		return Binding{}, fmt.Errorf("processing database type %s (type=%c): %w", qualifiedName(t), t.Kind, err)
	}
	return b, nil
}

func (r *Registry) reallyEnforce(t *catalog.Type, mod catalog.Modifier) (Binding, error) {
	key := bindingKey{t.ID, mod}
	var (
		chosen Handler
		out    Binding
	)
	for _, rh := range r.handlers {
		if !rh.handler.Accepts(r, t) {
			continue
		}
		b, err := rh.handler.ResolveOutput(r, t, mod)
		if err != nil {
			return Binding{}, err
		}
		if !b.IsZero() {
			chosen, out = rh.handler, b
			break
		}
	}
	if out.IsZero() {
		out = Direct(graphql.String)
	}
	if existing, ok := r.outputs[key]; ok {
		// a nested resolution already bound this key
		out = existing
	} else {
		r.outputs[key] = out
	}

	if _, ok := r.inputs[key]; !ok && chosen != nil {
		in, err := chosen.ResolveInput(r, t, mod, out)
		if err != nil {
			return Binding{}, err
		}
		if !in.IsZero() {
			r.inputs[key] = in
		}
	}
	if _, ok := r.inputs[key]; !ok && IsInputType(out.Type) {
		r.inputs[key] = DirectInput(out.Type.(graphql.Input))
	}
	if err := r.AddType(out.Type); err != nil {
		return Binding{}, err
	}
	if in, ok := r.inputs[key]; ok {
		if err := r.AddType(in.Type); err != nil {
			return Binding{}, err
		}
	}
	return out, nil
}

// materializeAlias builds (or reuses, by name) the renamed output type for an alias binding.
func (r *Registry) materializeAlias(name, description string, base graphql.Output) Binding {
	if existing, ok := r.types[name]; ok {
		if out, ok := existing.(graphql.Output); ok {
			return Binding{Kind: BindingAlias, Type: out, Name: name, Base: base}
		}
	}
	return Binding{Kind: BindingAlias, Type: aliasOutput(name, description, base), Name: name, Base: base}
}

func (r *Registry) materializeInputAlias(name, description string, base graphql.Input) InputBinding {
	if existing, ok := r.types[name]; ok {
		if in, ok := existing.(graphql.Input); ok {
			return InputBinding{Kind: BindingAlias, Type: in, Name: name, Base: base}
		}
	}
	return InputBinding{Kind: BindingAlias, Type: aliasInput(name, description, base), Name: name, Base: base}
}

// Scalar accessors for types other packages need to share with the registry.

// CursorType returns the Cursor scalar.
func (r *Registry) CursorType() *graphql.Scalar { return r.builtins.cursor }

// BigIntType returns the BigInt scalar.
func (r *Registry) BigIntType() *graphql.Scalar { return r.builtins.bigInt }

// JSONType returns the JSON scalar.
func (r *Registry) JSONType() *graphql.Scalar { return r.builtins.json }

func qualifiedName(t *catalog.Type) string {
	if t.NamespaceName == "" {
		return t.Name
	}
	return t.NamespaceName + "." + t.Name
}
