// Package schema builds an executable GraphQL schema from a Postgres catalog.
//
// A Builder is the build context of one schema build. It owns the type
// registry, the query assembler and the mutation executor, creates an object
// type per exposed class, and wires root resolvers that plan the whole
// selection of a field into one SQL statement. Once Build returns, the
// registry is frozen and the Schema is safe for concurrent use.
package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/mutation"
	"pg-graphql/internal/naming"
	"pg-graphql/internal/pgtypes"
	"pg-graphql/internal/schemafilter"
)

// ErrNoTransaction is returned by resolvers run without WithTx.
var ErrNoTransaction = errors.New("no request transaction in context")

// Options configures a Builder.
type Options struct {
	Assembler assembler.Options
	Filters   schemafilter.Config
	// Hooks are applied after the built-in hooks.
	Hooks  *Hooks
	Limits Limits
	// DisableMutations omits the Mutation root.
	DisableMutations bool
	// OnMutationTransition observes the mutation state machine.
	OnMutationTransition func(field string, from, to mutation.State)
	Logger               *slog.Logger
}

// Schema is the result of a build. Registry, Assembler and Mutations are the
// build context the resolvers share.
type Schema struct {
	GraphQL   graphql.Schema
	Registry  *pgtypes.Registry
	Assembler *assembler.Assembler
	Mutations *mutation.Executor
}

// Builder is the build context of one schema build.
type Builder struct {
	cat    *catalog.Catalog
	reg    *pgtypes.Registry
	namer  *naming.Namer
	asm    *assembler.Assembler
	mut    *mutation.Executor
	hooks  *Hooks
	opts   Options
	logger *slog.Logger

	tables      []*tableInfo
	tableByID   map[uint32]*tableInfo
	tableByType map[string]*tableInfo
	plans       map[string]map[string]fieldPlan

	node     *graphql.Interface
	pageInfo *graphql.Object
	query    *graphql.Object
	extra    []graphql.Type

	queryFields    graphql.Fields
	mutationFields graphql.Fields
	built          bool
}

// New creates a Builder over reg. The registry must not be frozen.
func New(reg *pgtypes.Registry, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	asm := assembler.New(reg, opts.Assembler)
	hooks := &Hooks{}
	hooks.OnObjectFields(queryFieldHook)
	hooks.OnEnumValues(orderByColumnsHook)
	if opts.Hooks != nil {
		hooks.objectFields = append(hooks.objectFields, opts.Hooks.objectFields...)
		hooks.enumValues = append(hooks.enumValues, opts.Hooks.enumValues...)
	}
	return &Builder{
		cat:    reg.Catalog(),
		reg:    reg,
		namer:  reg.Namer(),
		asm:    asm,
		mut:    mutation.New(asm, mutation.Options{Logger: logger, OnTransition: opts.OnMutationTransition}),
		hooks:  hooks,
		opts:   opts,
		logger: logger,

		tableByID:   make(map[uint32]*tableInfo),
		tableByType: make(map[string]*tableInfo),
		plans:       make(map[string]map[string]fieldPlan),
	}
}

// Registry returns the type registry of the build.
func (b *Builder) Registry() *pgtypes.Registry { return b.reg }

// Namer returns the naming strategy of the build.
func (b *Builder) Namer() *naming.Namer { return b.namer }

// Catalog returns the catalog the build reads.
func (b *Builder) Catalog() *catalog.Catalog { return b.cat }

// QueryType returns the Query root, for hooks that link back to it.
func (b *Builder) QueryType() *graphql.Object { return b.query }

// Build constructs the schema. Any error aborts the build; no partial schema is returned.
func (b *Builder) Build() (*Schema, error) {
	if b.built {
		return nil, errors.New("schema builder already used")
	}
	b.built = true

	b.node = b.nodeInterface()
	b.pageInfo = pageInfoType()
	b.query = graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: graphql.FieldsThunk(func() graphql.Fields { return b.queryFields }),
	})

	steps := []struct {
		name string
		fn   func() error
	}{
		{"registering classes", b.registerClasses},
		{"building connections", b.buildConnections},
		{"building table fields", b.buildTableFields},
		{"building root query", b.buildQuery},
		{"building mutations", b.buildMutations},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	if len(b.queryFields) == 0 {
		b.queryFields = graphql.Fields{}
	}
	fields, err := b.hooks.applyObjectFields(b, Scope{TypeName: "Query", IsRootQuery: true}, b.queryFields)
	if err != nil {
		return nil, err
	}
	b.queryFields = fields

	cfg := graphql.SchemaConfig{Query: b.query, Types: b.schemaTypes()}
	if len(b.mutationFields) > 0 {
		fields, err := b.hooks.applyObjectFields(b, Scope{TypeName: "Mutation", IsRootMutation: true}, b.mutationFields)
		if err != nil {
			return nil, err
		}
		cfg.Mutation = graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: fields})
	}
	gql, err := graphql.NewSchema(cfg)
	if err != nil {
		return nil, fmt.Errorf("assembling schema: %w", err)
	}
	b.reg.Freeze()
	return &Schema{GraphQL: gql, Registry: b.reg, Assembler: b.asm, Mutations: b.mut}, nil
}

func (b *Builder) schemaTypes() []graphql.Type {
	types := append([]graphql.Type{}, b.reg.Types()...)
	for _, t := range b.tables {
		types = append(types, t.object)
	}
	return append(types, b.extra...)
}

// addPlan records how field name of typeName is planned.
func (b *Builder) addPlan(typeName, name string, p fieldPlan) {
	if b.plans[typeName] == nil {
		b.plans[typeName] = make(map[string]fieldPlan)
	}
	b.plans[typeName][name] = p
}

// typeApplies reports whether a fragment with the given type condition
// applies to objects of typeName.
func (b *Builder) typeApplies(cond *ast.Named, typeName string) bool {
	if cond == nil || cond.Name == nil {
		return true
	}
	name := cond.Name.Value
	if name == typeName {
		return true
	}
	if name == b.node.Name() {
		t, ok := b.tableByType[typeName]
		return ok && len(t.pk) > 0
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
