package schema

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/mutation"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
)

// procReturn describes what a function returns: rows of an exposed class,
// a scalar, or nothing.
type procReturn struct {
	typ   *catalog.Type
	table *tableInfo
	out   graphql.Output
	void  bool
}

// typeName is the GraphQL name of one returned value.
func (r procReturn) typeName() string {
	if r.table != nil {
		return r.table.typeName
	}
	if r.out != nil {
		return pgtypes.NamedType(r.out).Name()
	}
	return ""
}

// procedureReturn classifies the return type of proc. ok is false when the
// function cannot be exposed.
func (b *Builder) procedureReturn(proc *catalog.Procedure) (procReturn, bool, error) {
	if proc.ReturnTypeID == catalog.VoidTypeID {
		return procReturn{void: true}, true, nil
	}
	typ, ok := b.cat.Type(proc.ReturnTypeID)
	if !ok {
		return procReturn{}, false, fmt.Errorf("function %s: %w", proc.Name, pgtypes.ErrUnknownType)
	}
	if typ.Kind == catalog.KindPseudo {
		b.logger.Warn("skipping function with pseudo return type", slog.String("function", proc.Name), slog.String("type", typ.Name))
		return procReturn{}, false, nil
	}
	if class, isRow := b.cat.ClassForType(typ.ID); isRow {
		t := b.tableByID[class.ID]
		if t == nil {
			b.logger.Debug("skipping function returning hidden rows", slog.String("function", proc.Name), slog.String("class", class.Name))
			return procReturn{}, false, nil
		}
		return procReturn{typ: typ, table: t}, true, nil
	}
	out, err := b.reg.ResolveOutputType(typ.ID, catalog.NoModifier, true)
	if err != nil {
		return procReturn{}, false, fmt.Errorf("function %s: %w", proc.Name, err)
	}
	if out == nil {
		return procReturn{}, false, fmt.Errorf("function %s: %w", proc.Name, assembler.ErrUnmappableReturnType)
	}
	return procReturn{typ: typ, out: out}, true, nil
}

// computedColumnOf returns the table proc is a computed column of: a non
// volatile function named <table>_<name> whose first argument is the table row.
func (b *Builder) computedColumnOf(proc *catalog.Procedure) (*tableInfo, bool) {
	if proc.Volatility == catalog.VolatilityVolatile || len(proc.ArgTypeIDs) == 0 {
		return nil, false
	}
	class, isRow := b.cat.ClassForType(proc.ArgTypeIDs[0])
	if !isRow {
		return nil, false
	}
	t := b.tableByID[class.ID]
	if t == nil || !t.queryable || !strings.HasPrefix(proc.Name, class.Name+"_") {
		return nil, false
	}
	return t, true
}

// procedureArgs builds the GraphQL arguments of proc from position offset on.
// ok is false when an argument type has no input type.
func (b *Builder) procedureArgs(proc *catalog.Procedure, offset int) (graphql.FieldConfigArgument, []string, bool, error) {
	args := graphql.FieldConfigArgument{}
	var names []string
	required := len(proc.ArgTypeIDs) - proc.ArgDefaultsNum
	for i := offset; i < len(proc.ArgTypeIDs); i++ {
		in, err := b.reg.ResolveInputType(proc.ArgTypeIDs[i], catalog.NoModifier)
		if err != nil {
			return nil, nil, false, fmt.Errorf("function %s argument %d: %w", proc.Name, i+1, err)
		}
		if in == nil {
			b.logger.Debug("skipping function with unsupported argument type", slog.String("function", proc.Name), slog.Int("argument", i+1))
			return nil, nil, false, nil
		}
		var argName string
		if i < len(proc.ArgNames) {
			argName = proc.ArgNames[i]
		}
		name := b.namer.Argument(argName, i+1)
		if proc.IsStrict && i < required {
			in = graphql.NewNonNull(in)
		}
		args[name] = &graphql.ArgumentConfig{Type: in}
		names = append(names, name)
	}
	return args, names, true, nil
}

func argValues(args map[string]any, names []string) []any {
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = args[n]
	}
	return values
}

// callFrom renders the function call as a row source. row, when set, is
// passed as the first argument.
func callFrom(proc *catalog.Procedure, rowArg bool, args []pgsql.Fragment) func(parent pgsql.Fragment) pgsql.Fragment {
	fn := pgsql.Ident(proc.NamespaceName, proc.Name)
	return func(parent pgsql.Fragment) pgsql.Fragment {
		all := args
		if rowArg {
			all = append([]pgsql.Fragment{parent}, args...)
		}
		return pgsql.Concat(fn, "(", pgsql.Join(all, ", "), ")")
	}
}

// functionField describes the GraphQL field and plan of a function read
// through the query assembler.
type functionField struct {
	field *graphql.Field
	plan  func(pc *planContext, key string, sets []*ast.SelectionSet, args map[string]any) (assembler.Field, error)
}

// functionField builds the field of a stable function. Computed columns pass
// the parent row as the first argument.
func (b *Builder) functionField(proc *catalog.Procedure, ret procReturn, computed bool) (*functionField, bool, error) {
	offset := 0
	if computed {
		offset = 1
	}
	args, argNames, ok, err := b.procedureArgs(proc, offset)
	if err != nil || !ok {
		return nil, false, err
	}
	source := func(values map[string]any) (*assembler.Source, error) {
		frags, err := mutation.EncodeArgs(b.reg, proc, offset, argValues(values, argNames))
		if err != nil {
			return nil, err
		}
		src := &assembler.Source{From: callFrom(proc, computed, frags)}
		if ret.table != nil {
			src.Class, src.TypeName, src.PrimaryKey, src.AddNullCase = ret.table.class, ret.table.typeName, ret.table.pk, true
		} else {
			src.Type, src.Mod = ret.typ, catalog.NoModifier
		}
		return src, nil
	}
	ff := &functionField{field: &graphql.Field{Description: proc.Description, Args: args, Resolve: resolveRowValue}}

	switch {
	case ret.table != nil && proc.ReturnsSet:
		t := ret.table
		if t.conn.connection == nil {
			t.conn = b.newConnectionTypes(
				b.namer.RegisterType(b.namer.Connection(t.typeName), "connection of "+t.typeName),
				b.namer.RegisterType(b.namer.Edge(t.typeName), "edge of "+t.typeName),
				t.object, t.typeName,
			)
		}
		for name, arg := range b.connectionArgs(t, false) {
			args[name] = arg
		}
		ff.field.Type = graphql.NewNonNull(t.conn.connection)
		ff.plan = func(pc *planContext, key string, sets []*ast.SelectionSet, values map[string]any) (assembler.Field, error) {
			src, err := source(values)
			if err != nil {
				return assembler.Field{}, err
			}
			return b.tableConnection(pc, key, t, src, sets, values)
		}
	case ret.table != nil:
		t := ret.table
		ff.field.Type = t.object
		ff.plan = func(pc *planContext, key string, sets []*ast.SelectionSet, values map[string]any) (assembler.Field, error) {
			src, err := source(values)
			if err != nil {
				return assembler.Field{}, err
			}
			data, err := pc.rowData(t.typeName, sets)
			if err != nil {
				return assembler.Field{}, err
			}
			return assembler.Field{Key: key, Kind: assembler.KindObject, TypeName: t.typeName, Source: src, Data: data}, nil
		}
	case proc.ReturnsSet:
		conn := b.newConnectionTypes(
			b.namer.RegisterType(b.namer.ScalarFunctionConnection(proc.Name), "function "+proc.Name),
			b.namer.RegisterType(b.namer.ScalarFunctionEdge(proc.Name), "function "+proc.Name),
			ret.out, "",
		)
		for name, arg := range b.paginationArgs() {
			args[name] = arg
		}
		ff.field.Type = graphql.NewNonNull(conn.connection)
		ff.plan = func(pc *planContext, key string, sets []*ast.SelectionSet, values map[string]any) (assembler.Field, error) {
			src, err := source(values)
			if err != nil {
				return assembler.Field{}, err
			}
			src.TypeName = conn.connection.Name()
			page, err := b.page(nil, values)
			if err != nil {
				return assembler.Field{}, err
			}
			_, page.TotalCount, err = pc.connectionData(conn, sets)
			if err != nil {
				return assembler.Field{}, err
			}
			return assembler.Field{Key: key, Kind: assembler.KindConnection, Source: src, Page: page}, nil
		}
	default:
		ff.field.Type = ret.out
		ff.plan = func(pc *planContext, key string, _ []*ast.SelectionSet, values map[string]any) (assembler.Field, error) {
			src, err := source(values)
			if err != nil {
				return assembler.Field{}, err
			}
			return assembler.Field{Key: key, Kind: assembler.KindComputed, Source: src}, nil
		}
	}
	return ff, true, nil
}

// addComputedColumns adds a field per computed column of t.
func (b *Builder) addComputedColumns(t *tableInfo, fields graphql.Fields) error {
	for _, proc := range b.cat.Procedures() {
		owner, ok := b.computedColumnOf(proc)
		if !ok || owner != t {
			continue
		}
		ret, ok, err := b.procedureReturn(proc)
		if err != nil {
			return err
		}
		if !ok || ret.void {
			continue
		}
		ff, ok, err := b.functionField(proc, ret, true)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		name := b.namer.RegisterField(t.typeName, b.namer.ComputedColumn(proc.Name, t.class.Name), "function "+proc.Name)
		fields[name] = ff.field
		plan := ff.plan
		b.addPlan(t.typeName, name, fieldPlan{
			args: ff.field.Args,
			plan: func(pc *planContext, key string, field *ast.Field, values map[string]any) (assembler.Field, error) {
				return plan(pc, key, []*ast.SelectionSet{field.SelectionSet}, values)
			},
		})
	}
	return nil
}

// addQueryProcedures exposes stable and immutable functions that are not
// computed columns as root query fields.
func (b *Builder) addQueryProcedures() error {
	for _, proc := range b.cat.Procedures() {
		if proc.Volatility == catalog.VolatilityVolatile {
			continue
		}
		if _, computed := b.computedColumnOf(proc); computed {
			continue
		}
		ret, ok, err := b.procedureReturn(proc)
		if err != nil {
			return err
		}
		if !ok || ret.void {
			continue
		}
		ff, ok, err := b.functionField(proc, ret, false)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		name := b.namer.RegisterRootField("Query", b.namer.Function(proc.Name), "function "+proc.Name)
		plan := ff.plan
		ff.field.Resolve = b.rootResolver(name, func(pc *planContext, key string, p graphql.ResolveParams) (assembler.Field, bool, error) {
			f, err := plan(pc, key, selectionSets(p.Info.FieldASTs), p.Args)
			return f, err == nil, err
		})
		b.queryFields[name] = ff.field
	}
	return nil
}
