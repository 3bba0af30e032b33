package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/mutation"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/pgsql"
)

// rootPlan plans a root field. ok false resolves the field to null without
// running a statement.
type rootPlan func(pc *planContext, key string, p graphql.ResolveParams) (root assembler.Field, ok bool, err error)

// rootResolver plans the whole selection of a root field into one statement,
// runs it on the request transaction and decodes the result.
func (b *Builder) rootResolver(name string, plan rootPlan) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (out interface{}, err error) {
		ctx, span := startResolverSpan(p.Context, "graphql.resolve."+name, attribute.String("graphql.field.name", name))
		defer func() {
			finishResolverSpan(span, err, "")
			span.End()
		}()

		field := firstField(p.Info.FieldASTs)
		if field == nil {
			return nil, nil
		}
		if b.opts.Limits.enabled() {
			if err := b.opts.Limits.Check(EstimateCost(field, b.fallbackLimit())); err != nil {
				return nil, err
			}
		}
		root, ok, err := plan(newPlanContext(b, p.Info), responseKey(field), p)
		if err != nil || !ok {
			return nil, err
		}
		return b.execute(ctx, root)
	}
}

func (b *Builder) fallbackLimit() int {
	if b.opts.Assembler.DefaultLimit > 0 {
		return b.opts.Assembler.DefaultLimit
	}
	return 100
}

// execute runs the statement for root and decodes its single value.
func (b *Builder) execute(ctx context.Context, root assembler.Field) (any, error) {
	tx := TxFromContext(ctx)
	if tx == nil {
		return nil, ErrNoTransaction
	}
	stmt, err := b.asm.Assemble(root, pgsql.Fragment{})
	if err != nil {
		return nil, err
	}
	query, args, err := pgsql.Compile(stmt)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("executing query", slog.String("field", root.Key), slog.String("sql", query), slog.Int("args", len(args)))
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var data sql.NullString
	if rows.Next() {
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !data.Valid {
		return nil, nil
	}
	return b.asm.Decode(root, []byte(data.String))
}

func predicateCondition(pred mutation.Predicate) assembler.Condition {
	return func(alias, _ pgsql.Fragment) pgsql.Fragment { return pred(alias) }
}

// buildQuery adds the root query fields: node lookups, one connection and
// unique-key lookups per table, and stable functions.
func (b *Builder) buildQuery() error {
	b.queryFields = graphql.Fields{}
	b.addNodeField()
	for _, t := range b.tables {
		if !t.queryable {
			continue
		}
		b.addAllRows(t)
		if len(t.pk) > 0 {
			b.addRowByNodeID(t)
		}
		b.addUniqueLookups(t)
	}
	return b.addQueryProcedures()
}

// nodeLookup plans the row of t identified by id. Ids that are malformed or
// name another type resolve to null.
func (b *Builder) nodeLookup(pc *planContext, key string, t *tableInfo, id string, p graphql.ResolveParams) (assembler.Field, bool, error) {
	pred, err := mutation.NodeIDCondition(b.cat, t.typeName, t.pk, id)
	if err != nil {
		b.logger.Debug("node id does not identify a row", slog.String("type", t.typeName), slog.String("error", err.Error()))
		return assembler.Field{}, false, nil
	}
	data, err := pc.rowData(t.typeName, selectionSets(p.Info.FieldASTs))
	if err != nil {
		return assembler.Field{}, false, err
	}
	return assembler.Field{Key: key, Kind: assembler.KindObject, TypeName: t.typeName, Source: t.source(predicateCondition(pred)), Data: data}, true, nil
}

func (b *Builder) addNodeField() {
	name := b.namer.RegisterRootField("Query", "node", "node lookup")
	b.queryFields[name] = &graphql.Field{
		Type:        b.node,
		Description: "Fetches an object given its globally unique `ID`.",
		Args: graphql.FieldConfigArgument{
			nodeIDField: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID), Description: "The globally unique `ID`."},
		},
		Resolve: b.rootResolver(name, func(pc *planContext, key string, p graphql.ResolveParams) (assembler.Field, bool, error) {
			id, _ := p.Args[nodeIDField].(string)
			typeName, _, err := nodeid.Decode(id)
			if err != nil {
				return assembler.Field{}, false, nil
			}
			t := b.tableByType[typeName]
			if t == nil || len(t.pk) == 0 {
				return assembler.Field{}, false, nil
			}
			return b.nodeLookup(pc, key, t, id, p)
		}),
	}
}

func (b *Builder) addRowByNodeID(t *tableInfo) {
	name := b.namer.RegisterRootField("Query", b.namer.TableField(t.class.Name), "node lookup of "+t.class.Name)
	b.queryFields[name] = &graphql.Field{
		Type:        t.object,
		Description: fmt.Sprintf("Reads a single `%s` using its globally unique `ID`.", t.typeName),
		Args: graphql.FieldConfigArgument{
			nodeIDField: &graphql.ArgumentConfig{
				Type:        graphql.NewNonNull(graphql.ID),
				Description: fmt.Sprintf("The globally unique `ID` to be used in selecting a single `%s`.", t.typeName),
			},
		},
		Resolve: b.rootResolver(name, func(pc *planContext, key string, p graphql.ResolveParams) (assembler.Field, bool, error) {
			id, _ := p.Args[nodeIDField].(string)
			return b.nodeLookup(pc, key, t, id, p)
		}),
	}
}

func (b *Builder) addAllRows(t *tableInfo) {
	name := b.namer.RegisterRootField("Query", b.namer.AllRows(t.class.Name), "connection of "+t.class.Name)
	args := b.connectionArgs(t, true)
	b.queryFields[name] = &graphql.Field{
		Type:        t.conn.connection,
		Description: fmt.Sprintf("Reads and enables pagination through a set of `%s`.", t.typeName),
		Args:        args,
		Resolve: b.rootResolver(name, func(pc *planContext, key string, p graphql.ResolveParams) (assembler.Field, bool, error) {
			f, err := b.tableConnection(pc, key, t, t.source(), selectionSets(p.Info.FieldASTs), p.Args)
			return f, err == nil, err
		}),
	}
}

// addUniqueLookups adds a field per primary key and unique constraint whose
// columns are all visible and have input types.
func (b *Builder) addUniqueLookups(t *tableInfo) {
	for _, con := range b.cat.UniqueConstraints(t.class.ID) {
		keys, ok := b.cat.AttributesByNums(t.class.ID, con.KeyAttributeNums)
		if !ok || !b.opts.Filters.KeyAllowed(t.class, keys) {
			continue
		}
		args, argNames, ok := b.keyArgs(t, keys)
		if !ok {
			continue
		}
		name := b.namer.RegisterRootField("Query", b.namer.RowByUniqueKeys(t.class.Name, columnNames(keys)), "constraint "+con.Name)
		b.queryFields[name] = &graphql.Field{
			Type:        t.object,
			Description: fmt.Sprintf("Reads a single `%s` using its unique key.", t.typeName),
			Args:        args,
			Resolve: b.rootResolver(name, func(pc *planContext, key string, p graphql.ResolveParams) (assembler.Field, bool, error) {
				values := make([]any, len(argNames))
				for i, n := range argNames {
					values[i] = p.Args[n]
				}
				pred, err := mutation.KeyCondition(b.reg, keys, values)
				if err != nil {
					return assembler.Field{}, false, err
				}
				data, err := pc.rowData(t.typeName, selectionSets(p.Info.FieldASTs))
				if err != nil {
					return assembler.Field{}, false, err
				}
				return assembler.Field{Key: key, Kind: assembler.KindObject, TypeName: t.typeName, Source: t.source(predicateCondition(pred)), Data: data}, true, nil
			}),
		}
	}
}

// keyArgs builds one required argument per key column. ok is false when a
// column has no input type.
func (b *Builder) keyArgs(t *tableInfo, keys []*catalog.Attribute) (graphql.FieldConfigArgument, []string, bool) {
	args := graphql.FieldConfigArgument{}
	names := make([]string, len(keys))
	for i, attr := range keys {
		in, err := b.reg.ResolveInputType(attr.TypeID, attr.TypeModifier)
		if err != nil || in == nil {
			return nil, nil, false
		}
		names[i] = t.columnNames[attr.Num]
		args[names[i]] = &graphql.ArgumentConfig{Type: graphql.NewNonNull(in)}
	}
	return args, names, true
}
