package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/mutation"
	"pg-graphql/internal/pgsql"
)

const (
	clientMutationIDField = "clientMutationId"
	inputArg              = "input"
	// deletedNodeIDKey carries the node id of a deleted row through the
	// payload statement; it never reaches the client under this key.
	deletedNodeIDKey = "__deletedNodeId"
)

// payload is the source value of every mutation payload object.
type payload struct {
	clientMutationID any
	result           any
	deletedID        any
}

// queryFieldHook adds `query` to the root query and to mutation payloads so
// clients can read fresh data in the same request.
func queryFieldHook(b *Builder, scope Scope, fields graphql.Fields) (graphql.Fields, error) {
	if !scope.IsRootQuery && !scope.IsMutationPayload {
		return fields, nil
	}
	if _, taken := fields["query"]; taken {
		return fields, nil
	}
	var typ graphql.Output = b.query
	if scope.IsRootQuery {
		typ = graphql.NewNonNull(b.query)
	}
	fields["query"] = &graphql.Field{
		Type:        typ,
		Description: "Exposes the root query type nested one level down.",
		Resolve: func(graphql.ResolveParams) (interface{}, error) {
			return struct{}{}, nil
		},
	}
	return fields, nil
}

func payloadSource(p graphql.ResolveParams) *payload {
	pl, _ := p.Source.(*payload)
	if pl == nil {
		return &payload{}
	}
	return pl
}

// payloadType builds a mutation payload carrying resultField of type result.
// A nil result omits the field, as for functions returning void.
func (b *Builder) payloadType(name string, scope Scope, resultField string, result graphql.Output, extra graphql.Fields) (*graphql.Object, error) {
	fields := graphql.Fields{
		clientMutationIDField: &graphql.Field{
			Type:        graphql.String,
			Description: "The exact same `clientMutationId` that was provided in the mutation input, unchanged and unused. May be used by a client to track mutations.",
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return payloadSource(p).clientMutationID, nil
			},
		},
	}
	if result != nil {
		fields[resultField] = &graphql.Field{
			Type: result,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return payloadSource(p).result, nil
			},
		}
	}
	for k, f := range extra {
		fields[k] = f
	}
	scope.TypeName = name
	scope.IsMutationPayload = true
	fields, err := b.hooks.applyObjectFields(b, scope, fields)
	if err != nil {
		return nil, err
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        name,
		Description: fmt.Sprintf("The output of our `%s` mutation.", name),
		Fields:      fields,
	})
	b.extra = append(b.extra, obj)
	return obj, nil
}

func (b *Builder) inputType(name string, fields graphql.InputObjectConfigFieldMap) *graphql.InputObject {
	fields[clientMutationIDField] = &graphql.InputObjectFieldConfig{
		Type:        graphql.String,
		Description: "An arbitrary string value with no semantic meaning. Will be included in the payload verbatim. May be used to track mutations by the client.",
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        name,
		Description: fmt.Sprintf("All input for the `%s` mutation.", name),
		Fields:      fields,
	})
	b.extra = append(b.extra, in)
	return in
}

// mutationRun executes one mutation field and returns the payload result.
type mutationRun func(ctx context.Context, pc *planContext, key string, input map[string]any, p graphql.ResolveParams) (*payload, error)

func (b *Builder) mutationResolver(name string, run mutationRun) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (out interface{}, err error) {
		ctx, span := startResolverSpan(p.Context, "graphql.mutate."+name, attribute.String("graphql.field.name", name))
		defer func() {
			finishResolverSpan(span, err, "")
			span.End()
		}()
		field := firstField(p.Info.FieldASTs)
		if field == nil {
			return nil, nil
		}
		if TxFromContext(ctx) == nil {
			return nil, ErrNoTransaction
		}
		input, _ := p.Args[inputArg].(map[string]any)
		pl, err := run(ctx, newPlanContext(b, p.Info), responseKey(field), input, p)
		if err != nil {
			b.logger.Debug("mutation failed", slog.String("field", name), slog.String("error", err.Error()))
			return nil, err
		}
		pl.clientMutationID = input[clientMutationIDField]
		return pl, nil
	}
}

func inputArgs(in *graphql.InputObject) graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		inputArg: &graphql.ArgumentConfig{
			Type:        graphql.NewNonNull(in),
			Description: "The exclusive input argument for this mutation. An object type, make sure to see documentation for this object's fields.",
		},
	}
}

// buildMutations adds table and function mutations to the Mutation root.
func (b *Builder) buildMutations() error {
	b.mutationFields = graphql.Fields{}
	if b.opts.DisableMutations {
		return nil
	}
	for _, t := range b.tables {
		if !t.queryable || !b.opts.Filters.MutationClassAllowed(t.class) {
			continue
		}
		if err := b.addCreate(t); err != nil {
			return fmt.Errorf("%s: %w", t.class.Name, err)
		}
		if err := b.addUpdates(t); err != nil {
			return fmt.Errorf("%s: %w", t.class.Name, err)
		}
		if err := b.addDeletes(t); err != nil {
			return fmt.Errorf("%s: %w", t.class.Name, err)
		}
	}
	return b.addMutationProcedures()
}

// rowSelection plans what the payload needs from the affected row.
func (b *Builder) rowSelection(pc *planContext, t *tableInfo, payloadName, rowField string, p graphql.ResolveParams) (*assembler.ResolveData, error) {
	data, err := pc.payloadData(payloadName, rowField, t.typeName, selectionSets(p.Info.FieldASTs))
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = &assembler.ResolveData{}
	}
	return data, nil
}

// executeRow runs a table statement and splits the hidden deleted id off the row.
func (b *Builder) executeRow(ctx context.Context, t *tableInfo, key, verb string, stmt pgsql.Fragment, data *assembler.ResolveData, requireRows bool) (*payload, error) {
	res, err := b.mut.Execute(ctx, TxFromContext(ctx), mutation.Mutation{
		Field:       key,
		Kind:        mutation.KindModify,
		Verb:        verb,
		Collection:  t.class.Name,
		Statement:   stmt,
		Class:       t.class,
		TypeName:    t.typeName,
		PrimaryKey:  t.pk,
		RequireRows: requireRows,
		Selection:   data,
	})
	if err != nil {
		return nil, err
	}
	pl := &payload{result: res.Value}
	if row, ok := res.Value.(map[string]any); ok {
		if id, ok := row[deletedNodeIDKey]; ok {
			pl.deletedID = id
			delete(row, deletedNodeIDKey)
		}
	}
	return pl, nil
}

func (b *Builder) addCreate(t *tableInfo) error {
	if !t.class.IsInsertable {
		return nil
	}
	rowInput, err := b.rowInput(t)
	if err != nil || rowInput == nil {
		return err
	}
	rowField := b.namer.TableField(t.class.Name)
	in := b.inputType(b.namer.RegisterType(b.namer.CreateInputType(t.class.Name), "create "+t.class.Name), graphql.InputObjectConfigFieldMap{
		rowField: &graphql.InputObjectFieldConfig{
			Type:        graphql.NewNonNull(rowInput),
			Description: fmt.Sprintf("The `%s` to be created by this mutation.", t.typeName),
		},
	})
	payloadName := b.namer.RegisterType(b.namer.CreatePayloadType(t.class.Name), "create "+t.class.Name)
	out, err := b.payloadType(payloadName, Scope{Class: t.class}, rowField, t.object, nil)
	if err != nil {
		return err
	}
	name := b.namer.RegisterRootField("Mutation", b.namer.CreateField(t.class.Name), "create "+t.class.Name)
	b.mutationFields[name] = &graphql.Field{
		Type:        out,
		Description: fmt.Sprintf("Creates a single `%s`.", t.typeName),
		Args:        inputArgs(in),
		Resolve: b.mutationResolver(name, func(ctx context.Context, pc *planContext, key string, input map[string]any, p graphql.ResolveParams) (*payload, error) {
			values, err := t.columnValues(input[rowField])
			if err != nil {
				return nil, mutation.InvalidInput(err)
			}
			set, err := mutation.Assignments(b.reg, t.attrs, values)
			if err != nil {
				return nil, err
			}
			data, err := b.rowSelection(pc, t, payloadName, rowField, p)
			if err != nil {
				return nil, err
			}
			return b.executeRow(ctx, t, key, "create", mutation.Insert(t.class, set), data, false)
		}),
	}
	return nil
}

// keyTarget identifies the rows of an update or delete: by node id, or by
// the columns of one unique constraint.
type keyTarget struct {
	fieldName func(table string, keys []string) string
	inputName func(table string, keys []string) string
	keys      []*catalog.Attribute
	byNodeID  bool
}

func (b *Builder) keyTargets(t *tableInfo, nodeField, nodeInput func(string) string, keyField, keyInput func(string, []string) string) []keyTarget {
	var targets []keyTarget
	if len(t.pk) > 0 {
		targets = append(targets, keyTarget{
			fieldName: func(table string, _ []string) string { return nodeField(table) },
			inputName: func(table string, _ []string) string { return nodeInput(table) },
			byNodeID:  true,
		})
	}
	for _, con := range b.cat.UniqueConstraints(t.class.ID) {
		keys, ok := b.cat.AttributesByNums(t.class.ID, con.KeyAttributeNums)
		if !ok || !b.opts.Filters.KeyAllowed(t.class, keys) {
			continue
		}
		targets = append(targets, keyTarget{fieldName: keyField, inputName: keyInput, keys: keys})
	}
	return targets
}

// targetInput adds the identifying fields of target to fields and returns a
// function deriving the WHERE predicate from an input value. ok is false when
// a key column has no input type.
func (b *Builder) targetInput(t *tableInfo, target keyTarget, verb string, fields graphql.InputObjectConfigFieldMap) (func(input map[string]any) (mutation.Predicate, error), bool) {
	if target.byNodeID {
		fields[nodeIDField] = &graphql.InputObjectFieldConfig{
			Type:        graphql.NewNonNull(graphql.ID),
			Description: fmt.Sprintf("The globally unique `ID` which will identify a single `%s` to be %sd.", t.typeName, verb),
		}
		return func(input map[string]any) (mutation.Predicate, error) {
			id, _ := input[nodeIDField].(string)
			pred, err := mutation.NodeIDCondition(b.cat, t.typeName, t.pk, id)
			if err != nil {
				return nil, mutation.NoRowsError(verb, t.class.Name)
			}
			return pred, nil
		}, true
	}
	args, names, ok := b.keyArgs(t, target.keys)
	if !ok {
		return nil, false
	}
	for name, arg := range args {
		fields[name] = &graphql.InputObjectFieldConfig{Type: arg.Type}
	}
	return func(input map[string]any) (mutation.Predicate, error) {
		return mutation.KeyCondition(b.reg, target.keys, argValues(input, names))
	}, true
}

func (b *Builder) addUpdates(t *tableInfo) error {
	if !t.class.IsUpdatable {
		return nil
	}
	patch, err := b.rowPatch(t)
	if err != nil || patch == nil {
		return err
	}
	targets := b.keyTargets(t, b.namer.UpdateNode, b.namer.UpdateNodeInputType, b.namer.UpdateByKeys, b.namer.UpdateByKeysInputType)
	if len(targets) == 0 {
		return nil
	}
	rowField := b.namer.TableField(t.class.Name)
	patchField := b.namer.PatchField(t.class.Name)
	payloadName := b.namer.RegisterType(b.namer.UpdatePayloadType(t.class.Name), "update "+t.class.Name)
	out, err := b.payloadType(payloadName, Scope{Class: t.class}, rowField, t.object, nil)
	if err != nil {
		return err
	}
	for _, target := range targets {
		keys := columnNames(target.keys)
		fields := graphql.InputObjectConfigFieldMap{
			patchField: &graphql.InputObjectFieldConfig{
				Type:        graphql.NewNonNull(patch),
				Description: fmt.Sprintf("An object where the defined keys will be set on the `%s` being updated.", t.typeName),
			},
		}
		where, ok := b.targetInput(t, target, "update", fields)
		if !ok {
			continue
		}
		in := b.inputType(b.namer.RegisterType(target.inputName(t.class.Name, keys), "update "+t.class.Name), fields)
		name := b.namer.RegisterRootField("Mutation", target.fieldName(t.class.Name, keys), "update "+t.class.Name)
		b.mutationFields[name] = &graphql.Field{
			Type:        out,
			Description: fmt.Sprintf("Updates a single `%s` using a unique key and a patch.", t.typeName),
			Args:        inputArgs(in),
			Resolve: b.mutationResolver(name, func(ctx context.Context, pc *planContext, key string, input map[string]any, p graphql.ResolveParams) (*payload, error) {
				pred, err := where(input)
				if err != nil {
					return nil, err
				}
				values, err := t.columnValues(input[patchField])
				if err != nil {
					return nil, mutation.InvalidInput(err)
				}
				set, err := mutation.Assignments(b.reg, t.attrs, values)
				if err != nil {
					return nil, err
				}
				stmt, err := mutation.Update(t.class, set, pred(pgsql.Fragment{}))
				if err != nil {
					return nil, err
				}
				data, err := b.rowSelection(pc, t, payloadName, rowField, p)
				if err != nil {
					return nil, err
				}
				return b.executeRow(ctx, t, key, "update", stmt, data, true)
			}),
		}
	}
	return nil
}

func (b *Builder) addDeletes(t *tableInfo) error {
	if !t.class.IsDeletable {
		return nil
	}
	targets := b.keyTargets(t, b.namer.DeleteNode, b.namer.DeleteNodeInputType, b.namer.DeleteByKeys, b.namer.DeleteByKeysInputType)
	if len(targets) == 0 {
		return nil
	}
	rowField := b.namer.TableField(t.class.Name)
	var extra graphql.Fields
	if len(t.pk) > 0 {
		extra = graphql.Fields{
			b.namer.DeletedNodeID(t.class.Name): &graphql.Field{
				Type: graphql.ID,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return payloadSource(p).deletedID, nil
				},
			},
		}
	}
	payloadName := b.namer.RegisterType(b.namer.DeletePayloadType(t.class.Name), "delete "+t.class.Name)
	out, err := b.payloadType(payloadName, Scope{Class: t.class}, rowField, t.object, extra)
	if err != nil {
		return err
	}
	for _, target := range targets {
		keys := columnNames(target.keys)
		fields := graphql.InputObjectConfigFieldMap{}
		where, ok := b.targetInput(t, target, "delete", fields)
		if !ok {
			continue
		}
		in := b.inputType(b.namer.RegisterType(target.inputName(t.class.Name, keys), "delete "+t.class.Name), fields)
		name := b.namer.RegisterRootField("Mutation", target.fieldName(t.class.Name, keys), "delete "+t.class.Name)
		b.mutationFields[name] = &graphql.Field{
			Type:        out,
			Description: fmt.Sprintf("Deletes a single `%s` using a unique key.", t.typeName),
			Args:        inputArgs(in),
			Resolve: b.mutationResolver(name, func(ctx context.Context, pc *planContext, key string, input map[string]any, p graphql.ResolveParams) (*payload, error) {
				pred, err := where(input)
				if err != nil {
					return nil, err
				}
				data, err := b.rowSelection(pc, t, payloadName, rowField, p)
				if err != nil {
					return nil, err
				}
				if len(t.pk) > 0 {
					if err := data.Add(assembler.Field{Key: deletedNodeIDKey, Kind: assembler.KindNodeID, TypeName: t.typeName, Source: t.source()}); err != nil {
						return nil, err
					}
				}
				return b.executeRow(ctx, t, key, "delete", mutation.Delete(t.class, pred(pgsql.Fragment{})), data, true)
			}),
		}
	}
	return nil
}

// addMutationProcedures exposes volatile functions as mutations taking a
// single input object.
func (b *Builder) addMutationProcedures() error {
	for _, proc := range b.cat.Procedures() {
		if proc.Volatility != catalog.VolatilityVolatile {
			continue
		}
		ret, ok, err := b.procedureReturn(proc)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		args, argNames, ok, err := b.procedureArgs(proc, 0)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fields := graphql.InputObjectConfigFieldMap{}
		for name, arg := range args {
			fields[name] = &graphql.InputObjectFieldConfig{Type: arg.Type, Description: arg.Description}
		}
		in := b.inputType(b.namer.RegisterType(b.namer.FunctionInputType(proc.Name), "function "+proc.Name), fields)

		var (
			resultField string
			result      graphql.Output
			rowTypeName string
		)
		if !ret.void {
			resultField = b.namer.ResultField(ret.typeName(), proc.ReturnsSet)
			if ret.table != nil {
				result, rowTypeName = ret.table.object, ret.table.typeName
			} else {
				result = ret.out
			}
			if proc.ReturnsSet {
				result = graphql.NewList(result)
			}
		}
		payloadName := b.namer.RegisterType(b.namer.FunctionPayloadType(proc.Name), "function "+proc.Name)
		out, err := b.payloadType(payloadName, Scope{Procedure: proc}, resultField, result, nil)
		if err != nil {
			return err
		}

		name := b.namer.RegisterRootField("Mutation", b.namer.Function(proc.Name), "function "+proc.Name)
		b.mutationFields[name] = &graphql.Field{
			Type:        out,
			Description: proc.Description,
			Args:        inputArgs(in),
			Resolve: b.mutationResolver(name, func(ctx context.Context, pc *planContext, key string, input map[string]any, p graphql.ResolveParams) (*payload, error) {
				stmt, err := mutation.Call(b.reg, proc, argValues(input, argNames))
				if err != nil {
					return nil, err
				}
				m := mutation.Mutation{
					Field:      key,
					Kind:       mutation.KindCall,
					Verb:       "call",
					Collection: proc.Name,
					Statement:  stmt,
					Set:        proc.ReturnsSet,
				}
				switch {
				case ret.table != nil:
					data, err := pc.payloadData(payloadName, resultField, rowTypeName, selectionSets(p.Info.FieldASTs))
					if err != nil {
						return nil, err
					}
					m.Class, m.TypeName, m.PrimaryKey, m.Selection = ret.table.class, ret.table.typeName, ret.table.pk, data
				case !ret.void:
					m.Type = ret.typ
				}
				res, err := b.mut.Execute(ctx, TxFromContext(ctx), m)
				if err != nil {
					return nil, err
				}
				return &payload{result: res.Value}, nil
			}),
		}
	}
	return nil
}
