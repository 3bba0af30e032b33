package schema

import (
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
)

// tableInfo is everything generated for one exposed class.
type tableInfo struct {
	class    *catalog.Class
	rowType  *catalog.Type
	typeName string
	// queryable classes get connections, lookups and relations; standalone
	// composite types only get an object and an input type.
	queryable bool
	attrs     []*catalog.Attribute
	pk        []*catalog.Attribute
	// columnNames maps attnum to GraphQL field name.
	columnNames map[int16]string

	object *graphql.Object
	fields graphql.Fields

	conn      connectionTypes
	orderBy   *graphql.Enum
	condition *graphql.InputObject

	input *graphql.InputObject
	patch *graphql.InputObject
}

func (t *tableInfo) source(conds ...assembler.Condition) *assembler.Source {
	return &assembler.Source{
		From:       assembler.Relation(t.class),
		Class:      t.class,
		TypeName:   t.typeName,
		PrimaryKey: t.pk,
		Conditions: conds,
	}
}

func (t *tableInfo) attrByName(name string) *catalog.Attribute {
	for _, attr := range t.attrs {
		if attr.Name == name {
			return attr
		}
	}
	return nil
}

func columnNames(attrs []*catalog.Attribute) []string {
	out := make([]string, len(attrs))
	for i, attr := range attrs {
		out[i] = attr.Name
	}
	return out
}

// joinCondition matches local columns of the joined row against remote
// columns of the parent row.
func joinCondition(local, remote []*catalog.Attribute) assembler.Condition {
	return func(alias, parent pgsql.Fragment) pgsql.Fragment {
		parts := make([]pgsql.Fragment, len(local))
		for i := range local {
			parts[i] = pgsql.Concat(alias, ".", pgsql.Ident(local[i].Name), " = ", parent, ".", pgsql.Ident(remote[i].Name))
		}
		return pgsql.Join(parts, " and ")
	}
}

// registerClasses creates an object type per exposed class and binds it to
// the class row type in the registry.
func (b *Builder) registerClasses() error {
	for _, class := range b.cat.Classes() {
		if !b.opts.Filters.ClassAllowed(class) {
			continue
		}
		queryable := class.IsTableLike() && class.IsSelectable
		if !queryable && class.Kind != catalog.ClassCompositeType {
			continue
		}
		rowType, ok := b.cat.Type(class.TypeID)
		if !ok {
			return fmt.Errorf("row type of %s.%s: %w", class.NamespaceName, class.Name, pgtypes.ErrUnknownType)
		}
		attrs := b.opts.Filters.Attributes(b.cat, class)
		if len(attrs) == 0 {
			b.logger.Debug("skipping class without visible columns", slog.String("class", class.Name))
			continue
		}

		name := b.namer.TableType(class.Name)
		if !queryable {
			name = b.namer.CompositeType(class.Name)
		}
		t := &tableInfo{
			class:       class,
			rowType:     rowType,
			typeName:    b.namer.RegisterType(name, "class "+class.NamespaceName+"."+class.Name),
			queryable:   queryable,
			attrs:       attrs,
			columnNames: make(map[int16]string, len(attrs)),
		}
		if pk, ok := b.cat.PrimaryKey(class.ID); ok && queryable {
			if keys, ok := b.cat.AttributesByNums(class.ID, pk.KeyAttributeNums); ok && b.opts.Filters.KeyAllowed(class, keys) {
				t.pk = keys
			}
		}
		var interfaces []*graphql.Interface
		if len(t.pk) > 0 {
			interfaces = append(interfaces, b.node)
			b.namer.RegisterField(t.typeName, nodeIDField, "node id")
		}
		for _, attr := range attrs {
			t.columnNames[attr.Num] = b.namer.RegisterField(t.typeName, b.namer.Column(attr.Name), "column "+attr.Name)
		}
		t.object = graphql.NewObject(graphql.ObjectConfig{
			Name:        t.typeName,
			Description: class.Description,
			Interfaces:  interfaces,
			Fields:      graphql.FieldsThunk(func() graphql.Fields { return t.fields }),
		})

		if err := b.reg.RegisterOutputGenerator(class.TypeID, func(_ func(graphql.Output), _ catalog.Modifier) (graphql.Output, error) {
			return t.object, nil
		}, false); err != nil {
			return err
		}
		if err := b.reg.RegisterInputGenerator(class.TypeID, func(_ func(graphql.Input), _ catalog.Modifier) (graphql.Input, error) {
			in, err := b.rowInput(t)
			if in == nil || err != nil {
				return nil, err
			}
			return in, nil
		}, false); err != nil {
			return err
		}
		if err := b.reg.RegisterCodec(class.TypeID, pgtypes.Codec{Unmap: b.rowUnmap(t)}, false); err != nil {
			return err
		}
		if err := b.reg.AddType(t.object); err != nil {
			return err
		}
		b.tables = append(b.tables, t)
		b.tableByID[class.ID] = t
		b.tableByType[t.typeName] = t
	}
	return nil
}

// rowInput builds the input object carrying a whole row: the create input of
// tables and the argument type of composite values.
func (b *Builder) rowInput(t *tableInfo) (*graphql.InputObject, error) {
	if t.input != nil {
		return t.input, nil
	}
	fields := graphql.InputObjectConfigFieldMap{}
	for _, attr := range t.attrs {
		if t.queryable && !b.opts.Filters.MutationAttributeAllowed(t.class, attr) {
			continue
		}
		in, err := b.reg.ResolveInputType(attr.TypeID, attr.TypeModifier)
		if err != nil {
			return nil, err
		}
		if in == nil {
			continue
		}
		if attr.IsNotNull && !attr.HasDefault {
			in = graphql.NewNonNull(in)
		}
		fields[t.columnNames[attr.Num]] = &graphql.InputObjectFieldConfig{Type: in, Description: attr.Description}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	t.input = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        b.namer.RegisterType(b.namer.InputType(t.typeName), "input of "+t.class.Name),
		Description: fmt.Sprintf("An input for mutations affecting `%s`", t.typeName),
		Fields:      fields,
	})
	return t.input, b.reg.AddType(t.input)
}

// rowPatch builds the update input: every writable column, all optional.
func (b *Builder) rowPatch(t *tableInfo) (*graphql.InputObject, error) {
	if t.patch != nil {
		return t.patch, nil
	}
	fields := graphql.InputObjectConfigFieldMap{}
	for _, attr := range t.attrs {
		if !b.opts.Filters.MutationAttributeAllowed(t.class, attr) {
			continue
		}
		in, err := b.reg.ResolveInputType(attr.TypeID, attr.TypeModifier)
		if err != nil {
			return nil, err
		}
		if in == nil {
			continue
		}
		fields[t.columnNames[attr.Num]] = &graphql.InputObjectFieldConfig{Type: in, Description: attr.Description}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	t.patch = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        b.namer.RegisterType(b.namer.PatchType(t.typeName), "patch of "+t.class.Name),
		Description: fmt.Sprintf("Represents an update to a `%s`. Fields that are set will be updated.", t.typeName),
		Fields:      fields,
	})
	return t.patch, b.reg.AddType(t.patch)
}

// columnValues converts an input object value keyed by GraphQL field names
// into values keyed by column name.
func (t *tableInfo) columnValues(value any) (map[string]any, error) {
	if value == nil {
		return map[string]any{}, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s input: expected object, got %T: %w", t.typeName, value, pgtypes.ErrTypeMismatch)
	}
	out := make(map[string]any, len(m))
	for _, attr := range t.attrs {
		if v, ok := m[t.columnNames[attr.Num]]; ok {
			out[attr.Name] = v
		}
	}
	return out, nil
}

// rowUnmap encodes a row input as a row constructor cast to the row type.
// Hidden columns are passed as null.
func (b *Builder) rowUnmap(t *tableInfo) func(any, catalog.Modifier) (pgsql.Fragment, error) {
	return func(value any, _ catalog.Modifier) (pgsql.Fragment, error) {
		values, err := t.columnValues(value)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		all := b.cat.Attributes(t.class.ID)
		parts := make([]pgsql.Fragment, len(all))
		for i, attr := range all {
			frag, err := b.reg.EncodeByID(values[attr.Name], attr.TypeID, attr.TypeModifier)
			if err != nil {
				return pgsql.Fragment{}, fmt.Errorf("%s.%s: %w", t.typeName, attr.Name, err)
			}
			parts[i] = frag
		}
		return pgsql.Concat("row(", pgsql.Join(parts, ", "), ")::", pgsql.Ident(t.rowType.NamespaceName, t.rowType.Name)), nil
	}
}

// buildTableFields fills the field map of every object type.
func (b *Builder) buildTableFields() error {
	for _, t := range b.tables {
		fields := graphql.Fields{}
		if len(t.pk) > 0 {
			b.addNodeIDField(t, fields)
		}
		for _, attr := range t.attrs {
			if err := b.addColumnField(t, attr, fields); err != nil {
				return fmt.Errorf("%s.%s: %w", t.class.Name, attr.Name, err)
			}
		}
		if t.queryable {
			if err := b.addForwardRelations(t, fields); err != nil {
				return err
			}
			if err := b.addBackwardRelations(t, fields); err != nil {
				return err
			}
			if err := b.addComputedColumns(t, fields); err != nil {
				return err
			}
		}
		fields, err := b.hooks.applyObjectFields(b, Scope{TypeName: t.typeName, Class: t.class, IsTableType: true}, fields)
		if err != nil {
			return err
		}
		t.fields = fields
	}
	return nil
}

func (b *Builder) addNodeIDField(t *tableInfo, fields graphql.Fields) {
	fields[nodeIDField] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.ID),
		Description: "A globally unique identifier. Can be used in various places throughout the system to identify this single value.",
		Resolve:     resolveRowValue,
	}
	b.addPlan(t.typeName, nodeIDField, fieldPlan{
		plan: func(_ *planContext, key string, _ *ast.Field, _ map[string]any) (assembler.Field, error) {
			return assembler.Field{Key: key, Kind: assembler.KindNodeID, TypeName: t.typeName, Source: t.source()}, nil
		},
	})
}

func (b *Builder) addColumnField(t *tableInfo, attr *catalog.Attribute, fields graphql.Fields) error {
	name := t.columnNames[attr.Num]
	typ, ok := b.cat.Type(attr.TypeID)
	if !ok {
		return fmt.Errorf("type %d: %w", attr.TypeID, pgtypes.ErrUnknownType)
	}
	if typ.IsArray() {
		if _, isRow := b.cat.ClassForType(typ.ArrayItemTypeID); isRow {
			b.logger.Debug("skipping array of row type column", slog.String("class", t.class.Name), slog.String("column", attr.Name))
			return nil
		}
	}

	if class, isRow := b.cat.ClassForType(attr.TypeID); isRow {
		target := b.tableByID[class.ID]
		if target == nil {
			b.logger.Debug("skipping column of hidden row type", slog.String("class", t.class.Name), slog.String("column", attr.Name))
			return nil
		}
		fields[name] = &graphql.Field{Type: target.object, Description: attr.Description, Resolve: resolveRowValue}
		b.addPlan(t.typeName, name, fieldPlan{
			plan: func(pc *planContext, key string, field *ast.Field, _ map[string]any) (assembler.Field, error) {
				data, err := pc.rowData(target.typeName, []*ast.SelectionSet{field.SelectionSet})
				if err != nil {
					return assembler.Field{}, err
				}
				src := &assembler.Source{
					From: func(parent pgsql.Fragment) pgsql.Fragment {
						return pgsql.Concat("(select (", parent, ".", pgsql.Ident(attr.Name), ").*)")
					},
					Class:       target.class,
					TypeName:    target.typeName,
					PrimaryKey:  target.pk,
					AddNullCase: true,
				}
				return assembler.Field{Key: key, Kind: assembler.KindObject, Attribute: attr, TypeName: target.typeName, Source: src, Data: data}, nil
			},
		})
		return nil
	}

	out, err := b.reg.ResolveOutputType(attr.TypeID, attr.TypeModifier, true)
	if err != nil {
		return err
	}
	if attr.IsNotNull {
		out = graphql.NewNonNull(out)
	}
	fields[name] = &graphql.Field{Type: out, Description: attr.Description, Resolve: resolveRowValue}
	b.addPlan(t.typeName, name, fieldPlan{
		plan: func(_ *planContext, key string, _ *ast.Field, _ map[string]any) (assembler.Field, error) {
			return assembler.Field{Key: key, Kind: assembler.KindColumn, Attribute: attr}, nil
		},
	})
	return nil
}

// addForwardRelations adds a field per foreign key declared on t.
func (b *Builder) addForwardRelations(t *tableInfo, fields graphql.Fields) error {
	for _, con := range b.cat.Constraints(t.class.ID) {
		if con.Type != catalog.ConstraintForeignKey {
			continue
		}
		target := b.tableByID[con.ForeignClassID]
		if target == nil || !target.queryable {
			continue
		}
		keys, ok := b.cat.AttributesByNums(t.class.ID, con.KeyAttributeNums)
		if !ok || !b.opts.Filters.KeyAllowed(t.class, keys) {
			continue
		}
		foreign, ok := b.cat.AttributesByNums(target.class.ID, con.ForeignKeyAttributeNums)
		if !ok || !b.opts.Filters.KeyAllowed(target.class, foreign) {
			continue
		}
		name := b.namer.RegisterField(t.typeName, b.namer.SingleRelationByKeys(target.class.Name, columnNames(keys)), "constraint "+con.Name)
		fields[name] = &graphql.Field{
			Type:        target.object,
			Description: fmt.Sprintf("Reads a single `%s` that is related to this `%s`.", target.typeName, t.typeName),
			Resolve:     resolveRowValue,
		}
		cond := joinCondition(foreign, keys)
		b.addPlan(t.typeName, name, fieldPlan{
			plan: func(pc *planContext, key string, field *ast.Field, _ map[string]any) (assembler.Field, error) {
				data, err := pc.rowData(target.typeName, []*ast.SelectionSet{field.SelectionSet})
				if err != nil {
					return assembler.Field{}, err
				}
				return assembler.Field{Key: key, Kind: assembler.KindObject, TypeName: target.typeName, Source: target.source(cond), Data: data}, nil
			},
		})
	}
	return nil
}

// addBackwardRelations adds a field per foreign key pointing at t: a single
// row when the referencing columns are unique, a connection otherwise.
func (b *Builder) addBackwardRelations(t *tableInfo, fields graphql.Fields) error {
	for _, con := range b.cat.ReferencingConstraints(t.class.ID) {
		child := b.tableByID[con.ClassID]
		if child == nil || !child.queryable {
			continue
		}
		keys, ok := b.cat.AttributesByNums(child.class.ID, con.KeyAttributeNums)
		if !ok || !b.opts.Filters.KeyAllowed(child.class, keys) {
			continue
		}
		foreign, ok := b.cat.AttributesByNums(t.class.ID, con.ForeignKeyAttributeNums)
		if !ok || !b.opts.Filters.KeyAllowed(t.class, foreign) {
			continue
		}
		cond := joinCondition(keys, foreign)

		if b.cat.IsUniqueKey(child.class.ID, con.KeyAttributeNums) {
			name := b.namer.RegisterField(t.typeName, b.namer.SingleRelationByKeys(child.class.Name, columnNames(keys)), "backward constraint "+con.Name)
			fields[name] = &graphql.Field{
				Type:        child.object,
				Description: fmt.Sprintf("Reads a single `%s` that is related to this `%s`.", child.typeName, t.typeName),
				Resolve:     resolveRowValue,
			}
			b.addPlan(t.typeName, name, fieldPlan{
				plan: func(pc *planContext, key string, field *ast.Field, _ map[string]any) (assembler.Field, error) {
					data, err := pc.rowData(child.typeName, []*ast.SelectionSet{field.SelectionSet})
					if err != nil {
						return assembler.Field{}, err
					}
					return assembler.Field{Key: key, Kind: assembler.KindObject, TypeName: child.typeName, Source: child.source(cond), Data: data}, nil
				},
			})
			continue
		}

		name := b.namer.RegisterField(t.typeName, b.namer.ManyRelationByKeys(child.class.Name, columnNames(keys)), "backward constraint "+con.Name)
		args := b.connectionArgs(child, true)
		fields[name] = &graphql.Field{
			Type:        graphql.NewNonNull(child.conn.connection),
			Description: fmt.Sprintf("Reads and enables pagination through a set of `%s`.", child.typeName),
			Args:        args,
			Resolve:     resolveRowValue,
		}
		b.addPlan(t.typeName, name, fieldPlan{
			args: args,
			plan: func(pc *planContext, key string, field *ast.Field, values map[string]any) (assembler.Field, error) {
				return b.tableConnection(pc, key, child, child.source(cond), []*ast.SelectionSet{field.SelectionSet}, values)
			},
		})
	}
	return nil
}
