package schema

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"pg-graphql/internal/assembler"
	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
)

// OrderSpec is the internal value of an ordering enum value. Hooks adding
// ordering values use it to name the column they sort by.
type OrderSpec struct {
	Natural    bool
	PrimaryKey bool
	Column     string
	Desc       bool
}

// buildConnections creates the connection, ordering and condition types of
// every queryable class.
func (b *Builder) buildConnections() error {
	for _, t := range b.tables {
		if !t.queryable {
			continue
		}
		t.conn = b.newConnectionTypes(
			b.namer.RegisterType(b.namer.Connection(t.typeName), "connection of "+t.typeName),
			b.namer.RegisterType(b.namer.Edge(t.typeName), "edge of "+t.typeName),
			t.object, t.typeName,
		)
		if err := b.buildOrderBy(t); err != nil {
			return fmt.Errorf("%s: %w", t.class.Name, err)
		}
		if err := b.buildCondition(t); err != nil {
			return fmt.Errorf("%s: %w", t.class.Name, err)
		}
	}
	return nil
}

func (b *Builder) buildOrderBy(t *tableInfo) error {
	name := b.namer.RegisterType(b.namer.OrderByType(t.typeName), "ordering of "+t.typeName)
	values := graphql.EnumValueConfigMap{
		"NATURAL": &graphql.EnumValueConfig{Value: OrderSpec{Natural: true}},
	}
	if len(t.pk) > 0 {
		values["PRIMARY_KEY_ASC"] = &graphql.EnumValueConfig{Value: OrderSpec{PrimaryKey: true}}
		values["PRIMARY_KEY_DESC"] = &graphql.EnumValueConfig{Value: OrderSpec{PrimaryKey: true, Desc: true}}
	}
	values, err := b.hooks.applyEnumValues(b, Scope{TypeName: name, Class: t.class, IsOrderBy: true}, values)
	if err != nil {
		return err
	}
	t.orderBy = graphql.NewEnum(graphql.EnumConfig{
		Name:        name,
		Description: fmt.Sprintf("Methods to use when ordering `%s`.", t.typeName),
		Values:      values,
	})
	b.extra = append(b.extra, t.orderBy)
	return nil
}

// orderByColumnsHook adds ascending and descending values for every
// orderable column.
func orderByColumnsHook(b *Builder, scope Scope, values graphql.EnumValueConfigMap) (graphql.EnumValueConfigMap, error) {
	if !scope.IsOrderBy || scope.Class == nil {
		return values, nil
	}
	t := b.tableByID[scope.Class.ID]
	if t == nil {
		return values, nil
	}
	for _, attr := range t.attrs {
		if !b.orderable(attr) {
			continue
		}
		values[b.namer.OrderByColumnEnum(attr.Name, true)] = &graphql.EnumValueConfig{Value: OrderSpec{Column: attr.Name}}
		values[b.namer.OrderByColumnEnum(attr.Name, false)] = &graphql.EnumValueConfig{Value: OrderSpec{Column: attr.Name, Desc: true}}
	}
	return values, nil
}

// orderable reports whether cursors over attr round-trip: the tweaked value
// must be a JSON scalar that casts back to the column type.
func (b *Builder) orderable(attr *catalog.Attribute) bool {
	typ, ok := b.cat.Type(attr.TypeID)
	for ok && typ.IsDomain() {
		typ, ok = b.cat.Type(typ.DomainBaseTypeID)
	}
	if !ok {
		return false
	}
	if typ.IsArray() || typ.IsRange() || typ.Kind == catalog.KindComposite || typ.Kind == catalog.KindPseudo {
		return false
	}
	switch typ.ID {
	case pgtypes.OIDJSON, pgtypes.OIDJSONB, pgtypes.OIDPoint:
		return false
	}
	return typ.Name != "hstore"
}

func (b *Builder) buildCondition(t *tableInfo) error {
	fields := graphql.InputObjectConfigFieldMap{}
	for _, attr := range t.attrs {
		in, err := b.reg.ResolveInputType(attr.TypeID, attr.TypeModifier)
		if err != nil {
			return err
		}
		if in == nil {
			continue
		}
		name := t.columnNames[attr.Num]
		fields[name] = &graphql.InputObjectFieldConfig{
			Type:        in,
			Description: fmt.Sprintf("Checks for equality with the object's `%s` field.", name),
		}
	}
	if len(fields) == 0 {
		return nil
	}
	t.condition = graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        b.namer.RegisterType(b.namer.ConditionType(t.typeName), "condition of "+t.typeName),
		Description: fmt.Sprintf("A condition to be used against `%s` object types. All fields are tested for equality and combined with a logical and.", t.typeName),
		Fields:      fields,
	})
	b.extra = append(b.extra, t.condition)
	return nil
}

func defaultOrder(t *tableInfo) OrderSpec {
	if len(t.pk) > 0 {
		return OrderSpec{PrimaryKey: true}
	}
	return OrderSpec{Natural: true}
}

// paginationArgs are the arguments shared by every connection field.
func (b *Builder) paginationArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"first":  &graphql.ArgumentConfig{Type: graphql.Int, Description: "Only read the first `n` values of the set."},
		"last":   &graphql.ArgumentConfig{Type: graphql.Int, Description: "Only read the last `n` values of the set."},
		"offset": &graphql.ArgumentConfig{Type: graphql.Int, Description: "Skip the first `n` values from our `after` cursor, an alternative to cursor based pagination."},
		"before": &graphql.ArgumentConfig{Type: b.reg.CursorType(), Description: "Read all values in the set before (above) this cursor."},
		"after":  &graphql.ArgumentConfig{Type: b.reg.CursorType(), Description: "Read all values in the set after (below) this cursor."},
	}
}

// connectionArgs are the arguments of a connection over t. Connections over
// function results keep the function's order and take no orderBy.
func (b *Builder) connectionArgs(t *tableInfo, withOrder bool) graphql.FieldConfigArgument {
	args := b.paginationArgs()
	if withOrder && t.orderBy != nil {
		args["orderBy"] = &graphql.ArgumentConfig{
			Type:         graphql.NewList(graphql.NewNonNull(t.orderBy)),
			DefaultValue: []any{defaultOrder(t)},
			Description:  fmt.Sprintf("The method to use when ordering `%s`.", t.typeName),
		}
	}
	if t.condition != nil {
		args["condition"] = &graphql.ArgumentConfig{
			Type:        t.condition,
			Description: "A condition to be used in determining which values should be returned by the collection.",
		}
	}
	return args
}

func intArg(args map[string]any, name string) (int, bool) {
	switch v := args[name].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// page reads the pagination arguments. t is nil for scalar connections.
func (b *Builder) page(t *tableInfo, args map[string]any) (*assembler.Page, error) {
	p := &assembler.Page{}
	if n, ok := intArg(args, "first"); ok {
		p.First = &n
	}
	if n, ok := intArg(args, "last"); ok {
		p.Last = &n
	}
	if n, ok := intArg(args, "offset"); ok {
		p.Offset = n
	}
	p.After, _ = args["after"].(string)
	p.Before, _ = args["before"].(string)
	if t == nil {
		return p, nil
	}
	specs, _ := args["orderBy"].([]any)
	order, key, err := b.orderTerms(t, specs)
	if err != nil {
		return nil, err
	}
	p.Order, p.OrderKey = order, key
	return p, nil
}

// orderTerms converts ordering values into ORDER BY terms. Primary key
// columns not already ordered on are appended so the order is total.
func (b *Builder) orderTerms(t *tableInfo, specs []any) ([]assembler.OrderTerm, string, error) {
	var (
		terms []assembler.OrderTerm
		names []string
	)
	used := map[int16]bool{}
	add := func(attr *catalog.Attribute, desc bool) error {
		typ, ok := b.cat.Type(attr.TypeID)
		if !ok {
			return fmt.Errorf("order column %s: %w", attr.Name, pgtypes.ErrUnknownType)
		}
		used[attr.Num] = true
		col := attr.Name
		terms = append(terms, assembler.OrderTerm{
			Expr:    func(alias pgsql.Fragment) pgsql.Fragment { return pgsql.Concat(alias, ".", pgsql.Ident(col)) },
			Type:    typ,
			Mod:     attr.TypeModifier,
			Desc:    desc,
			NotNull: attr.IsNotNull,
		})
		return nil
	}
	for _, v := range specs {
		ord, ok := v.(OrderSpec)
		if !ok {
			return nil, "", fmt.Errorf("unsupported ordering value %v", v)
		}
		switch {
		case ord.Natural:
			continue
		case ord.PrimaryKey:
			for _, attr := range t.pk {
				if err := add(attr, ord.Desc); err != nil {
					return nil, "", err
				}
			}
		default:
			attr := t.attrByName(ord.Column)
			if attr == nil {
				return nil, "", fmt.Errorf("cannot order %s by unknown column %q", t.typeName, ord.Column)
			}
			if err := add(attr, ord.Desc); err != nil {
				return nil, "", err
			}
		}
		if name, ok := t.orderBy.Serialize(ord).(string); ok {
			names = append(names, name)
		}
	}
	if len(terms) == 0 {
		return nil, "", nil
	}
	for _, attr := range t.pk {
		if !used[attr.Num] {
			if err := add(attr, false); err != nil {
				return nil, "", err
			}
		}
	}
	return terms, strings.Join(names, ","), nil
}

// conditionFilter turns a condition argument into equality conditions.
func (b *Builder) conditionFilter(t *tableInfo, value any) ([]assembler.Condition, error) {
	if value == nil {
		return nil, nil
	}
	values, err := t.columnValues(value)
	if err != nil {
		return nil, err
	}
	var conds []assembler.Condition
	for _, attr := range t.attrs {
		v, ok := values[attr.Name]
		if !ok {
			continue
		}
		col := attr.Name
		if v == nil {
			conds = append(conds, func(alias, _ pgsql.Fragment) pgsql.Fragment {
				return pgsql.Concat(alias, ".", pgsql.Ident(col), " is null")
			})
			continue
		}
		frag, err := b.reg.EncodeByID(v, attr.TypeID, attr.TypeModifier)
		if err != nil {
			return nil, fmt.Errorf("condition on %s: %w", t.columnNames[attr.Num], err)
		}
		conds = append(conds, func(alias, _ pgsql.Fragment) pgsql.Fragment {
			return pgsql.Concat(alias, ".", pgsql.Ident(col), " = ", frag)
		})
	}
	return conds, nil
}

// tableConnection plans a connection over rows of t read from src.
func (b *Builder) tableConnection(pc *planContext, key string, t *tableInfo, src *assembler.Source, sets []*ast.SelectionSet, args map[string]any) (assembler.Field, error) {
	page, err := b.page(t, args)
	if err != nil {
		return assembler.Field{}, err
	}
	conds, err := b.conditionFilter(t, args["condition"])
	if err != nil {
		return assembler.Field{}, err
	}
	src.Conditions = append(src.Conditions, conds...)
	data, totalCount, err := pc.connectionData(t.conn, sets)
	if err != nil {
		return assembler.Field{}, err
	}
	page.TotalCount = totalCount
	return assembler.Field{Key: key, Kind: assembler.KindConnection, TypeName: t.typeName, Source: src, Data: data, Page: page}, nil
}
