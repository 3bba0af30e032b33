package schema

import (
	"github.com/graphql-go/graphql"

	"pg-graphql/internal/assembler"
)

// nodeIDField is the name of the global id field on every keyed row type.
const nodeIDField = "nodeId"

func (b *Builder) nodeInterface() *graphql.Interface {
	return graphql.NewInterface(graphql.InterfaceConfig{
		Name:        "Node",
		Description: "An object with a globally unique identifier.",
		Fields: graphql.Fields{
			nodeIDField: &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		},
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			row, ok := p.Value.(map[string]any)
			if !ok {
				return nil
			}
			typeName, _ := row[assembler.TypeNameKey].(string)
			if t, ok := b.tableByType[typeName]; ok {
				return t.object
			}
			return nil
		},
	})
}

func pageInfoType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					info, _ := p.Source.(assembler.PageInfo)
					return info.HasNextPage, nil
				},
			},
			"hasPreviousPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					info, _ := p.Source.(assembler.PageInfo)
					return info.HasPreviousPage, nil
				},
			},
			"startCursor": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					info, _ := p.Source.(assembler.PageInfo)
					if info.StartCursor == nil {
						return nil, nil
					}
					return *info.StartCursor, nil
				},
			},
			"endCursor": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					info, _ := p.Source.(assembler.PageInfo)
					if info.EndCursor == nil {
						return nil, nil
					}
					return *info.EndCursor, nil
				},
			},
		},
	})
}

// resolveRowValue reads a planned field from a decoded row by response key.
func resolveRowValue(p graphql.ResolveParams) (interface{}, error) {
	row, ok := p.Source.(map[string]any)
	if !ok {
		return nil, nil
	}
	field := firstField(p.Info.FieldASTs)
	if field == nil {
		return nil, nil
	}
	return row[responseKey(field)], nil
}

// connectionTypes groups the object types of one connection.
type connectionTypes struct {
	connection *graphql.Object
	edge       *graphql.Object
	// rowTypeName is empty for connections over scalar rows.
	rowTypeName string
}

// newConnectionTypes builds a connection over node, which is nullable so
// that rows of functions returning an all-null composite render as null.
func (b *Builder) newConnectionTypes(connName, edgeName string, node graphql.Output, rowTypeName string) connectionTypes {
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: edgeName,
		Fields: graphql.Fields{
			"cursor": &graphql.Field{
				Type: b.reg.CursorType(),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					e, _ := p.Source.(assembler.Edge)
					return e.Cursor, nil
				},
			},
			"node": &graphql.Field{
				Type: node,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					e, _ := p.Source.(assembler.Edge)
					return e.Node, nil
				},
			},
		},
	})
	conn := graphql.NewObject(graphql.ObjectConfig{
		Name: connName,
		Fields: graphql.Fields{
			"nodes": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(node)),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, ok := p.Source.(*assembler.Connection)
					if !ok {
						return []any{}, nil
					}
					return c.Nodes, nil
				},
			},
			"edges": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, ok := p.Source.(*assembler.Connection)
					if !ok {
						return []assembler.Edge{}, nil
					}
					return c.Edges, nil
				},
			},
			"pageInfo": &graphql.Field{
				Type: graphql.NewNonNull(b.pageInfo),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, ok := p.Source.(*assembler.Connection)
					if !ok {
						return assembler.PageInfo{}, nil
					}
					return c.PageInfo, nil
				},
			},
			"totalCount": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					c, ok := p.Source.(*assembler.Connection)
					if !ok {
						return 0, nil
					}
					return c.TotalCount, nil
				},
			},
		},
	})
	b.extra = append(b.extra, edge, conn)
	return connectionTypes{connection: conn, edge: edge, rowTypeName: rowTypeName}
}
