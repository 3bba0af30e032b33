package assembler

import (
	"encoding/json"
	"fmt"

	"pg-graphql/internal/cursor"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/pgtypes"
)

// TypeNameKey is the hidden key carrying a decoded row's GraphQL type name.
const TypeNameKey = "@@typeName"

// Connection is the decoded form of a connection field.
type Connection struct {
	Nodes      []any
	Edges      []Edge
	PageInfo   PageInfo
	TotalCount int
}

// Edge pairs a node with its cursor.
type Edge struct {
	Cursor string
	Node   any
}

// PageInfo describes the boundaries of a page.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
}

// Decode parses the __data value returned by the statement Assemble built for
// root and converts it into GraphQL-facing values: rows become
// map[string]any keyed by response key, connections become *Connection.
func (a *Assembler) Decode(root Field, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", root.Key, err)
	}
	return a.decodeField(root, value)
}

func (a *Assembler) decodeField(f Field, value any) (any, error) {
	switch f.Kind {
	case KindColumn:
		if value == nil {
			return nil, nil
		}
		return a.reg.DecodeByID(value, f.Attribute.TypeID)
	case KindExpression:
		if value == nil {
			return nil, nil
		}
		return a.reg.Decode(value, f.Type)
	case KindComputed:
		if value == nil {
			return nil, nil
		}
		return a.reg.Decode(value, f.Source.Type)
	case KindNodeID:
		keys, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected key values, got %T", f.Key, value)
		}
		return nodeid.Encode(f.TypeName, keys...), nil
	case KindObject:
		return a.decodeRow(f.Source, f.Data, value)
	case KindList:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected list, got %T: %w", f.Key, value, pgtypes.ErrTypeMismatch)
		}
		out := make([]any, len(items))
		for i, item := range items {
			decoded, err := a.decodeRow(f.Source, f.Data, item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case KindConnection:
		return a.decodeConnection(f, value)
	default:
		return nil, fmt.Errorf("field %q: unknown kind %d", f.Key, f.Kind)
	}
}

func (a *Assembler) decodeRow(src *Source, data *ResolveData, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if src.Class == nil {
		return a.reg.Decode(value, src.Type)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected row object, got %T", src.TypeName, value)
	}
	out := make(map[string]any, len(obj)+1)
	out[TypeNameKey] = src.TypeName
	if data == nil {
		return out, nil
	}
	for _, f := range data.Fields {
		decoded, err := a.decodeField(f, obj[f.Key])
		if err != nil {
			return nil, err
		}
		out[f.Key] = decoded
	}
	return out, nil
}

func (a *Assembler) decodeConnection(f Field, value any) (*Connection, error) {
	w, err := a.window(f.Source, f.Page)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected connection object, got %T", f.Key, value)
	}
	rows, _ := obj["rows"].([]any)

	conn := &Connection{}
	if count, ok := obj["totalCount"].(float64); ok {
		conn.TotalCount = int(count)
	}
	switch {
	case w.natural:
		conn.PageInfo.HasPreviousPage = w.start > 0
		if w.bounded {
			conn.PageInfo.HasNextPage = true
		} else if len(rows) > w.limit {
			conn.PageInfo.HasNextPage = true
			rows = rows[:w.limit]
		}
	case w.mode == PaginationModeBackward:
		conn.PageInfo.HasNextPage = w.before != nil
		if len(rows) > w.limit {
			conn.PageInfo.HasPreviousPage = true
			rows = rows[len(rows)-w.limit:]
		}
	default:
		conn.PageInfo.HasPreviousPage = w.after != nil || w.offset > 0
		if len(rows) > w.limit {
			conn.PageInfo.HasNextPage = true
			rows = rows[:w.limit]
		}
	}

	directions := f.Page.directions()
	conn.Nodes = make([]any, 0, len(rows))
	conn.Edges = make([]Edge, 0, len(rows))
	for i, raw := range rows {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected connection row, got %T", f.Key, raw)
		}
		node, err := a.decodeRow(f.Source, f.Data, entry["n"])
		if err != nil {
			return nil, err
		}
		var c string
		if w.natural {
			c = cursor.EncodeNatural(f.Source.TypeName, w.start+i+1)
		} else {
			values, _ := entry["c"].([]any)
			c = cursor.Encode(f.Source.TypeName, f.Page.OrderKey, directions, values...)
		}
		conn.Nodes = append(conn.Nodes, node)
		conn.Edges = append(conn.Edges, Edge{Cursor: c, Node: node})
	}
	if n := len(conn.Edges); n > 0 {
		start, end := conn.Edges[0].Cursor, conn.Edges[n-1].Cursor
		conn.PageInfo.StartCursor = &start
		conn.PageInfo.EndCursor = &end
	}
	return conn, nil
}
