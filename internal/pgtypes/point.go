package pgtypes

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/jackc/pgx/v5/pgtype"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

func pointTypes() (*graphql.Object, *graphql.InputObject) {
	return graphql.NewObject(graphql.ObjectConfig{
			Name: "Point",
			Fields: graphql.Fields{
				"x": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
				"y": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			},
		}),
		graphql.NewInputObject(graphql.InputObjectConfig{
			Name: "PointInput",
			Fields: graphql.InputObjectConfigFieldMap{
				"x": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
				"y": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Float)},
			},
		})
}

// decodePoint parses "(x,y)".
func decodePoint(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("point: unexpected %T: %w", v, ErrTypeMismatch)
	}
	var p pgtype.Point
	if err := p.Scan(s); err != nil {
		return nil, fmt.Errorf("point %q: %w", s, err)
	}
	return map[string]any{"x": p.P.X, "y": p.P.Y}, nil
}

func encodePoint(v any, _ catalog.Modifier) (pgsql.Fragment, error) {
	parts, ok := v.(map[string]any)
	if !ok {
		return pgsql.Fragment{}, fmt.Errorf("point: expected object, got %T: %w", v, ErrTypeMismatch)
	}
	return pgsql.Concat("point(", pgsql.Value(parts["x"]), ", ", pgsql.Value(parts["y"]), ")"), nil
}
