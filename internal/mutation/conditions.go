package mutation

import (
	"fmt"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/nodeid"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
)

// Predicate renders a WHERE condition. qualifier prefixes the column names
// when not empty, so the same predicate serves statements and aliased selects.
type Predicate func(qualifier pgsql.Fragment) pgsql.Fragment

// NodeIDCondition decodes a node id and returns the primary key predicate it identifies.
func NodeIDCondition(cat *catalog.Catalog, typeName string, keys []*catalog.Attribute, id string) (Predicate, error) {
	decodedType, values, err := nodeid.Decode(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}
	if decodedType != typeName {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrMismatchedType, typeName, decodedType)
	}
	if len(values) != len(keys) {
		return nil, fmt.Errorf("%w: expected %d key values, got %d", ErrInvalidIdentifier, len(keys), len(values))
	}
	rhs := make([]pgsql.Fragment, len(keys))
	for i, attr := range keys {
		text, err := nodeid.KeyText(values[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
		}
		t, ok := cat.Type(attr.TypeID)
		if !ok {
			return nil, fmt.Errorf("key column %s: %w", attr.Name, pgtypes.ErrUnknownType)
		}
		rhs[i] = pgsql.Concat(pgsql.Value(text), "::", pgsql.Ident(t.NamespaceName, t.Name))
	}
	return equalities(keys, rhs), nil
}

// KeyCondition returns "col = value" for each key column, encoding values
// through the codec.
func KeyCondition(reg *pgtypes.Registry, keys []*catalog.Attribute, values []any) (Predicate, error) {
	if len(values) != len(keys) {
		return nil, fmt.Errorf("%w: expected %d key values, got %d", ErrInvalidIdentifier, len(keys), len(values))
	}
	rhs := make([]pgsql.Fragment, len(keys))
	for i, attr := range keys {
		if values[i] == nil {
			return nil, fmt.Errorf("%w: key column %s is null", ErrInvalidIdentifier, attr.Name)
		}
		value, err := reg.EncodeByID(values[i], attr.TypeID, attr.TypeModifier)
		if err != nil {
			return nil, InvalidInput(fmt.Errorf("key column %s: %w", attr.Name, err))
		}
		rhs[i] = value
	}
	return equalities(keys, rhs), nil
}

func equalities(keys []*catalog.Attribute, rhs []pgsql.Fragment) Predicate {
	return func(qualifier pgsql.Fragment) pgsql.Fragment {
		parts := make([]pgsql.Fragment, len(keys))
		for i, attr := range keys {
			parts[i] = pgsql.Concat(column(qualifier, attr), " = ", rhs[i])
		}
		return pgsql.Join(parts, " and ")
	}
}

func column(qualifier pgsql.Fragment, attr *catalog.Attribute) pgsql.Fragment {
	if qualifier.IsEmpty() {
		return pgsql.Ident(attr.Name)
	}
	return pgsql.Concat(qualifier, ".", pgsql.Ident(attr.Name))
}
