package pgtypes

import (
	"fmt"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

// Codec converts values of one Postgres type. Map turns a decoded row value
// into its GraphQL form; Unmap turns a GraphQL input value into a SQL fragment.
type Codec struct {
	Map   func(value any) (any, error)
	Unmap func(value any, mod catalog.Modifier) (pgsql.Fragment, error)
}

// RegisterCodec installs c for typeID.
func (r *Registry) RegisterCodec(typeID uint32, c Codec, yieldToExisting bool) error {
	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.codecs[typeID]; exists {
		if yieldToExisting {
			return nil
		}
		return fmt.Errorf("codec for type %d: %w", typeID, ErrDuplicateRegistration)
	}
	r.codecs[typeID] = c
	return nil
}

// Decode converts a value read from Postgres into its GraphQL representation.
// Null stays null.
func (r *Registry) Decode(value any, t *catalog.Type) (any, error) {
	if value == nil {
		return nil, nil
	}
	if c, ok := r.codecs[t.ID]; ok && c.Map != nil {
		return c.Map(value)
	}
	return r.handlerFor(t).Decode(r, value, t)
}

// DecodeByID is Decode for a type id.
func (r *Registry) DecodeByID(value any, typeID uint32) (any, error) {
	t, err := r.lookupType(typeID)
	if err != nil {
		return nil, err
	}
	return r.Decode(value, t)
}

// Encode converts a GraphQL input value into a SQL fragment of type t.
// Null becomes the SQL null literal.
func (r *Registry) Encode(value any, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error) {
	if value == nil {
		return pgsql.Null, nil
	}
	if c, ok := r.codecs[t.ID]; ok && c.Unmap != nil {
		return c.Unmap(value, mod)
	}
	return r.handlerFor(t).Encode(r, value, t, mod)
}

// EncodeByID is Encode for a type id.
func (r *Registry) EncodeByID(value any, typeID uint32, mod catalog.Modifier) (pgsql.Fragment, error) {
	t, err := r.lookupType(typeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return r.Encode(value, t, mod)
}
