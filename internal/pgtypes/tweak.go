package pgtypes

import (
	"fmt"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

// TweakFunc rewrites a column expression so its value survives JSON encoding.
type TweakFunc func(frag pgsql.Fragment, mod catalog.Modifier) pgsql.Fragment

func tweakToText(frag pgsql.Fragment, _ catalog.Modifier) pgsql.Fragment {
	return pgsql.Concat("(", frag, ")::text")
}

func tweakToNumericText(frag pgsql.Fragment, _ catalog.Modifier) pgsql.Fragment {
	return pgsql.Concat("(", frag, ")::numeric::text")
}

// RegisterTweak installs fn for every modifier of typeID.
func (r *Registry) RegisterTweak(typeID uint32, fn TweakFunc, yieldToExisting bool) error {
	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.tweaks[typeID]; exists {
		if yieldToExisting {
			return nil
		}
		return fmt.Errorf("tweak for type %d: %w", typeID, ErrDuplicateRegistration)
	}
	r.tweaks[typeID] = fn
	return nil
}

// RegisterModifierTweak installs fn for one (typeID, mod) pair. It takes
// precedence over a type-wide tweak.
func (r *Registry) RegisterModifierTweak(typeID uint32, mod catalog.Modifier, fn TweakFunc, yieldToExisting bool) error {
	if r.frozen {
		return ErrFrozen
	}
	key := bindingKey{typeID, mod}
	if _, exists := r.modifierTweaks[key]; exists {
		if yieldToExisting {
			return nil
		}
		return fmt.Errorf("tweak for type %d modifier %d: %w", typeID, mod, ErrDuplicateRegistration)
	}
	r.modifierTweaks[key] = fn
	return nil
}

// Tweak rewrites frag, an expression of type t, into the form the query
// assembler selects. Domains use their base type's tweak with the domain's own
// modifier. Arrays must be handled element-wise by the caller (see TweakValue).
func (r *Registry) Tweak(frag pgsql.Fragment, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error) {
	if fn, ok := r.modifierTweaks[bindingKey{t.ID, mod}]; ok {
		return fn(frag, mod), nil
	}
	if fn, ok := r.tweaks[t.ID]; ok {
		return fn(frag, mod), nil
	}
	return r.handlerFor(t).Tweak(r, frag, t, mod)
}

// TweakValue tweaks any column expression, mapping the element tweak over
// array values with unnest when the element needs one. Elements keep their
// order; a multi-dimensional array comes back flattened to one dimension.
func (r *Registry) TweakValue(frag pgsql.Fragment, t *catalog.Type, mod catalog.Modifier) (pgsql.Fragment, error) {
	for t.IsDomain() {
		base, err := r.lookupType(t.DomainBaseTypeID)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		if !base.IsArray() {
			return r.Tweak(frag, t, mod)
		}
		t, mod = base, t.DomainTypeModifier
	}
	if !t.IsArray() {
		return r.Tweak(frag, t, mod)
	}
	elem, err := r.lookupType(t.ArrayItemTypeID)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	item := pgsql.NewAlias("elem")
	value := pgsql.Concat(item, ".", pgsql.Ident("v"))
	tweaked, err := r.TweakValue(value, elem, mod)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	if sameFragment(tweaked, value) {
		return frag, nil
	}
	return pgsql.Concat(
		"(case when (", frag, ") is null then null else array(select ", tweaked,
		" from unnest(", frag, ") with ordinality as ", item, `("v", "n") order by `, item, `."n") end)`,
	), nil
}

func sameFragment(a, b pgsql.Fragment) bool {
	sa, aa, errA := a.ToSql()
	sb, ab, errB := b.ToSql()
	return errA == nil && errB == nil && sa == sb && len(aa) == 0 && len(ab) == 0
}
