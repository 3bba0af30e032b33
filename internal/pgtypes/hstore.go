package pgtypes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/jackc/pgx/v5/pgtype"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/scalars"
)

// installHstore maps the hstore extension type to KeyValueHash when the extension is installed.
func (r *Registry) installHstore() error {
	if r.opts.SkipHstore || r.catalog == nil {
		return nil
	}
	ext, ok := r.catalog.Extension("hstore")
	if !ok {
		return nil
	}
	var hstore *catalog.Type
	for _, t := range r.catalog.Types() {
		if t.Name == "hstore" && t.NamespaceID == ext.NamespaceID {
			hstore = t
			break
		}
	}
	if hstore == nil {
		return nil
	}
	kv := scalars.KeyValueHash()
	if err := r.RegisterOutputGenerator(hstore.ID, func(func(graphql.Output), catalog.Modifier) (graphql.Output, error) {
		return kv, nil
	}, false); err != nil {
		return err
	}
	if err := r.RegisterInputGenerator(hstore.ID, func(func(graphql.Input), catalog.Modifier) (graphql.Input, error) {
		return kv, nil
	}, false); err != nil {
		return err
	}
	cast := typeIdent(hstore)
	return r.RegisterCodec(hstore.ID, Codec{
		Map: decodeHstore,
		Unmap: func(v any, _ catalog.Modifier) (pgsql.Fragment, error) {
			text, err := hstoreStringify(v)
			if err != nil {
				return pgsql.Fragment{}, err
			}
			return pgsql.Concat("(", pgsql.Value(text), "::", cast, ")"), nil
		},
	}, false)
}

func decodeHstore(v any) (any, error) {
	switch h := v.(type) {
	case map[string]any:
		return h, nil
	case string:
		var parsed pgtype.Hstore
		if err := parsed.Scan(h); err != nil {
			return nil, fmt.Errorf("hstore: %w", err)
		}
		out := make(map[string]any, len(parsed))
		for k, val := range parsed {
			if val == nil {
				out[k] = nil
			} else {
				out[k] = *val
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("hstore: unexpected %T: %w", v, ErrTypeMismatch)
	}
}

// hstoreStringify renders the hstore text form. Keys are sorted so the output is stable.
func hstoreStringify(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("hstore: expected object, got %T: %w", v, ErrTypeMismatch)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		switch val := m[k].(type) {
		case nil:
			pairs = append(pairs, hstoreQuote(k)+"=>NULL")
		case string:
			pairs = append(pairs, hstoreQuote(k)+"=>"+hstoreQuote(val))
		default:
			return "", fmt.Errorf("hstore value for %q must be a string or null: %w", k, ErrTypeMismatch)
		}
	}
	return strings.Join(pairs, ", "), nil
}

var hstoreEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func hstoreQuote(s string) string {
	return `"` + hstoreEscaper.Replace(s) + `"`
}
