package mutation

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
)

// Assignment is one column value of an insert or update.
type Assignment struct {
	Column *catalog.Attribute
	Value  pgsql.Fragment
}

// Assignments encodes values keyed by column name in the column order of the table.
func Assignments(reg *pgtypes.Registry, attrs []*catalog.Attribute, values map[string]any) ([]Assignment, error) {
	out := make([]Assignment, 0, len(values))
	for _, attr := range attrs {
		v, ok := values[attr.Name]
		if !ok {
			continue
		}
		frag, err := reg.EncodeByID(v, attr.TypeID, attr.TypeModifier)
		if err != nil {
			return nil, InvalidInput(fmt.Errorf("column %s: %w", attr.Name, err))
		}
		out = append(out, Assignment{Column: attr, Value: frag})
	}
	return out, nil
}

func tableName(class *catalog.Class) string {
	return pq.QuoteIdentifier(class.NamespaceName) + "." + pq.QuoteIdentifier(class.Name)
}

// Insert renders an insert of one row.
func Insert(class *catalog.Class, set []Assignment) pgsql.Fragment {
	if len(set) == 0 {
		return pgsql.Concat("insert into ", pgsql.Ident(class.NamespaceName, class.Name), " default values")
	}
	columns := make([]string, len(set))
	values := make([]any, len(set))
	for i, a := range set {
		columns[i] = pq.QuoteIdentifier(a.Column.Name)
		values[i] = a.Value
	}
	return pgsql.FromSqlizer(sq.Insert(tableName(class)).Columns(columns...).Values(values...))
}

// Update renders an update of the rows matching where.
func Update(class *catalog.Class, set []Assignment, where pgsql.Fragment) (pgsql.Fragment, error) {
	if len(set) == 0 {
		return pgsql.Fragment{}, InvalidInput(fmt.Errorf("no values to update in collection '%s'", class.Name))
	}
	builder := sq.Update(tableName(class))
	for _, a := range set {
		builder = builder.Set(pq.QuoteIdentifier(a.Column.Name), a.Value)
	}
	return pgsql.FromSqlizer(builder.Where(where)), nil
}

// Delete renders a delete of the rows matching where.
func Delete(class *catalog.Class, where pgsql.Fragment) pgsql.Fragment {
	return pgsql.FromSqlizer(sq.Delete(tableName(class)).Where(where))
}

// Call renders a function call. Trailing null arguments that have defaults
// are omitted so the defaults apply.
func Call(reg *pgtypes.Registry, proc *catalog.Procedure, args []any) (pgsql.Fragment, error) {
	frags, err := EncodeArgs(reg, proc, 0, args)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return pgsql.Concat(pgsql.Ident(proc.NamespaceName, proc.Name), "(", pgsql.Join(frags, ", "), ")"), nil
}

// EncodeArgs encodes the arguments of proc starting at position offset, as
// computed columns do after their row argument. Trailing nulls with defaults
// are dropped.
func EncodeArgs(reg *pgtypes.Registry, proc *catalog.Procedure, offset int, args []any) ([]pgsql.Fragment, error) {
	if offset+len(args) > len(proc.ArgTypeIDs) {
		return nil, fmt.Errorf("function %s takes %d arguments, got %d", proc.Name, len(proc.ArgTypeIDs), offset+len(args))
	}
	n := len(args)
	firstDefault := len(proc.ArgTypeIDs) - proc.ArgDefaultsNum - offset
	for n > firstDefault && n > 0 && args[n-1] == nil {
		n--
	}
	frags := make([]pgsql.Fragment, n)
	for i := 0; i < n; i++ {
		frag, err := reg.EncodeByID(args[i], proc.ArgTypeIDs[offset+i], catalog.NoModifier)
		if err != nil {
			return nil, InvalidInput(fmt.Errorf("argument %d of %s: %w", offset+i+1, proc.Name, err))
		}
		frags[i] = frag
	}
	return frags, nil
}
