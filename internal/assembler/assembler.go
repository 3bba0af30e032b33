// Package assembler builds a single SQL statement that returns one JSON value
// shaped like a GraphQL selection, and decodes that value back through the
// type codec.
//
// Every statement has the form
//
//	select <json expression> as "__data"
//
// so one execution yields exactly one row and one column no matter how deeply
// relations, computed columns and connections are nested.
package assembler

import (
	"errors"
	"fmt"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/pgtypes"
)

var (
	// ErrUnmappableReturnType is returned when a row source has neither a row type nor a scalar type.
	ErrUnmappableReturnType = errors.New("return type cannot be mapped to a GraphQL type")
	// ErrInvalidCursor is returned for cursors that do not belong to the requested ordering.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrConflictingSelection is returned when one response key is requested with two meanings.
	ErrConflictingSelection = errors.New("conflicting selections for response key")
)

// DataColumn is the name of the single output column.
const DataColumn = "__data"

// maxObjectPairs is the number of key/value pairs per json_build_object call;
// Postgres functions take at most 100 arguments.
const maxObjectPairs = 50

// FieldKind selects how a field is rendered.
type FieldKind uint8

const (
	// KindColumn reads an attribute of the current row.
	KindColumn FieldKind = iota
	// KindExpression evaluates a scalar expression over the current row.
	KindExpression
	// KindComputed calls a scalar function in a correlated subquery. Each
	// call gets its own alias.
	KindComputed
	// KindNodeID renders the primary key values of the current row as a global id.
	KindNodeID
	// KindObject selects at most one related or computed row.
	KindObject
	// KindConnection selects a paginated set of rows.
	KindConnection
	// KindList selects every row of a set as a JSON array.
	KindList
)

// Condition renders a boolean expression for the row aliased alias. parent is
// the enclosing row, empty at the root.
type Condition func(alias, parent pgsql.Fragment) pgsql.Fragment

// RowExpr renders an expression over the row aliased alias.
type RowExpr func(alias pgsql.Fragment) pgsql.Fragment

// Source is a relation rows are read from.
type Source struct {
	// From renders the relation. parent is the enclosing row so computed
	// columns can pass it to their function.
	From func(parent pgsql.Fragment) pgsql.Fragment
	// Class is the row type; nil for scalar rows.
	Class *catalog.Class
	// Type and Mod describe scalar rows.
	Type *catalog.Type
	Mod  catalog.Modifier
	// Column names the value column of scalar rows; empty when the row
	// alias is the value itself, as with a function in FROM.
	Column string
	// TypeName is the GraphQL type name used in cursors and node ids.
	TypeName string
	// PrimaryKey lists the key attributes used for node ids.
	PrimaryKey []*catalog.Attribute
	Conditions []Condition
	// AddNullCase renders a row whose columns are all null as null. Functions
	// returning a composite type yield such rows instead of no row.
	AddNullCase bool
}

// Relation is a convenience From for a plain table or view.
func Relation(class *catalog.Class) func(pgsql.Fragment) pgsql.Fragment {
	ident := pgsql.Ident(class.NamespaceName, class.Name)
	return func(pgsql.Fragment) pgsql.Fragment { return ident }
}

// Field is one entry of a ResolveData.
type Field struct {
	// Key is the response key; the decoded row map uses it too.
	Key  string
	Kind FieldKind

	Attribute *catalog.Attribute
	Expr      RowExpr
	Type      *catalog.Type
	Mod       catalog.Modifier

	// TypeName names the type encoded into node ids.
	TypeName string

	Source *Source
	Data   *ResolveData
	Page   *Page
}

// ResolveData is the field-requirement tree for one row.
type ResolveData struct {
	Fields []Field
	index  map[string]int
}

// Add appends f. Adding a key twice merges nested requirements when both
// entries mean the same thing and fails otherwise.
func (d *ResolveData) Add(f Field) error {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	i, ok := d.index[f.Key]
	if !ok {
		d.index[f.Key] = len(d.Fields)
		d.Fields = append(d.Fields, f)
		return nil
	}
	existing := &d.Fields[i]
	if existing.Kind != f.Kind || existing.Attribute != f.Attribute || existing.TypeName != f.TypeName {
		return fmt.Errorf("%w %q", ErrConflictingSelection, f.Key)
	}
	if f.Data == nil {
		return nil
	}
	if existing.Data == nil {
		existing.Data = f.Data
		return nil
	}
	for _, nested := range f.Data.Fields {
		if err := existing.Data.Add(nested); err != nil {
			return err
		}
	}
	return nil
}

// Field returns the field stored under key.
func (d *ResolveData) Field(key string) (Field, bool) {
	if d == nil || d.index == nil {
		return Field{}, false
	}
	i, ok := d.index[key]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// Options bounds page sizes.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Assembler compiles ResolveData trees against a type registry.
type Assembler struct {
	reg  *pgtypes.Registry
	opts Options
}

// New creates an Assembler.
func New(reg *pgtypes.Registry, opts Options) *Assembler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 100
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 1000
	}
	return &Assembler{reg: reg, opts: opts}
}

// Registry returns the registry the assembler tweaks and decodes with.
func (a *Assembler) Registry() *pgtypes.Registry { return a.reg }

// Assemble builds the statement for a root field. with, when not empty, is a
// list of common table expressions prepended to the statement.
func (a *Assembler) Assemble(root Field, with pgsql.Fragment) (pgsql.Fragment, error) {
	expr, err := a.fieldExpr(root, pgsql.Fragment{})
	if err != nil {
		return pgsql.Fragment{}, err
	}
	stmt := pgsql.Concat("select ", expr, " as ", pgsql.Ident(DataColumn))
	if !with.IsEmpty() {
		stmt = pgsql.Concat("with ", with, " ", stmt)
	}
	return stmt, nil
}

// fieldExpr renders the JSON-able value of f for the row aliased parent.
func (a *Assembler) fieldExpr(f Field, parent pgsql.Fragment) (pgsql.Fragment, error) {
	switch f.Kind {
	case KindColumn:
		if f.Attribute == nil {
			return pgsql.Fragment{}, fmt.Errorf("column field %q has no attribute", f.Key)
		}
		t, ok := a.reg.Catalog().Type(f.Attribute.TypeID)
		if !ok {
			return pgsql.Fragment{}, fmt.Errorf("column %s: %w", f.Attribute.Name, pgtypes.ErrUnknownType)
		}
		return a.reg.TweakValue(pgsql.Concat(parent, ".", pgsql.Ident(f.Attribute.Name)), t, f.Attribute.TypeModifier)
	case KindExpression:
		if f.Type == nil || f.Expr == nil {
			return pgsql.Fragment{}, fmt.Errorf("expression field %q: %w", f.Key, ErrUnmappableReturnType)
		}
		return a.reg.TweakValue(f.Expr(parent), f.Type, f.Mod)
	case KindComputed:
		if f.Source == nil || f.Source.Type == nil {
			return pgsql.Fragment{}, fmt.Errorf("computed field %q: %w", f.Key, ErrUnmappableReturnType)
		}
		alias := pgsql.NewAlias(f.Key)
		value, err := a.reg.TweakValue(alias, f.Source.Type, f.Source.Mod)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		return pgsql.Concat("(select ", value, " from ", f.Source.From(parent), " as ", alias, ")"), nil
	case KindNodeID:
		return a.nodeIDExpr(f.Source, parent)
	case KindObject:
		return a.objectFieldExpr(f, parent)
	case KindList:
		return a.listExpr(f, parent)
	case KindConnection:
		return a.connectionExpr(f, parent)
	default:
		return pgsql.Fragment{}, fmt.Errorf("field %q: unknown kind %d", f.Key, f.Kind)
	}
}

func (a *Assembler) nodeIDExpr(src *Source, alias pgsql.Fragment) (pgsql.Fragment, error) {
	if src == nil || len(src.PrimaryKey) == 0 {
		return pgsql.Fragment{}, errors.New("node id requested for a row without a primary key")
	}
	parts := make([]pgsql.Fragment, 0, len(src.PrimaryKey))
	for _, attr := range src.PrimaryKey {
		t, ok := a.reg.Catalog().Type(attr.TypeID)
		if !ok {
			return pgsql.Fragment{}, fmt.Errorf("key column %s: %w", attr.Name, pgtypes.ErrUnknownType)
		}
		part, err := a.reg.TweakValue(pgsql.Concat(alias, ".", pgsql.Ident(attr.Name)), t, attr.TypeModifier)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		parts = append(parts, part)
	}
	return pgsql.Concat("json_build_array(", pgsql.Join(parts, ", "), ")"), nil
}

// rowExpr renders one row of src aliased alias: an object for class rows, the
// tweaked value for scalar rows.
func (a *Assembler) rowExpr(src *Source, data *ResolveData, alias pgsql.Fragment) (pgsql.Fragment, error) {
	if src.Class == nil {
		if src.Type == nil {
			return pgsql.Fragment{}, ErrUnmappableReturnType
		}
		value := alias
		if src.Column != "" {
			value = pgsql.Concat(alias, ".", pgsql.Ident(src.Column))
		}
		return a.reg.TweakValue(value, src.Type, src.Mod)
	}
	obj, err := a.objectExpr(data, alias)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	if src.AddNullCase {
		return pgsql.Concat("(case when (", alias, " is null) then null else ", obj, " end)"), nil
	}
	return obj, nil
}

// objectExpr renders json_build_object over the fields of data, chunked to
// stay below the function argument limit.
func (a *Assembler) objectExpr(data *ResolveData, alias pgsql.Fragment) (pgsql.Fragment, error) {
	var fields []Field
	if data != nil {
		fields = data.Fields
	}
	pairs := make([]pgsql.Fragment, 0, len(fields))
	for _, f := range fields {
		expr, err := a.fieldExpr(f, alias)
		if err != nil {
			return pgsql.Fragment{}, err
		}
		pairs = append(pairs, pgsql.Concat(pgsql.Literal(f.Key), ", ", expr))
	}
	if len(pairs) <= maxObjectPairs {
		return pgsql.Concat("json_build_object(", pgsql.Join(pairs, ", "), ")"), nil
	}
	var chunks []pgsql.Fragment
	for start := 0; start < len(pairs); start += maxObjectPairs {
		end := min(start+maxObjectPairs, len(pairs))
		chunks = append(chunks, pgsql.Concat("json_build_object(", pgsql.Join(pairs[start:end], ", "), ")::jsonb"))
	}
	return pgsql.Concat("(", pgsql.Join(chunks, " || "), ")::json"), nil
}

func (a *Assembler) whereClause(src *Source, alias, parent pgsql.Fragment, extra ...pgsql.Fragment) pgsql.Fragment {
	conds := make([]pgsql.Fragment, 0, len(src.Conditions)+len(extra))
	for _, c := range src.Conditions {
		conds = append(conds, pgsql.Concat("(", c(alias, parent), ")"))
	}
	for _, e := range extra {
		if !e.IsEmpty() {
			conds = append(conds, pgsql.Concat("(", e, ")"))
		}
	}
	if len(conds) == 0 {
		return pgsql.Fragment{}
	}
	return pgsql.Concat(" where ", pgsql.Join(conds, " and "))
}

func (a *Assembler) objectFieldExpr(f Field, parent pgsql.Fragment) (pgsql.Fragment, error) {
	if f.Source == nil {
		return pgsql.Fragment{}, fmt.Errorf("object field %q has no source", f.Key)
	}
	alias := pgsql.NewAlias(f.Key)
	row, err := a.rowExpr(f.Source, f.Data, alias)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return pgsql.Concat(
		"(select ", row, " from ", f.Source.From(parent), " as ", alias,
		a.whereClause(f.Source, alias, parent), " limit 1)",
	), nil
}

func (a *Assembler) listExpr(f Field, parent pgsql.Fragment) (pgsql.Fragment, error) {
	if f.Source == nil {
		return pgsql.Fragment{}, fmt.Errorf("list field %q has no source", f.Key)
	}
	alias := pgsql.NewAlias(f.Key)
	row, err := a.rowExpr(f.Source, f.Data, alias)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	return pgsql.Concat(
		"coalesce((select json_agg(", row, ") from ", f.Source.From(parent), " as ", alias,
		a.whereClause(f.Source, alias, parent), "), '[]'::json)",
	), nil
}
