package assembler

import (
	"fmt"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/cursor"
	"pg-graphql/internal/pgsql"
)

// PaginationMode is the direction a page is read in.
type PaginationMode string

const (
	PaginationModeForward  PaginationMode = "forward"
	PaginationModeBackward PaginationMode = "backward"
)

// OrderTerm is one ORDER BY entry of a connection. Nulls sort the way
// Postgres places them by default: last ascending, first descending.
type OrderTerm struct {
	Expr RowExpr
	Type *catalog.Type
	Mod  catalog.Modifier
	Desc bool
	// NotNull drops the null handling from keyset predicates.
	NotNull bool
}

func (t OrderTerm) direction() string {
	if t.Desc {
		return "DESC"
	}
	return "ASC"
}

// Page holds the pagination arguments of a connection. An empty Order reads
// rows in natural order with offset cursors.
type Page struct {
	First  *int
	Last   *int
	Offset int
	After  string
	Before string
	Order  []OrderTerm
	// OrderKey identifies the ordering inside cursors, e.g. "NAME_ASC,PRIMARY_KEY_ASC".
	OrderKey   string
	TotalCount bool
}

// window is the resolved form of a Page.
type window struct {
	mode    PaginationMode
	limit   int
	offset  int
	natural bool
	after   *cursor.Cursor
	before  *cursor.Cursor
	// start is the number of rows preceding a natural page.
	start int
	// bounded marks natural pages that end at a before cursor.
	bounded bool
}

func (p *Page) directions() []string {
	out := make([]string, len(p.Order))
	for i, term := range p.Order {
		out[i] = term.direction()
	}
	return out
}

func (a *Assembler) window(src *Source, p *Page) (window, error) {
	w := window{mode: PaginationModeForward, limit: min(a.opts.DefaultLimit, a.opts.MaxLimit), offset: p.Offset, natural: len(p.Order) == 0}
	if p.Offset < 0 {
		return window{}, fmt.Errorf("offset must be non-negative")
	}
	hasFirst, hasLast := p.First != nil, p.Last != nil
	hasAfter, hasBefore := p.After != "", p.Before != ""
	switch {
	case hasFirst && hasLast:
		return window{}, fmt.Errorf("cannot use both first and last")
	case hasAfter && hasBefore:
		return window{}, fmt.Errorf("cannot use both after and before")
	case hasBefore && !hasLast:
		return window{}, fmt.Errorf("before requires last")
	case hasLast && hasAfter:
		return window{}, fmt.Errorf("last cannot be used with after")
	}
	if hasFirst {
		n, err := a.limitArg("first", *p.First)
		if err != nil {
			return window{}, err
		}
		w.limit = n
	}
	if hasLast {
		n, err := a.limitArg("last", *p.Last)
		if err != nil {
			return window{}, err
		}
		w.limit = n
		w.mode = PaginationModeBackward
	}

	orderKey, directions := p.OrderKey, p.directions()
	if w.natural {
		orderKey, directions = cursor.NaturalKey, []string{"ASC"}
	}
	decode := func(name, raw string) (*cursor.Cursor, error) {
		c, err := cursor.Decode(raw)
		if err == nil {
			err = c.Validate(src.TypeName, orderKey, directions)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidCursor, name, err)
		}
		return &c, nil
	}
	var err error
	if hasAfter {
		if w.after, err = decode("after", p.After); err != nil {
			return window{}, err
		}
	}
	if hasBefore {
		if w.before, err = decode("before", p.Before); err != nil {
			return window{}, err
		}
	}
	if !w.natural {
		return w, nil
	}

	// Natural order: translate cursors into row positions.
	w.start = p.Offset
	if w.after != nil {
		pos, err := w.after.Position()
		if err != nil {
			return window{}, fmt.Errorf("%w: after: %w", ErrInvalidCursor, err)
		}
		w.start += pos
	}
	if w.mode == PaginationModeBackward {
		if w.before == nil {
			return window{}, fmt.Errorf("last requires before when no order is given")
		}
		pos, err := w.before.Position()
		if err != nil {
			return window{}, fmt.Errorf("%w: before: %w", ErrInvalidCursor, err)
		}
		end := max(pos-1, 0)
		w.start = max(end-w.limit, 0)
		w.limit = end - w.start
		w.bounded = true
		w.mode = PaginationModeForward
	}
	return w, nil
}

func (a *Assembler) limitArg(name string, n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%s must be non-negative", name)
	}
	return min(n, a.opts.MaxLimit), nil
}

// seek renders the keyset predicate selecting rows strictly after c in the
// order of terms, or strictly before it when reverse is set. Null cursor
// values compare with "is null"; a column read in ascending order has its
// nulls after every value, in descending order before.
func seek(terms []OrderTerm, c *cursor.Cursor, alias pgsql.Fragment, reverse bool) pgsql.Fragment {
	exprs := make([]pgsql.Fragment, len(terms))
	values := make([]pgsql.Fragment, len(terms))
	for i, term := range terms {
		exprs[i] = term.Expr(alias)
		if c.Values[i] != nil {
			values[i] = pgsql.Concat(pgsql.Value(*c.Values[i]), "::", pgsql.Ident(term.Type.NamespaceName, term.Type.Name))
		}
	}
	branches := make([]pgsql.Fragment, 0, len(terms))
	for i, term := range terms {
		next, ok := seekStep(term, exprs[i], values[i], term.Desc != reverse)
		if !ok {
			continue
		}
		parts := make([]pgsql.Fragment, 0, i+1)
		for j := 0; j < i; j++ {
			if values[j].IsEmpty() {
				parts = append(parts, pgsql.Concat(exprs[j], " is null"))
			} else {
				parts = append(parts, pgsql.Concat(exprs[j], " = ", values[j]))
			}
		}
		parts = append(parts, next)
		branches = append(branches, pgsql.Concat("(", pgsql.Join(parts, " and "), ")"))
	}
	if len(branches) == 0 {
		return pgsql.Raw("false")
	}
	return pgsql.Join(branches, " or ")
}

// seekStep renders the condition for expr to come strictly after value when
// read in the given direction. ok is false when nothing can follow.
func seekStep(term OrderTerm, expr, value pgsql.Fragment, desc bool) (pgsql.Fragment, bool) {
	switch {
	case value.IsEmpty() && desc:
		return pgsql.Concat(expr, " is not null"), true
	case value.IsEmpty():
		return pgsql.Fragment{}, false
	case desc:
		return pgsql.Concat(expr, " < ", value), true
	case term.NotNull:
		return pgsql.Concat(expr, " > ", value), true
	default:
		return pgsql.Concat("(", expr, " > ", value, " or ", expr, " is null)"), true
	}
}

func orderClause(terms []OrderTerm, alias pgsql.Fragment, reverse bool) pgsql.Fragment {
	parts := make([]pgsql.Fragment, len(terms))
	for i, term := range terms {
		dir := " asc"
		if term.Desc != reverse {
			dir = " desc"
		}
		parts[i] = pgsql.Concat(term.Expr(alias), dir)
	}
	return pgsql.Join(parts, ", ")
}

// connectionExpr renders
//
//	json_build_object('rows', [{c: [order values], n: row}, ...], 'totalCount', n)
//
// with one row more than requested so the page boundaries can be detected
// when decoding.
func (a *Assembler) connectionExpr(f Field, parent pgsql.Fragment) (pgsql.Fragment, error) {
	if f.Source == nil || f.Page == nil {
		return pgsql.Fragment{}, fmt.Errorf("connection field %q needs a source and a page", f.Key)
	}
	src, page := f.Source, f.Page
	w, err := a.window(src, page)
	if err != nil {
		return pgsql.Fragment{}, err
	}
	alias := pgsql.NewAlias(src.TypeName)
	row, err := a.rowExpr(src, f.Data, alias)
	if err != nil {
		return pgsql.Fragment{}, err
	}

	fetch := w.limit + 1
	if w.bounded {
		fetch = w.limit
	}
	reverse := w.mode == PaginationModeBackward
	var inner pgsql.Fragment
	if w.natural {
		inner = pgsql.Concat(
			"select null::json as \"c\", ", row, " as \"n\", row_number() over () as \"i\" from ", src.From(parent), " as ", alias,
			a.whereClause(src, alias, parent),
			" limit ", pgsql.Raw(fmt.Sprint(fetch)), " offset ", pgsql.Raw(fmt.Sprint(w.start)),
		)
	} else {
		cursorValues := make([]pgsql.Fragment, len(page.Order))
		for i, term := range page.Order {
			v, err := a.reg.TweakValue(term.Expr(alias), term.Type, term.Mod)
			if err != nil {
				return pgsql.Fragment{}, err
			}
			cursorValues[i] = v
		}
		var bound pgsql.Fragment
		if w.after != nil {
			bound = seek(page.Order, w.after, alias, false)
		} else if w.before != nil {
			bound = seek(page.Order, w.before, alias, true)
		}
		order := orderClause(page.Order, alias, reverse)
		inner = pgsql.Concat(
			"select json_build_array(", pgsql.Join(cursorValues, ", "), ") as \"c\", ", row, " as \"n\", ",
			"row_number() over (order by ", order, ") as \"i\" from ", src.From(parent), " as ", alias,
			a.whereClause(src, alias, parent, bound),
			" order by ", order,
			" limit ", pgsql.Raw(fmt.Sprint(fetch)), " offset ", pgsql.Raw(fmt.Sprint(w.offset)),
		)
	}

	pageAlias := pgsql.NewAlias("page")
	iDir := ""
	if reverse {
		iDir = " desc"
	}
	rows := pgsql.Concat(
		"coalesce((select json_agg(json_build_object('c', ", pageAlias, ".\"c\", 'n', ", pageAlias, ".\"n\")",
		" order by ", pageAlias, ".\"i\"", iDir, ") from (", inner, ") as ", pageAlias, "), '[]'::json)",
	)
	pairs := []pgsql.Fragment{pgsql.Concat("'rows', ", rows)}
	if page.TotalCount {
		countAlias := pgsql.NewAlias(src.TypeName)
		pairs = append(pairs, pgsql.Concat(
			"'totalCount', (select count(*) from ", src.From(parent), " as ", countAlias,
			a.whereClause(src, countAlias, parent), ")",
		))
	}
	return pgsql.Concat("json_build_object(", pgsql.Join(pairs, ", "), ")"), nil
}
