// Package pgsql is a small SQL fragment builder for Postgres.
//
// Fragments are immutable trees of raw text, quoted identifiers, bound values
// and symbolic aliases. Compile flattens a tree into query text with $n
// placeholders plus the positional argument list.
package pgsql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

type nodeKind uint8

const (
	nodeRaw nodeKind = iota
	nodeIdent
	nodeValue
	nodeAlias
	nodeSqlizer
)

type node struct {
	kind    nodeKind
	text    string
	names   []string
	value   any
	alias   *aliasSymbol
	sqlizer sq.Sqlizer
}

type aliasSymbol struct {
	hint string
}

// Fragment is a piece of SQL. The zero value is empty.
type Fragment struct {
	nodes []node
}

// Null is the SQL null literal.
var Null = Raw("null")

// Raw wraps trusted SQL text. Never pass user input to Raw.
func Raw(text string) Fragment {
	return Fragment{nodes: []node{{kind: nodeRaw, text: text}}}
}

// Ident renders a dot-separated, quoted identifier such as "app"."users".
func Ident(names ...string) Fragment {
	return Fragment{nodes: []node{{kind: nodeIdent, names: append([]string(nil), names...)}}}
}

// Value binds v as a positional parameter.
func Value(v any) Fragment {
	return Fragment{nodes: []node{{kind: nodeValue, value: v}}}
}

// Literal renders s as an inline, quoted string literal.
func Literal(s string) Fragment {
	return Raw(pq.QuoteLiteral(s))
}

// NewAlias returns a fragment standing for a unique table alias. Every alias
// created by NewAlias compiles to a distinct name within one statement.
func NewAlias(hint string) Fragment {
	return Fragment{nodes: []node{{kind: nodeAlias, alias: &aliasSymbol{hint: hint}}}}
}

// FromSqlizer embeds a squirrel expression. Its ? placeholders become positional parameters.
func FromSqlizer(s sq.Sqlizer) Fragment {
	return Fragment{nodes: []node{{kind: nodeSqlizer, sqlizer: s}}}
}

// Concat joins parts without a separator. Strings are raw SQL, Fragments are
// embedded, squirrel Sqlizers are embedded, and anything else is bound as a value.
func Concat(parts ...any) Fragment {
	var out Fragment
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			if v != "" {
				out.nodes = append(out.nodes, node{kind: nodeRaw, text: v})
			}
		case Fragment:
			out.nodes = append(out.nodes, v.nodes...)
		case sq.Sqlizer:
			out.nodes = append(out.nodes, node{kind: nodeSqlizer, sqlizer: v})
		default:
			out.nodes = append(out.nodes, node{kind: nodeValue, value: v})
		}
	}
	return out
}

// Join concatenates fragments with a raw separator.
func Join(frags []Fragment, sep string) Fragment {
	var out Fragment
	for i, f := range frags {
		if i > 0 && sep != "" {
			out.nodes = append(out.nodes, node{kind: nodeRaw, text: sep})
		}
		out.nodes = append(out.nodes, f.nodes...)
	}
	return out
}

// IsEmpty reports whether the fragment renders nothing.
func (f Fragment) IsEmpty() bool {
	return len(f.nodes) == 0
}

// ToSql renders the fragment with ? placeholders, satisfying squirrel's Sqlizer.
// Literal question marks in raw text are escaped as ?? so placeholder rewriting leaves them intact.
func (f Fragment) ToSql() (string, []any, error) {
	c := &compiler{aliases: make(map[*aliasSymbol]string)}
	if err := c.write(f); err != nil {
		return "", nil, err
	}
	return c.buf.String(), c.args, nil
}

// Compile renders the fragment with $n placeholders.
func Compile(f Fragment) (string, []any, error) {
	text, args, err := f.ToSql()
	if err != nil {
		return "", nil, err
	}
	text, err = sq.Dollar.ReplacePlaceholders(text)
	if err != nil {
		return "", nil, err
	}
	return text, args, nil
}

// MustCompile is Compile for fragments known to be well formed; it panics on error.
func MustCompile(f Fragment) (string, []any) {
	text, args, err := Compile(f)
	if err != nil {
		panic(err)
	}
	return text, args
}

type compiler struct {
	buf     strings.Builder
	args    []any
	aliases map[*aliasSymbol]string
}

func (c *compiler) write(f Fragment) error {
	for _, n := range f.nodes {
		switch n.kind {
		case nodeRaw:
			c.buf.WriteString(strings.ReplaceAll(n.text, "?", "??"))
		case nodeIdent:
			if len(n.names) == 0 {
				return fmt.Errorf("empty identifier")
			}
			for i, name := range n.names {
				if i > 0 {
					c.buf.WriteByte('.')
				}
				c.buf.WriteString(pq.QuoteIdentifier(name))
			}
		case nodeValue:
			c.buf.WriteByte('?')
			c.args = append(c.args, n.value)
		case nodeAlias:
			name, ok := c.aliases[n.alias]
			if !ok {
				name = fmt.Sprintf("__local_%d__", len(c.aliases))
				c.aliases[n.alias] = name
			}
			c.buf.WriteString(name)
		case nodeSqlizer:
			text, args, err := n.sqlizer.ToSql()
			if err != nil {
				return err
			}
			c.buf.WriteString(text)
			c.args = append(c.args, args...)
		}
	}
	return nil
}
