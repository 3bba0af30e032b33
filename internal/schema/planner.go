package schema

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"pg-graphql/internal/assembler"
)

// fieldPlan turns one selected field of a row type into an assembler field.
type fieldPlan struct {
	args graphql.FieldConfigArgument
	plan func(pc *planContext, key string, field *ast.Field, args map[string]any) (assembler.Field, error)
}

// planContext walks the selection of one root field.
type planContext struct {
	b         *Builder
	fragments map[string]ast.Definition
	vars      map[string]interface{}
}

func newPlanContext(b *Builder, info graphql.ResolveInfo) *planContext {
	return &planContext{b: b, fragments: info.Fragments, vars: info.VariableValues}
}

func responseKey(field *ast.Field) string {
	if field.Alias != nil && field.Alias.Value != "" {
		return field.Alias.Value
	}
	if field.Name == nil {
		return ""
	}
	return field.Name.Value
}

func firstField(fields []*ast.Field) *ast.Field {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

// selectionSets returns the selection sets of every AST node merged into one response key.
func selectionSets(fields []*ast.Field) []*ast.SelectionSet {
	sets := make([]*ast.SelectionSet, 0, len(fields))
	for _, f := range fields {
		if f != nil && f.SelectionSet != nil {
			sets = append(sets, f.SelectionSet)
		}
	}
	return sets
}

// collect flattens the fields of sets that apply to typeName, expanding
// fragments and honouring @include and @skip.
func (pc *planContext) collect(typeName string, sets []*ast.SelectionSet) ([]*ast.Field, error) {
	var out []*ast.Field
	visited := map[string]bool{}
	var walk func(set *ast.SelectionSet) error
	walk = func(set *ast.SelectionSet) error {
		if set == nil {
			return nil
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				ok, err := pc.included(sel.Directives)
				if err != nil {
					return err
				}
				if ok {
					out = append(out, sel)
				}
			case *ast.InlineFragment:
				ok, err := pc.included(sel.Directives)
				if err != nil {
					return err
				}
				if !ok || !pc.b.typeApplies(sel.TypeCondition, typeName) {
					continue
				}
				if err := walk(sel.SelectionSet); err != nil {
					return err
				}
			case *ast.FragmentSpread:
				if sel.Name == nil || visited[sel.Name.Value] {
					continue
				}
				ok, err := pc.included(sel.Directives)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				visited[sel.Name.Value] = true
				def, ok := pc.fragments[sel.Name.Value].(*ast.FragmentDefinition)
				if !ok {
					return fmt.Errorf("unknown fragment %q", sel.Name.Value)
				}
				if !pc.b.typeApplies(def.TypeCondition, typeName) {
					continue
				}
				if err := walk(def.SelectionSet); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, set := range sets {
		if err := walk(set); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// included evaluates @skip and @include.
func (pc *planContext) included(directives []*ast.Directive) (bool, error) {
	for _, d := range directives {
		if d == nil || d.Name == nil {
			continue
		}
		name := d.Name.Value
		if name != "skip" && name != "include" {
			continue
		}
		var cond bool
		for _, arg := range d.Arguments {
			if arg == nil || arg.Name == nil || arg.Name.Value != "if" {
				continue
			}
			v, err := valueFromAST(arg.Value, graphql.NewNonNull(graphql.Boolean), pc.vars)
			if err != nil {
				return false, fmt.Errorf("@%s: %w", name, err)
			}
			cond, _ = v.(bool)
		}
		if name == "skip" && cond {
			return false, nil
		}
		if name == "include" && !cond {
			return false, nil
		}
	}
	return true, nil
}

// rowData plans the fields selected on a row of typeName. Fields without a
// plan, including introspection fields, are resolved by graphql-go alone.
func (pc *planContext) rowData(typeName string, sets []*ast.SelectionSet) (*assembler.ResolveData, error) {
	data := &assembler.ResolveData{}
	fields, err := pc.collect(typeName, sets)
	if err != nil {
		return nil, err
	}
	plans := pc.b.plans[typeName]
	for _, field := range fields {
		if field.Name == nil || strings.HasPrefix(field.Name.Value, "__") {
			continue
		}
		plan, ok := plans[field.Name.Value]
		if !ok {
			continue
		}
		args, err := argumentValues(plan.args, field, pc.vars)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", typeName, field.Name.Value, err)
		}
		f, err := plan.plan(pc, responseKey(field), field, args)
		if err != nil {
			return nil, err
		}
		if err := data.Add(f); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// connectionData merges the row selections found under nodes and
// edges { node } of a connection field, and reports whether totalCount is
// requested.
func (pc *planContext) connectionData(conn connectionTypes, sets []*ast.SelectionSet) (*assembler.ResolveData, bool, error) {
	fields, err := pc.collect(conn.connection.Name(), sets)
	if err != nil {
		return nil, false, err
	}
	var (
		rowSets    []*ast.SelectionSet
		totalCount bool
	)
	for _, field := range fields {
		if field.Name == nil {
			continue
		}
		switch field.Name.Value {
		case "nodes":
			rowSets = append(rowSets, field.SelectionSet)
		case "totalCount":
			totalCount = true
		case "edges":
			edgeFields, err := pc.collect(conn.edge.Name(), []*ast.SelectionSet{field.SelectionSet})
			if err != nil {
				return nil, false, err
			}
			for _, ef := range edgeFields {
				if ef.Name != nil && ef.Name.Value == "node" {
					rowSets = append(rowSets, ef.SelectionSet)
				}
			}
		}
	}
	if conn.rowTypeName == "" {
		return nil, totalCount, nil
	}
	data, err := pc.rowData(conn.rowTypeName, rowSets)
	if err != nil {
		return nil, false, err
	}
	return data, totalCount, nil
}

// payloadData plans the row selected under the field named rowField of a
// mutation payload.
func (pc *planContext) payloadData(payloadType, rowField, rowTypeName string, sets []*ast.SelectionSet) (*assembler.ResolveData, error) {
	fields, err := pc.collect(payloadType, sets)
	if err != nil {
		return nil, err
	}
	var rowSets []*ast.SelectionSet
	for _, field := range fields {
		if field.Name != nil && field.Name.Value == rowField && field.SelectionSet != nil {
			rowSets = append(rowSets, field.SelectionSet)
		}
	}
	if rowTypeName == "" {
		return nil, nil
	}
	return pc.rowData(rowTypeName, rowSets)
}
