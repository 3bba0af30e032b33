package schema

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql/language/ast"
)

// Limits bounds the estimated cost of one root field. Zero disables a check.
type Limits struct {
	MaxDepth      int
	MaxComplexity int
	MaxRows       int
}

// Cost is the estimated cost of a root field.
type Cost struct {
	Depth      int
	Complexity int
	Rows       int
}

// EstimateCost estimates the cost of field from its selection and page sizes.
// Connections without first or last count as fallbackLimit rows.
func EstimateCost(field *ast.Field, fallbackLimit int) Cost {
	if field == nil {
		return Cost{}
	}
	return Cost{
		Depth:      selectionDepth(field, 1),
		Complexity: estimateComplexity(field, fallbackLimit),
		Rows:       estimateRows(field, fallbackLimit),
	}
}

// Check returns an error when cost exceeds any limit.
func (l Limits) Check(cost Cost) error {
	if l.MaxDepth > 0 && cost.Depth > l.MaxDepth {
		return fmt.Errorf("query exceeds maximum depth of %d (depth: %d)", l.MaxDepth, cost.Depth)
	}
	if l.MaxComplexity > 0 && cost.Complexity > l.MaxComplexity {
		return fmt.Errorf("query exceeds maximum complexity of %d (complexity: %d)", l.MaxComplexity, cost.Complexity)
	}
	if l.MaxRows > 0 && cost.Rows > l.MaxRows {
		return fmt.Errorf("query exceeds maximum rows of %d (estimated: %d)", l.MaxRows, cost.Rows)
	}
	return nil
}

func (l Limits) enabled() bool {
	return l.MaxDepth > 0 || l.MaxComplexity > 0 || l.MaxRows > 0
}

// isConnectionField reports whether field selects connection scaffolding.
func isConnectionField(field *ast.Field) bool {
	if field.SelectionSet == nil {
		return false
	}
	for _, sel := range field.SelectionSet.Selections {
		sub, ok := sel.(*ast.Field)
		if !ok || sub.Name == nil {
			continue
		}
		switch sub.Name.Value {
		case "nodes", "edges", "pageInfo", "totalCount":
			return true
		}
	}
	return false
}

// dataSelections unwraps nodes and edges { node } so wrapper levels do not
// count towards depth or cost.
func dataSelections(field *ast.Field) []ast.Selection {
	if field.SelectionSet == nil {
		return nil
	}
	if !isConnectionField(field) {
		return field.SelectionSet.Selections
	}
	var result []ast.Selection
	for _, sel := range field.SelectionSet.Selections {
		sub, ok := sel.(*ast.Field)
		if !ok || sub.Name == nil || sub.SelectionSet == nil {
			continue
		}
		switch sub.Name.Value {
		case "edges":
			for _, edgeSel := range sub.SelectionSet.Selections {
				node, ok := edgeSel.(*ast.Field)
				if ok && node.Name != nil && node.Name.Value == "node" && node.SelectionSet != nil {
					result = append(result, node.SelectionSet.Selections...)
				}
			}
		case "nodes":
			result = append(result, sub.SelectionSet.Selections...)
		}
	}
	return result
}

func selectionDepth(field *ast.Field, current int) int {
	maxDepth := current
	for _, sel := range dataSelections(field) {
		sub, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if depth := selectionDepth(sub, current+1); depth > maxDepth {
			maxDepth = depth
		}
	}
	return maxDepth
}

func estimateRows(field *ast.Field, fallback int) int {
	limit := pageSize(field, fallback)
	rows := limit
	for _, sel := range dataSelections(field) {
		if sub, ok := sel.(*ast.Field); ok {
			rows += limit * estimateRows(sub, fallback)
		}
	}
	return rows
}

func estimateComplexity(field *ast.Field, fallback int) int {
	limit := pageSize(field, fallback)
	selections := dataSelections(field)
	if len(selections) == 0 {
		return limit
	}
	complexity := 1
	for _, sel := range selections {
		if sub, ok := sel.(*ast.Field); ok {
			complexity += limit * estimateComplexity(sub, fallback)
		}
	}
	return complexity
}

// pageSize is 1 for plain fields and the requested page size for connections.
func pageSize(field *ast.Field, fallback int) int {
	if !isConnectionField(field) {
		return 1
	}
	for _, name := range []string{"first", "last"} {
		if n, ok := intLiteralArg(field, name); ok {
			return n
		}
	}
	return fallback
}

func intLiteralArg(field *ast.Field, name string) (int, bool) {
	for _, arg := range field.Arguments {
		if arg == nil || arg.Name == nil || arg.Name.Value != name {
			continue
		}
		if v, ok := arg.Value.(*ast.IntValue); ok {
			n, err := strconv.Atoi(v.Value)
			if err == nil && n >= 0 {
				return n, true
			}
		}
	}
	return 0, false
}
