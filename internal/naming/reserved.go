package naming

import "strings"

// graphqlReservedTypeWords contains GraphQL keywords, built-in types and the
// fixed type names every generated schema carries.
var graphqlReservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":     true,
	"float":   true,
	"string":  true,
	"boolean": true,
	"id":      true,

	"true":  true,
	"false": true,
	"null":  true,

	"node":     true,
	"pageinfo": true,
	"cursor":   true,
}

func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	return graphqlReservedTypeWords[lowerName]
}

// isReservedFieldName reports names that would shadow introspection or the
// node id field.
func isReservedFieldName(name string) bool {
	if strings.HasPrefix(name, "__") {
		return true
	}
	return name == "nodeId"
}
