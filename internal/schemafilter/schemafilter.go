// Package schemafilter applies allow/deny filters to catalog classes and attributes.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"pg-graphql/internal/catalog"
)

// Config controls allow/deny filters for tables and columns.
type Config struct {
	AllowTables      []string            `mapstructure:"allow_tables"`
	DenyTables       []string            `mapstructure:"deny_tables"`
	ScanViewsEnabled bool                `mapstructure:"scan_views_enabled"`
	AllowColumns     map[string][]string `mapstructure:"allow_columns"`
	DenyColumns      map[string][]string `mapstructure:"deny_columns"`
	// DenyMutationTables and DenyMutationColumns apply additional restrictions to writes.
	// They do not affect query visibility and are evaluated during mutation schema generation.
	DenyMutationTables  []string            `mapstructure:"deny_mutation_tables"`
	DenyMutationColumns map[string][]string `mapstructure:"deny_mutation_columns"`
}

// ClassAllowed reports whether a class is exposed. Missing allow lists
// default to allow-all; deny rules always win. Standalone composite types are
// not subject to table filters.
func (cfg Config) ClassAllowed(class *catalog.Class) bool {
	if class == nil {
		return false
	}
	switch class.Kind {
	case catalog.ClassCompositeType:
		return true
	case catalog.ClassView, catalog.ClassMaterializedView:
		if !cfg.ScanViewsEnabled {
			return false
		}
	}
	return tableAllowed(class.Name, cfg.AllowTables, cfg.DenyTables)
}

// AttributeAllowed reports whether a column of class is exposed.
func (cfg Config) AttributeAllowed(class *catalog.Class, attr *catalog.Attribute) bool {
	return columnAllowed(class.Name, attr.Name, cfg.AllowColumns, cfg.DenyColumns)
}

// Attributes returns the exposed attributes of class in column order.
func (cfg Config) Attributes(cat *catalog.Catalog, class *catalog.Class) []*catalog.Attribute {
	all := cat.Attributes(class.ID)
	out := make([]*catalog.Attribute, 0, len(all))
	for _, attr := range all {
		if cfg.AttributeAllowed(class, attr) {
			out = append(out, attr)
		}
	}
	return out
}

// KeyAllowed reports whether every column of a key or constraint is exposed.
func (cfg Config) KeyAllowed(class *catalog.Class, attrs []*catalog.Attribute) bool {
	for _, attr := range attrs {
		if !cfg.AttributeAllowed(class, attr) {
			return false
		}
	}
	return true
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	denyPatterns := mergePatterns(deny, table)
	if matchesAny(column, denyPatterns) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// MutationClassAllowed reports whether a class is eligible for mutations.
// It only applies deny lists and keeps matching logic consistent with query filters.
func (cfg Config) MutationClassAllowed(class *catalog.Class) bool {
	return !matchesAny(class.Name, cfg.DenyMutationTables)
}

// MutationAttributeAllowed reports whether a column is eligible for mutation inputs.
func (cfg Config) MutationAttributeAllowed(class *catalog.Class, attr *catalog.Attribute) bool {
	denyPatterns := mergePatterns(cfg.DenyMutationColumns, class.Name)
	return !matchesAny(attr.Name, denyPatterns)
}
