package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form. Overrides match the
// whole word or its final underscore-separated segment ("blog_person" -> "blog_people").
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form, honouring overrides
// the same way Pluralize does.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if override, ok := overrides[word]; ok {
		return override, true
	}
	idx := strings.LastIndex(word, "_")
	if idx < 0 || idx == len(word)-1 {
		return "", false
	}
	if override, ok := overrides[word[idx+1:]]; ok {
		return word[:idx+1] + override, true
	}
	return "", false
}
