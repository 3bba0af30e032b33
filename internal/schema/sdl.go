package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/graphql-go/graphql"
)

var builtinScalars = map[string]bool{"String": true, "Int": true, "Float": true, "Boolean": true, "ID": true}

// PrintSchema renders s in the GraphQL schema definition language. Types are
// printed in name order, so the output is stable across builds of the same
// catalog.
func PrintSchema(s graphql.Schema) string {
	typeMap := s.TypeMap()
	names := make([]string, 0, len(typeMap))
	for name := range typeMap {
		if strings.HasPrefix(name, "__") || builtinScalars[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var blocks []string
	if root := schemaDefinition(s); root != "" {
		blocks = append(blocks, root)
	}
	for _, name := range names {
		if block := printType(typeMap[name]); block != "" {
			blocks = append(blocks, block)
		}
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

// schemaDefinition is empty when the roots use their conventional names.
func schemaDefinition(s graphql.Schema) string {
	q, m := s.QueryType(), s.MutationType()
	if (q == nil || q.Name() == "Query") && (m == nil || m.Name() == "Mutation") {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("schema {\n")
	if q != nil {
		fmt.Fprintf(&sb, "  query: %s\n", q.Name())
	}
	if m != nil {
		fmt.Fprintf(&sb, "  mutation: %s\n", m.Name())
	}
	sb.WriteString("}")
	return sb.String()
}

func printType(t graphql.Type) string {
	switch t := t.(type) {
	case *graphql.Scalar:
		return description(t.Description(), "") + "scalar " + t.Name()
	case *graphql.Enum:
		var sb strings.Builder
		sb.WriteString(description(t.Description(), ""))
		fmt.Fprintf(&sb, "enum %s {\n", t.Name())
		values := append([]*graphql.EnumValueDefinition(nil), t.Values()...)
		sort.Slice(values, func(i, j int) bool { return values[i].Name < values[j].Name })
		for _, v := range values {
			sb.WriteString(description(v.Description, "  "))
			fmt.Fprintf(&sb, "  %s%s\n", v.Name, deprecated(v.DeprecationReason))
		}
		sb.WriteString("}")
		return sb.String()
	case *graphql.InputObject:
		var sb strings.Builder
		sb.WriteString(description(t.Description(), ""))
		fmt.Fprintf(&sb, "input %s {\n", t.Name())
		fields := t.Fields()
		for _, name := range sortedKeys(fields) {
			f := fields[name]
			sb.WriteString(description(f.Description(), "  "))
			fmt.Fprintf(&sb, "  %s: %s%s\n", name, f.Type, defaultValue(f.DefaultValue, f.Type))
		}
		sb.WriteString("}")
		return sb.String()
	case *graphql.Interface:
		return printFields(t.Description(), "interface "+t.Name(), t.Fields())
	case *graphql.Object:
		head := "type " + t.Name()
		if ifaces := t.Interfaces(); len(ifaces) > 0 {
			names := make([]string, len(ifaces))
			for i, iface := range ifaces {
				names[i] = iface.Name()
			}
			sort.Strings(names)
			head += " implements " + strings.Join(names, " & ")
		}
		return printFields(t.Description(), head, t.Fields())
	case *graphql.Union:
		types := t.Types()
		names := make([]string, len(types))
		for i, member := range types {
			names[i] = member.Name()
		}
		sort.Strings(names)
		return description(t.Description(), "") + "union " + t.Name() + " = " + strings.Join(names, " | ")
	}
	return ""
}

func printFields(desc, head string, fields graphql.FieldDefinitionMap) string {
	var sb strings.Builder
	sb.WriteString(description(desc, ""))
	sb.WriteString(head + " {\n")
	for _, name := range sortedKeys(fields) {
		f := fields[name]
		sb.WriteString(description(f.Description, "  "))
		sb.WriteString("  " + name)
		if len(f.Args) > 0 {
			args := append([]*graphql.Argument(nil), f.Args...)
			sort.Slice(args, func(i, j int) bool { return args[i].Name() < args[j].Name() })
			sb.WriteString("(\n")
			for _, arg := range args {
				sb.WriteString(description(arg.Description(), "    "))
				fmt.Fprintf(&sb, "    %s: %s%s\n", arg.Name(), arg.Type, defaultValue(arg.DefaultValue, arg.Type))
			}
			sb.WriteString("  )")
		}
		fmt.Fprintf(&sb, ": %s%s\n", f.Type, deprecated(f.DeprecationReason))
	}
	sb.WriteString("}")
	return sb.String()
}

func description(text, indent string) string {
	if text == "" {
		return ""
	}
	if !strings.Contains(text, "\n") && !strings.Contains(text, `"`) {
		return indent + `"""` + text + `"""` + "\n"
	}
	lines := strings.Split(strings.ReplaceAll(text, `"""`, `\"""`), "\n")
	var sb strings.Builder
	sb.WriteString(indent + `"""` + "\n")
	for _, line := range lines {
		sb.WriteString(indent + line + "\n")
	}
	sb.WriteString(indent + `"""` + "\n")
	return sb.String()
}

func deprecated(reason string) string {
	if reason == "" {
		return ""
	}
	return " @deprecated(reason: " + quote(reason) + ")"
}

func defaultValue(v any, t graphql.Input) string {
	if v == nil {
		return ""
	}
	return " = " + printValue(v, t)
}

// printValue renders an internal value of t as a GraphQL literal.
func printValue(v any, t graphql.Input) string {
	if v == nil {
		return "null"
	}
	switch t := t.(type) {
	case *graphql.NonNull:
		return printValue(v, t.OfType.(graphql.Input))
	case *graphql.List:
		items, ok := v.([]any)
		if !ok {
			return printValue(v, t.OfType.(graphql.Input))
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = printValue(item, t.OfType.(graphql.Input))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *graphql.Enum:
		if name, ok := t.Serialize(v).(string); ok {
			return name
		}
	case *graphql.InputObject:
		obj, ok := v.(map[string]any)
		if !ok {
			break
		}
		fields := t.Fields()
		var parts []string
		for _, name := range sortedKeys(obj) {
			if f, ok := fields[name]; ok {
				parts = append(parts, name+": "+printValue(obj[name], f.Type))
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *graphql.Scalar:
		v = t.Serialize(v)
	}
	if s, ok := v.(string); ok {
		return quote(s)
	}
	return fmt.Sprint(v)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
