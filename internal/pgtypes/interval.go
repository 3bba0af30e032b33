package pgtypes

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/jackc/pgx/v5/pgtype"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
)

// intervalKeys is the order in which interval parts are written back to Postgres.
var intervalKeys = []string{"seconds", "minutes", "hours", "days", "months", "years"}

func intervalTypes() (*graphql.Object, *graphql.InputObject) {
	describe := map[string]string{
		"seconds": "A quantity of seconds. This is the only non-integer field, as all the other fields will dump their overflow into a smaller unit of time. Intervals don’t have a smaller unit than seconds.",
		"minutes": "A quantity of minutes.",
		"hours":   "A quantity of hours.",
		"days":    "A quantity of days.",
		"months":  "A quantity of months.",
		"years":   "A quantity of years.",
	}
	fieldType := func(key string) graphql.Output {
		if key == "seconds" {
			return graphql.Float
		}
		return graphql.Int
	}
	out := graphql.Fields{}
	in := graphql.InputObjectConfigFieldMap{}
	for _, key := range intervalKeys {
		out[key] = &graphql.Field{Type: fieldType(key), Description: describe[key]}
		in[key] = &graphql.InputObjectFieldConfig{Type: fieldType(key), Description: describe[key]}
	}
	const description = "An interval of time that has passed where the smallest distinct unit is a second."
	return graphql.NewObject(graphql.ObjectConfig{Name: "Interval", Description: description, Fields: out}),
		graphql.NewInputObject(graphql.InputObjectConfig{Name: "IntervalInput", Description: description, Fields: in})
}

// decodeInterval splits the text form of an interval into its parts.
func decodeInterval(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("interval: unexpected %T: %w", v, ErrTypeMismatch)
	}
	var iv pgtype.Interval
	if err := iv.Scan(s); err != nil {
		return nil, fmt.Errorf("interval %q: %w", s, err)
	}
	micros := iv.Microseconds
	hours := micros / 3_600_000_000
	micros -= hours * 3_600_000_000
	minutes := micros / 60_000_000
	micros -= minutes * 60_000_000
	return map[string]any{
		"years":   int(iv.Months / 12),
		"months":  int(iv.Months % 12),
		"days":    int(iv.Days),
		"hours":   int(hours),
		"minutes": int(minutes),
		"seconds": float64(micros) / 1e6,
	}, nil
}

// encodeInterval renders the non-zero parts as "N unit" pairs.
func encodeInterval(v any, _ catalog.Modifier) (pgsql.Fragment, error) {
	parts, ok := v.(map[string]any)
	if !ok {
		return pgsql.Fragment{}, fmt.Errorf("interval: expected object, got %T: %w", v, ErrTypeMismatch)
	}
	var words []string
	for _, key := range intervalKeys {
		n, ok := intervalPart(parts[key])
		if !ok || n == 0 {
			continue
		}
		words = append(words, strconv.FormatFloat(n, 'f', -1, 64)+" "+key)
	}
	if len(words) == 0 {
		return pgsql.Value("0 seconds"), nil
	}
	return pgsql.Value(strings.Join(words, " ")), nil
}

func intervalPart(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
