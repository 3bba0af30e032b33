// Package scalars defines the custom GraphQL scalars used to represent Postgres values.
// Values travel as strings wherever the host numeric or time representation would lose information.
package scalars

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// stringScalar builds a scalar whose wire form is a string validated by check.
// check returns the normalised string and whether the input is acceptable.
func stringScalar(name, description string, check func(string) (string, bool)) *graphql.Scalar {
	coerce := func(value interface{}) interface{} {
		var s string
		switch v := value.(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		case *string:
			if v == nil {
				return nil
			}
			s = *v
		case fmt.Stringer:
			s = v.String()
		default:
			return nil
		}
		if out, ok := check(s); ok {
			return out
		}
		return nil
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize:   coerce,
		ParseValue:  coerce,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return coerce(sv.Value)
			}
			return nil
		},
	})
}

// BigInt is a signed 64-bit integer carried as a string.
func BigInt() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "BigInt",
		Description: "A signed eight-byte integer. The upper big integer values are greater than the max value for a JavaScript number. Therefore all big integers will be output as strings and not numbers.",
		Serialize:   coerceBigInt,
		ParseValue:  coerceBigInt,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				return coerceBigInt(v.Value)
			case *ast.StringValue:
				return coerceBigInt(v.Value)
			default:
				return nil
			}
		},
	})
}

func coerceBigInt(value interface{}) interface{} {
	switch v := value.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt64 {
			return nil
		}
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return coerceBigInt(string(v))
	case string:
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			return v
		}
		return nil
	case []byte:
		return coerceBigInt(string(v))
	default:
		return nil
	}
}

// BigFloat is an arbitrary precision decimal carried as a string.
func BigFloat() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "BigFloat",
		Description: "A floating point number that requires more precision than IEEE 754 binary 64",
		Serialize:   coerceBigFloat,
		ParseValue:  coerceBigFloat,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.StringValue:
				return coerceBigFloat(v.Value)
			case *ast.IntValue:
				return coerceBigFloat(v.Value)
			case *ast.FloatValue:
				return coerceBigFloat(v.Value)
			default:
				return nil
			}
		},
	})
}

func coerceBigFloat(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if v == "NaN" || v == "Infinity" || v == "-Infinity" {
			return v
		}
		if _, ok := new(big.Float).SetString(v); ok {
			return v
		}
		return nil
	case []byte:
		return coerceBigFloat(string(v))
	case json.Number:
		return string(v)
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil
	}
}

var dateLayouts = []string{"2006-01-02"}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

var timeLayouts = []string{
	"15:04:05.999999999Z07:00",
	"15:04:05.999999999Z07",
	"15:04:05.999999999",
	"15:04",
}

func matchesLayout(layouts []string) func(string) (string, bool) {
	return func(s string) (string, bool) {
		for _, layout := range layouts {
			if _, err := time.Parse(layout, s); err == nil {
				return s, true
			}
		}
		// infinity is valid for dates and timestamps
		if s == "infinity" || s == "-infinity" {
			return s, true
		}
		return "", false
	}
}

// Date is a calendar date in YYYY-MM-DD form.
func Date() *graphql.Scalar {
	return temporalScalar("Date", "The day, does not include a time.", dateLayouts, "2006-01-02")
}

// Datetime is a timestamp, with or without time zone, in ISO 8601 form.
func Datetime() *graphql.Scalar {
	return temporalScalar("Datetime", "A point in time as described by the [ISO 8601](https://en.wikipedia.org/wiki/ISO_8601) standard. May or may not include a timezone.", datetimeLayouts, time.RFC3339Nano)
}

// Time is a time of day, optionally with a zone offset.
func Time() *graphql.Scalar {
	return temporalScalar("Time", "The exact time of day, does not include the date. May or may not have a timezone offset.", timeLayouts, "15:04:05.999999999Z07:00")
}

func temporalScalar(name, description string, layouts []string, outLayout string) *graphql.Scalar {
	check := matchesLayout(layouts)
	coerce := func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v.Format(outLayout)
		case *time.Time:
			if v == nil {
				return nil
			}
			return v.Format(outLayout)
		case string:
			if out, ok := check(v); ok {
				return out
			}
			return nil
		case []byte:
			if out, ok := check(string(v)); ok {
				return out
			}
			return nil
		default:
			return nil
		}
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        name,
		Description: description,
		Serialize:   coerce,
		ParseValue:  coerce,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return coerce(sv.Value)
			}
			return nil
		},
	})
}

// JSON represents json and jsonb values. With extended set the value is passed
// through structurally; otherwise it travels as a serialized JSON string.
func JSON(extended bool) *graphql.Scalar {
	if !extended {
		return stringScalar("JSON", "A JavaScript object encoded in the JSON format as specified by [ECMA-404](http://www.ecma-international.org/publications/files/ECMA-ST/ECMA-404%201st%20edition%20October%202013.pdf).",
			func(s string) (string, bool) {
				return s, json.Valid([]byte(s))
			})
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "A JavaScript object encoded in the JSON format as specified by [ECMA-404](http://www.ecma-international.org/publications/files/ECMA-ST/ECMA-404%201st%20edition%20October%202013.pdf).",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case []byte:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err != nil {
					slog.Default().Warn("failed to decode JSON scalar", slog.String("error", err.Error()))
					return nil
				}
				return decoded
			case json.RawMessage:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err != nil {
					return nil
				}
				return decoded
			default:
				return v
			}
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			return LiteralValue(valueAST)
		},
	})
}

// LiteralValue converts a GraphQL literal into plain Go values.
func LiteralValue(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if i, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return i
		}
		return json.Number(v.Value)
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return json.Number(v.Value)
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, LiteralValue(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = LiteralValue(field.Value)
		}
		return out
	default:
		return nil
	}
}

// UUID is a universally unique identifier in canonical form.
func UUID() *graphql.Scalar {
	return stringScalar("UUID", "A universally unique identifier as defined by [RFC 4122](https://tools.ietf.org/html/rfc4122).",
		func(s string) (string, bool) {
			parsed, err := uuid.Parse(s)
			if err != nil {
				return "", false
			}
			return parsed.String(), true
		})
}

// BitString is a string of 0 and 1 characters.
func BitString() *graphql.Scalar {
	return stringScalar("BitString", "A string representing a series of binary bits", func(s string) (string, bool) {
		return s, strings.Trim(s, "01") == ""
	})
}

// InternetAddress is an IPv4 or IPv6 host address with an optional subnet.
func InternetAddress() *graphql.Scalar {
	return stringScalar("InternetAddress", "An IPv4 or IPv6 host address, and optionally its subnet.", func(s string) (string, bool) {
		if net.ParseIP(s) != nil {
			return s, true
		}
		_, _, err := net.ParseCIDR(s)
		return s, err == nil
	})
}

// CidrAddress is an IPv4 or IPv6 network.
func CidrAddress() *graphql.Scalar {
	return stringScalar("CidrAddress", "An IPv4 or IPv6 CIDR address.", func(s string) (string, bool) {
		_, _, err := net.ParseCIDR(s)
		return s, err == nil
	})
}

// MacAddress is a six-byte MAC address.
func MacAddress() *graphql.Scalar {
	return stringScalar("MacAddress", "A 6-byte MAC address.", macCheck(6))
}

// MacAddress8 is an eight-byte EUI-64 MAC address.
func MacAddress8() *graphql.Scalar {
	return stringScalar("MacAddress8", "An 8-byte MAC address.", macCheck(8))
}

func macCheck(size int) func(string) (string, bool) {
	return func(s string) (string, bool) {
		hw, err := net.ParseMAC(s)
		if err != nil || len(hw) != size {
			return "", false
		}
		return s, true
	}
}

// KeyValueHash is an hstore: a flat map of string keys to string or null values.
func KeyValueHash() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "KeyValueHash",
		Description: "A set of key/value pairs, keys are strings, values may be a string or null. Exposed as a JSON object.",
		Serialize:   coerceKeyValueHash,
		ParseValue:  coerceKeyValueHash,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			obj, ok := valueAST.(*ast.ObjectValue)
			if !ok {
				return nil
			}
			out := make(map[string]interface{}, len(obj.Fields))
			for _, field := range obj.Fields {
				switch v := LiteralValue(field.Value).(type) {
				case string:
					out[field.Name.Value] = v
				case nil:
					out[field.Name.Value] = nil
				default:
					return nil
				}
			}
			return out
		},
	})
}

func coerceKeyValueHash(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for _, item := range v {
			if item == nil {
				continue
			}
			if _, ok := item.(string); !ok {
				return nil
			}
		}
		return v
	case map[string]*string:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			if item == nil {
				out[k] = nil
			} else {
				out[k] = *item
			}
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	default:
		return nil
	}
}

// Cursor is an opaque pagination cursor.
func Cursor() *graphql.Scalar {
	return stringScalar("Cursor", "A location in a connection that can be used for resuming pagination.", func(s string) (string, bool) {
		return s, s != ""
	})
}
