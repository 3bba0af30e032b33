package scalars

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigIntScalar(t *testing.T) {
	scalar := BigInt()

	assert.Equal(t, "9223372036854775807", scalar.Serialize(int64(9223372036854775807)))
	assert.Equal(t, "42", scalar.Serialize("42"))
	assert.Equal(t, "42", scalar.ParseValue("42"))
	assert.Equal(t, "7", scalar.ParseValue(json.Number("7")))
	assert.Nil(t, scalar.ParseValue("not-a-number"))
	assert.Nil(t, scalar.Serialize(float64(math.MaxInt64)*2))
	assert.Nil(t, scalar.ParseValue(1.5))

	assert.Equal(t, "12", scalar.ParseLiteral(&ast.IntValue{Value: "12"}))
	assert.Equal(t, "-3", scalar.ParseLiteral(&ast.StringValue{Value: "-3"}))
	assert.Nil(t, scalar.ParseLiteral(&ast.BooleanValue{Value: true}))
}

func TestBigFloatScalar(t *testing.T) {
	scalar := BigFloat()

	assert.Equal(t, "12345.6789012345678901", scalar.Serialize("12345.6789012345678901"))
	assert.Equal(t, "1e3", scalar.ParseValue("1e3"))
	assert.Equal(t, "NaN", scalar.ParseValue("NaN"))
	assert.Equal(t, "2.5", scalar.ParseValue(2.5))
	assert.Nil(t, scalar.ParseValue("1/2"))
	assert.Nil(t, scalar.ParseValue(""))
	assert.Equal(t, "10.5", scalar.ParseLiteral(&ast.FloatValue{Value: "10.5"}))
}

func TestTemporalScalars(t *testing.T) {
	date := Date()
	assert.Equal(t, "2024-01-15", date.Serialize("2024-01-15"))
	assert.Equal(t, "2024-01-15", date.Serialize(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
	assert.Nil(t, date.ParseValue("15/01/2024"))
	assert.Equal(t, "infinity", date.ParseValue("infinity"))

	datetime := Datetime()
	assert.Equal(t, "2024-01-15T10:30:00+00:00", datetime.Serialize("2024-01-15T10:30:00+00:00"))
	assert.Equal(t, "2024-01-15T10:30:00.123", datetime.Serialize("2024-01-15T10:30:00.123"))
	assert.Equal(t, "2024-01-15 10:30:00+02", datetime.ParseValue("2024-01-15 10:30:00+02"))
	assert.Nil(t, datetime.ParseValue("yesterday"))

	tm := Time()
	assert.Equal(t, "10:30:00", tm.ParseValue("10:30:00"))
	assert.Equal(t, "10:30:00+02", tm.ParseValue("10:30:00+02"))
	assert.Nil(t, tm.ParseValue("25:99"))
	assert.Equal(t, "10:30", tm.ParseLiteral(&ast.StringValue{Value: "10:30"}))
}

func TestJSONScalarExtended(t *testing.T) {
	scalar := JSON(true)

	value := map[string]interface{}{"a": []interface{}{int64(1), "two"}}
	assert.Equal(t, value, scalar.Serialize(value))
	assert.Equal(t, value, scalar.ParseValue(value))
	assert.Equal(t, map[string]interface{}{"k": true}, scalar.Serialize([]byte(`{"k":true}`)))

	literal := scalar.ParseLiteral(&ast.ObjectValue{Fields: []*ast.ObjectField{
		{Name: &ast.Name{Value: "n"}, Value: &ast.IntValue{Value: "3"}},
		{Name: &ast.Name{Value: "l"}, Value: &ast.ListValue{Values: []ast.Value{&ast.StringValue{Value: "x"}}}},
	}})
	assert.Equal(t, map[string]interface{}{"n": int64(3), "l": []interface{}{"x"}}, literal)
}

func TestJSONScalarString(t *testing.T) {
	scalar := JSON(false)

	assert.Equal(t, `{"a":1}`, scalar.Serialize(`{"a":1}`))
	assert.Nil(t, scalar.ParseValue(`{"a":`))
}

func TestUUIDScalar(t *testing.T) {
	scalar := UUID()

	assert.Equal(t, "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11", scalar.ParseValue("A0EEBC99-9C0B-4EF8-BB6D-6BB9BD380A11"))
	assert.Nil(t, scalar.ParseValue("nope"))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "1"}))
}

func TestNetworkScalars(t *testing.T) {
	assert.Equal(t, "192.168.0.1", InternetAddress().ParseValue("192.168.0.1"))
	assert.Equal(t, "10.0.0.0/8", InternetAddress().ParseValue("10.0.0.0/8"))
	assert.Nil(t, InternetAddress().ParseValue("host"))

	assert.Equal(t, "10.0.0.0/8", CidrAddress().ParseValue("10.0.0.0/8"))
	assert.Nil(t, CidrAddress().ParseValue("10.0.0.1"))

	assert.Equal(t, "08:00:2b:01:02:03", MacAddress().ParseValue("08:00:2b:01:02:03"))
	assert.Nil(t, MacAddress().ParseValue("08:00:2b:01:02:03:04:05"))
	assert.Equal(t, "08:00:2b:01:02:03:04:05", MacAddress8().ParseValue("08:00:2b:01:02:03:04:05"))
}

func TestBitStringScalar(t *testing.T) {
	scalar := BitString()
	assert.Equal(t, "0101", scalar.ParseValue("0101"))
	assert.Nil(t, scalar.ParseValue("012"))
}

func TestKeyValueHashScalar(t *testing.T) {
	scalar := KeyValueHash()

	value := map[string]interface{}{"a": "1", "b": nil}
	assert.Equal(t, value, scalar.ParseValue(value))
	assert.Nil(t, scalar.ParseValue(map[string]interface{}{"a": 1}))
	assert.Nil(t, scalar.ParseValue("a=>1"))

	literal := scalar.ParseLiteral(&ast.ObjectValue{Fields: []*ast.ObjectField{
		{Name: &ast.Name{Value: "a"}, Value: &ast.StringValue{Value: "1"}},
	}})
	require.NotNil(t, literal)
	assert.Equal(t, map[string]interface{}{"a": "1"}, literal)

	assert.Nil(t, scalar.ParseLiteral(&ast.ObjectValue{Fields: []*ast.ObjectField{
		{Name: &ast.Name{Value: "a"}, Value: &ast.IntValue{Value: "1"}},
	}}))
}

func TestCursorScalar(t *testing.T) {
	scalar := Cursor()
	assert.Equal(t, "abc", scalar.Serialize("abc"))
	assert.Nil(t, scalar.ParseValue(""))
}
