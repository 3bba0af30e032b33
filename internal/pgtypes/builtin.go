package pgtypes

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"

	"pg-graphql/internal/catalog"
	"pg-graphql/internal/pgsql"
	"pg-graphql/internal/scalars"
)

// Well-known pg_type oids.
const (
	OIDBool        uint32 = 16
	OIDChar        uint32 = 18
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDJSON        uint32 = 114
	OIDPoint       uint32 = 600
	OIDCidr        uint32 = 650
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDMacaddr8    uint32 = 774
	OIDMoney       uint32 = 790
	OIDMacaddr     uint32 = 829
	OIDInet        uint32 = 869
	OIDVarchar     uint32 = 1043
	OIDDate        uint32 = 1082
	OIDTime        uint32 = 1083
	OIDTimestamp   uint32 = 1114
	OIDTimestamptz uint32 = 1184
	OIDInterval    uint32 = 1186
	OIDTimetz      uint32 = 1266
	OIDBit         uint32 = 1560
	OIDVarbit      uint32 = 1562
	OIDNumeric     uint32 = 1700
	OIDUUID        uint32 = 2950
	OIDJSONB       uint32 = 3802
)

type builtinTable struct {
	cursor   *graphql.Scalar
	bigInt   *graphql.Scalar
	bigFloat *graphql.Scalar
	json     *graphql.Scalar

	outputs map[uint32]graphql.Output
	inputs  map[uint32]graphql.Input
}

func (r *Registry) installBuiltins() error {
	bt := &builtinTable{
		cursor:   scalars.Cursor(),
		bigInt:   scalars.BigInt(),
		bigFloat: scalars.BigFloat(),
		json:     scalars.JSON(r.opts.ExtendedTypes),
	}
	date, datetime, clock := scalars.Date(), scalars.Datetime(), scalars.Time()
	bits := scalars.BitString()
	interval, intervalInput := intervalTypes()
	point, pointInput := pointTypes()

	var cidr, macaddr, macaddr8 graphql.Output = graphql.String, graphql.String, graphql.String
	if r.opts.CustomNetworkScalars {
		cidr, macaddr, macaddr8 = scalars.CidrAddress(), scalars.MacAddress(), scalars.MacAddress8()
	}

	bt.outputs = map[uint32]graphql.Output{
		OIDInt8:        bt.bigInt,
		OIDInt2:        graphql.Int,
		OIDInt4:        graphql.Int,
		OIDFloat4:      graphql.Float,
		OIDFloat8:      graphql.Float,
		OIDNumeric:     bt.bigFloat,
		OIDMoney:       graphql.Float,
		OIDInterval:    interval,
		OIDDate:        date,
		OIDTimestamp:   datetime,
		OIDTimestamptz: datetime,
		OIDTime:        clock,
		OIDTimetz:      clock,
		OIDJSON:        bt.json,
		OIDJSONB:       bt.json,
		OIDUUID:        scalars.UUID(),
		OIDBit:         bits,
		OIDVarbit:      bits,
		OIDChar:        graphql.String,
		OIDText:        graphql.String,
		OIDVarchar:     graphql.String,
		OIDPoint:       point,
		OIDInet:        scalars.InternetAddress(),
		OIDCidr:        cidr,
		OIDMacaddr:     macaddr,
		OIDMacaddr8:    macaddr8,
	}
	bt.inputs = map[uint32]graphql.Input{
		OIDInterval: intervalInput,
		OIDPoint:    pointInput,
	}
	r.builtins = bt

	for _, t := range []graphql.Type{bt.json, bt.cursor, bt.bigInt, bt.bigFloat, date, datetime, clock} {
		if err := r.AddType(t); err != nil {
			return err
		}
	}

	for _, id := range []uint32{OIDInt8, OIDNumeric, OIDInterval} {
		r.tweaks[id] = tweakToText
	}
	r.tweaks[OIDMoney] = tweakToNumericText

	jsonCodec := Codec{
		Map: func(v any) (any, error) { return v, nil },
		Unmap: func(v any, _ catalog.Modifier) (pgsql.Fragment, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return pgsql.Fragment{}, fmt.Errorf("encoding json value: %w", err)
			}
			return pgsql.Value(string(encoded)), nil
		},
	}
	if !r.opts.ExtendedTypes {
		jsonCodec = Codec{
			Map: func(v any) (any, error) {
				if s, ok := v.(string); ok {
					return s, nil
				}
				encoded, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("encoding json value: %w", err)
				}
				return string(encoded), nil
			},
			Unmap: func(v any, _ catalog.Modifier) (pgsql.Fragment, error) {
				return pgsql.Value(v), nil
			},
		}
	}
	r.codecs[OIDJSON] = jsonCodec
	r.codecs[OIDJSONB] = jsonCodec
	r.codecs[OIDInterval] = Codec{Map: decodeInterval, Unmap: encodeInterval}
	r.codecs[OIDMoney] = Codec{
		Map: func(v any) (any, error) { return v, nil },
		Unmap: func(v any, _ catalog.Modifier) (pgsql.Fragment, error) {
			return pgsql.Concat("(", pgsql.Value(moneyText(v)), ")::money"), nil
		},
	}
	r.codecs[OIDPoint] = Codec{Map: decodePoint, Unmap: encodePoint}

	return r.installHstore()
}

// builtinHandler serves the fixed oid table.
type builtinHandler struct{ baseHandler }

func (builtinHandler) Accepts(r *Registry, t *catalog.Type) bool {
	_, ok := r.builtins.outputs[t.ID]
	return ok
}

func (builtinHandler) ResolveOutput(r *Registry, t *catalog.Type, _ catalog.Modifier) (Binding, error) {
	return Direct(r.builtins.outputs[t.ID]), nil
}

func (builtinHandler) ResolveInput(r *Registry, t *catalog.Type, _ catalog.Modifier, _ Binding) (InputBinding, error) {
	if in, ok := r.builtins.inputs[t.ID]; ok {
		return DirectInput(in), nil
	}
	return InputBinding{}, nil
}

// moneyText binds numbers as decimal text; the driver has no money encoder
// but accepts text for any type.
func moneyText(v any) any {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return v
	}
}
