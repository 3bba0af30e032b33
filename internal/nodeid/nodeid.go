// Package nodeid encodes and decodes global node ids: a base64 JSON array of
// the GraphQL type name followed by the primary key values.
package nodeid

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalid is returned for ids that are not well-formed.
var ErrInvalid = errors.New("invalid node id")

// Encode marshals the type name and key values into an opaque id.
func Encode(typeName string, keyValues ...any) string {
	payload := make([]any, 0, len(keyValues)+1)
	payload = append(payload, typeName)
	payload = append(payload, keyValues...)
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode returns the type name and raw key values of an id. Numbers decode
// as json.Number so large integers survive.
func Decode(nodeID string) (string, []any, error) {
	raw, err := base64.StdEncoding.DecodeString(nodeID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload []any
	if err := dec.Decode(&payload); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(payload) < 2 {
		return "", nil, fmt.Errorf("%w: missing type or key values", ErrInvalid)
	}
	typeName, ok := payload[0].(string)
	if !ok || typeName == "" {
		return "", nil, fmt.Errorf("%w: missing type name", ErrInvalid)
	}
	return typeName, payload[1:], nil
}

// KeyText renders a decoded key value as text suitable for a typed SQL cast.
func KeyText(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", fmt.Errorf("%w: null key value", ErrInvalid)
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: non-finite key value", ErrInvalid)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		return string(data), nil
	}
}
