// Package cursor encodes and decodes connection cursors.
// Cursors are opaque base64-encoded JSON carrying the ordering they were
// produced under and string-coerced values for keyset or offset pagination.
// A null order value is carried as JSON null.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pg-graphql/internal/nodeid"
)

// NaturalKey is the order key of offset-based cursors.
const NaturalKey = "natural"

// ErrInvalid is returned for malformed or mismatched cursors.
var ErrInvalid = errors.New("invalid cursor")

// Cursor is the decoded form of a cursor.
type Cursor struct {
	TypeName   string
	OrderKey   string
	Directions []string
	// Values holds one entry per order column; nil marks a null value.
	Values []*string
}

type payload struct {
	Version    int       `json:"v"`
	TypeName   string    `json:"t"`
	OrderKey   string    `json:"k"`
	Directions []string  `json:"d"`
	Values     []*string `json:"vals"`
}

// Encode builds an opaque cursor. Values are string-coerced so numeric precision survives JSON.
func Encode(typeName, orderKey string, directions []string, values ...any) string {
	normalized := make([]string, len(directions))
	for i, direction := range directions {
		normalized[i] = strings.ToUpper(direction)
	}
	texts := make([]*string, 0, len(values))
	for _, v := range values {
		if v == nil {
			texts = append(texts, nil)
			continue
		}
		text, err := nodeid.KeyText(v)
		if err != nil {
			return ""
		}
		texts = append(texts, &text)
	}
	data, err := json.Marshal(payload{
		Version:    2,
		TypeName:   typeName,
		OrderKey:   orderKey,
		Directions: normalized,
		Values:     texts,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// EncodeNatural builds an offset cursor for the row at position (1-based).
func EncodeNatural(typeName string, position int) string {
	return Encode(typeName, NaturalKey, []string{"ASC"}, position)
}

// Decode parses a cursor.
func Decode(raw string) (Cursor, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p.Version != 2 {
		return Cursor{}, fmt.Errorf("%w: unsupported format", ErrInvalid)
	}
	if p.TypeName == "" || p.OrderKey == "" {
		return Cursor{}, fmt.Errorf("%w: missing type or order key", ErrInvalid)
	}
	if len(p.Directions) == 0 {
		return Cursor{}, fmt.Errorf("%w: missing directions", ErrInvalid)
	}
	for i, direction := range p.Directions {
		direction = strings.ToUpper(direction)
		if direction != "ASC" && direction != "DESC" {
			return Cursor{}, fmt.Errorf("%w: direction %d must be ASC or DESC", ErrInvalid, i)
		}
		p.Directions[i] = direction
	}
	if len(p.Values) != len(p.Directions) {
		return Cursor{}, fmt.Errorf("%w: value count mismatch for order columns", ErrInvalid)
	}
	return Cursor{TypeName: p.TypeName, OrderKey: p.OrderKey, Directions: p.Directions, Values: p.Values}, nil
}

// Validate confirms the cursor was produced for the same connection ordering.
func (c Cursor) Validate(typeName, orderKey string, directions []string) error {
	if c.TypeName != typeName {
		return fmt.Errorf("%w: type mismatch: expected %s, got %s", ErrInvalid, typeName, c.TypeName)
	}
	if c.OrderKey != orderKey {
		return fmt.Errorf("%w: order mismatch: expected %s, got %s", ErrInvalid, orderKey, c.OrderKey)
	}
	if len(c.Directions) != len(directions) {
		return fmt.Errorf("%w: direction count mismatch: expected %d, got %d", ErrInvalid, len(directions), len(c.Directions))
	}
	for i := range directions {
		if !strings.EqualFold(c.Directions[i], directions[i]) {
			return fmt.Errorf("%w: direction mismatch at position %d", ErrInvalid, i)
		}
	}
	return nil
}

// Position returns the row position of a natural cursor.
func (c Cursor) Position() (int, error) {
	if c.OrderKey != NaturalKey || len(c.Values) != 1 || c.Values[0] == nil {
		return 0, fmt.Errorf("%w: not a natural cursor", ErrInvalid)
	}
	n, err := strconv.Atoi(*c.Values[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad position", ErrInvalid)
	}
	return n, nil
}
