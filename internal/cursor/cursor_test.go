package cursor

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		typeName   string
		orderKey   string
		directions []string
		values     []any
		want       []*string
	}{
		{"single int key", "User", "PRIMARY_KEY_ASC", []string{"asc"}, []any{42.0}, []*string{strPtr("42")}},
		{"mixed directions", "Post", "CREATED_AT_DESC", []string{"DESC", "ASC"}, []any{"2024-01-15T10:30:00+00:00", "7"}, []*string{strPtr("2024-01-15T10:30:00+00:00"), strPtr("7")}},
		{"boolean", "Flag", "ENABLED_ASC", []string{"ASC"}, []any{true}, []*string{strPtr("true")}},
		{"null order value", "User", "NAME_ASC,PRIMARY_KEY_ASC", []string{"ASC", "ASC"}, []any{nil, 2.0}, []*string{nil, strPtr("2")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.typeName, tt.orderKey, tt.directions, tt.values...)
			require.NotEmpty(t, encoded)

			c, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.typeName, c.TypeName)
			assert.Equal(t, tt.orderKey, c.OrderKey)
			assert.Equal(t, tt.want, c.Values)
			assert.NoError(t, c.Validate(tt.typeName, tt.orderKey, tt.directions))
		})
	}
}

func strPtr(s string) *string { return &s }

func TestValidateMismatch(t *testing.T) {
	c, err := Decode(Encode("User", "NAME_ASC", []string{"ASC"}, "x"))
	require.NoError(t, err)
	assert.ErrorIs(t, c.Validate("Post", "NAME_ASC", []string{"ASC"}), ErrInvalid)
	assert.ErrorIs(t, c.Validate("User", "NAME_DESC", []string{"ASC"}), ErrInvalid)
	assert.ErrorIs(t, c.Validate("User", "NAME_ASC", []string{"DESC"}), ErrInvalid)
	assert.ErrorIs(t, c.Validate("User", "NAME_ASC", []string{"ASC", "ASC"}), ErrInvalid)
}

func TestNaturalCursor(t *testing.T) {
	c, err := Decode(EncodeNatural("Thing", 12))
	require.NoError(t, err)
	n, err := c.Position()
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	keyed, err := Decode(Encode("Thing", "ID_ASC", []string{"ASC"}, 1))
	require.NoError(t, err)
	_, err = keyed.Position()
	assert.ErrorIs(t, err, ErrInvalid)

	nullPos, err := Decode(base64.StdEncoding.EncodeToString([]byte(`{"v":2,"t":"Thing","k":"natural","d":["ASC"],"vals":[null]}`)))
	require.NoError(t, err)
	_, err = nullPos.Position()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	bad := []string{
		"%%%",
		base64.StdEncoding.EncodeToString([]byte(`["natural",1]`)),
		base64.StdEncoding.EncodeToString([]byte(`{"v":2,"t":"U","k":"K","d":["UP"],"vals":["1"]}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"v":2,"t":"U","k":"K","d":["ASC"],"vals":[]}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"v":1,"t":"U","k":"K","d":["ASC"],"vals":["1"]}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"v":2,"t":"U","k":"K","d":["ASC"],"vals":[1]}`)),
	}
	for _, raw := range bad {
		_, err := Decode(raw)
		assert.ErrorIs(t, err, ErrInvalid, raw)
	}
}
