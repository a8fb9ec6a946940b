package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterminism(t *testing.T) {
	b := []byte("func login(user):\n  return authenticate(user)\n")
	h1 := ComputeContentHash(b)
	h2 := ComputeContentHash(b)
	assert.Equal(t, h1, h2)
}

func TestContentHashDiffersOnInput(t *testing.T) {
	a := ComputeContentHash([]byte("a"))
	b := ComputeContentHash([]byte("b"))
	assert.NotEqual(t, a, b)
}

func TestContentHashHexRoundtrip(t *testing.T) {
	h := ComputeContentHash([]byte("roundtrip me"))
	hex := h.ToHex()
	require.Len(t, hex, 64)
	back, err := ContentHashFromHex(hex)
	require.NoError(t, err)
	assert.Equal(t, h, back)
}

func TestContentHashFromHexInvalid(t *testing.T) {
	cases := []string{
		"",
		"too-short",
		string(make([]byte, 64)), // null bytes, not hex
		"zz" + string(make([]byte, 62)),
	}
	for _, c := range cases {
		_, err := ContentHashFromHex(c)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	}
}

func TestContentHashEmptyInput(t *testing.T) {
	h := ComputeContentHash(nil)
	assert.False(t, h.IsZero(), "BLAKE3 of empty input is a well-defined non-zero hash")
}
