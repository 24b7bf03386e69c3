package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{Blake3, Sha256} {
		t.Run(alg.String(), func(t *testing.T) {
			data := []byte("hello world")
			id := NewIdentifierWith(alg, data)

			assert.Equal(t, alg, id.Algorithm())
			assert.Equal(t, uint64(len(data)), id.Size())
			assert.Len(t, id.Hex(), 64)

			parsed, err := ParseIdentifier(id.String())
			require.NoError(t, err)
			assert.True(t, id.Equal(parsed))
			assert.Equal(t, id.Size(), parsed.Size())
			assert.NotContains(t, id.String(), "=")
		})
	}
}

func TestIdentifier_Deterministic(t *testing.T) {
	a := NewIdentifier([]byte("same bytes"))
	b := NewIdentifier([]byte("same bytes"))
	c := NewIdentifier([]byte("other bytes"))

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
	assert.False(t, a.Equal(c))

	// 不同算法的相同数据不相等
	assert.False(t, NewIdentifierWith(Sha256, []byte("x")).Equal(NewIdentifierWith(Blake3, []byte("x"))))
}

func TestIdentifier_Hasher(t *testing.T) {
	h := NewHasher(DefaultAlgorithm)
	_, _ = h.Write([]byte("hello "))
	_, _ = h.Write([]byte("world"))

	assert.True(t, NewIdentifier([]byte("hello world")).Equal(h.Identifier()))
	assert.Equal(t, uint64(11), h.Identifier().Size())
}

func TestParseIdentifier_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "Not base64", input: "***"},
		{name: "Empty", input: ""},
		{name: "Unknown algorithm", input: Identifier{alg: 9, digest: make([]byte, 32)}.String()},
		{name: "Short digest", input: Identifier{alg: Blake3, digest: make([]byte, 4)}.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentifier(tt.input)
			assert.ErrorIs(t, err, ErrInvalidIdentifier)
		})
	}
}

func TestIdentifier_Text(t *testing.T) {
	id := NewIdentifier([]byte(strings.Repeat("z", 1024)))
	text, err := id.MarshalText()
	require.NoError(t, err)

	var back Identifier
	require.NoError(t, back.UnmarshalText(text))
	assert.True(t, id.Equal(back))
	assert.Equal(t, uint64(1024), back.Size())
}
