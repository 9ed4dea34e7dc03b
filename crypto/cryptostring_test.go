package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoStringSet(t *testing.T) {
	t.Parallel()

	var cs CryptoString
	err := cs.Set("ED25519:)8id(gE02^S<{3H>9B;X4{DuYcb`%wo^mC&1lN88")
	require.NoError(t, err)
	assert.Equal(t, "ED25519", cs.Prefix)
	assert.Equal(t, ")8id(gE02^S<{3H>9B;X4{DuYcb`%wo^mC&1lN88", cs.Data)
	assert.True(t, cs.IsValid())

	raw, err := cs.RawData()
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestCryptoStringBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "BLAKE2B-256"},
		{"empty data", "BLAKE2B-256:"},
		{"lowercase prefix", "blake2b-256:tSl@QzD1w-vNq@CC-5`(Wk@aOmeoCsEW"},
		{"prefix too long", "ABCDEFGHIJKLMNOP:tSl@QzD1w-vNq@CC"},
		{"bad data characters", "BLAKE2B-256:not valid base85 "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var cs CryptoString
			assert.Error(t, cs.Set(tc.input))
			assert.False(t, cs.IsValid())
			assert.True(t, cs.IsEmpty())
		})
	}
}

func TestCryptoStringFromBytes(t *testing.T) {
	t.Parallel()

	payload := []byte{1, 2, 3, 4, 5}
	cs := NewCSFromBytes("XSALSA20", payload)
	assert.True(t, cs.IsValid())

	// Raw data round-trips through the encoding
	raw, err := cs.RawData()
	require.NoError(t, err)
	assert.Equal(t, payload, raw)

	// Equality is component-wise
	other := NewCS(cs.AsString())
	assert.True(t, cs.Equals(other))
	assert.Equal(t, cs.AsString(), string(cs.AsBytes()))
}

func TestCryptoStringMakeEmpty(t *testing.T) {
	t.Parallel()

	cs := NewCS("BLAKE3-256:tSl@QzD1w-vNq@CC-5`(Wk@aOmeoCsEW")
	require.True(t, cs.IsValid())

	cs.MakeEmpty()
	assert.True(t, cs.IsEmpty())
	assert.False(t, cs.IsValid())
}
