package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomID(t *testing.T) {
	t.Parallel()

	var id RandomID
	require.NoError(t, id.Set("11111111-1111-1111-1111-111111111111"))
	assert.True(t, id.IsValid())

	// Case is squashed and whitespace trimmed
	require.NoError(t, id.Set("  5A56260B-AA5C-4013-9217-A78F094432C3  "))
	assert.Equal(t, "5a56260b-aa5c-4013-9217-a78f094432c3", id.AsString())

	for _, bad := range []string{"", "11111111111111111111111111111111",
		"11111111-1111-1111-1111_111111111111", "some words"} {
		assert.Error(t, id.Set(bad), bad)
	}

	id = RandomID{}
	assert.True(t, id.IsEmpty())
	id.Generate()
	assert.True(t, id.IsValid())
}

func TestUserID(t *testing.T) {
	t.Parallel()

	var uid UserID
	require.NoError(t, uid.Set("GoodID"))
	assert.Equal(t, "goodid", uid.AsString())
	assert.False(t, uid.IsWID())

	// A user ID that happens to be a workspace ID is flagged
	require.NoError(t, uid.Set("11111111-1111-1111-1111-111111111111"))
	assert.True(t, uid.IsWID())
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", uid.AsWID().AsString())

	for _, bad := range []string{"", "has spaces", `has\backslash`, "has/slash",
		`has"quotes"`} {
		assert.Error(t, uid.Set(bad), bad)
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	var d Domain
	require.NoError(t, d.Set("foo-bar.baz.com"))
	assert.True(t, d.IsValid())

	require.NoError(t, d.Set("EXAMPLE.COM"))
	assert.Equal(t, "example.com", d.AsString())

	for _, bad := range []string{"", "baz", "foo bar.com", "foo.bar.com baz"} {
		assert.Error(t, d.Set(bad), bad)
	}
}

func TestMAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		valid   bool
	}{
		{"cats4life/example.com", true},
		{"5a56260b-aa5c-4013-9217-a78f094432c3/example.com", true},
		{"has spaces/example.com", false},
		{`has_a_"quote"/example.com`, false},
		{"cats4life/ex ample.com", false},
		{"cats4life", false},
		{"/example.com", false},
		{"cats4life/", false},
	}

	for _, tc := range tests {
		var addr MAddress
		err := addr.Set(tc.address)
		if tc.valid {
			assert.NoError(t, err, tc.address)
			assert.True(t, addr.IsValid(), tc.address)
		} else {
			assert.Error(t, err, tc.address)
		}
	}
}

func TestWAddress(t *testing.T) {
	t.Parallel()

	var addr WAddress
	require.NoError(t, addr.Set("5a56260b-aa5c-4013-9217-a78f094432c3/example.com"))
	assert.True(t, addr.IsValid())
	assert.Equal(t, "5a56260b-aa5c-4013-9217-a78f094432c3/example.com", addr.AsString())

	// The workspace ID is strictly required
	assert.Error(t, addr.Set("cats4life/example.com"))

	m := addr.AsMAddress()
	assert.True(t, m.IsValid())
	assert.True(t, m.ID.IsWID())
}
