package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleContact is the canonical nested test document: a header, plain
// fields, a list of strings, a nested map, and two lists of maps.
func sampleContact() map[string]any {
	return map[string]any{
		"Header": map[string]any{
			"Version":    "1.0",
			"EntityType": "individual",
		},
		"GivenName":  "Richard",
		"FamilyName": "Brannan",
		"Nicknames":  []any{"Rick", "Ricky", "Rich"},
		"Website": map[string]any{
			"Personal": "https://www.example.com",
			"Mensago":  "https://mensago.org",
		},
		"Phone": []any{
			map[string]any{
				"Label":     "Mobile",
				"Number":    "555-555-1234",
				"Preferred": "yes",
			},
		},
		"Birthday":    "19750415",
		"Anniversary": "0714",
		"Mensago": []any{
			map[string]any{
				"Label":     "Home",
				"UserID":    "cavs4life",
				"Workspace": "f9ccb1f5-85e4-487d-9861-51d371101917",
				"Domain":    "example.com",
			},
			map[string]any{
				"Label":     "Work",
				"UserID":    "rbrannan",
				"Workspace": "9015c2ea-2d02-491b-aa1f-4d536cfc4878",
				"Domain":    "contoso.com",
			},
		},
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	flattened, err := Flatten(sampleContact())
	require.NoError(t, err)

	// The sample document flattens to exactly 22 key/value pairs
	assert.Len(t, flattened, 22)
	assert.Equal(t, "1.0", flattened["Header.Version"])
	assert.Equal(t, "Richard", flattened["GivenName"])
	assert.Equal(t, "Ricky", flattened["Nicknames.1"])
	assert.Equal(t, "https://mensago.org", flattened["Website.Mensago"])
	assert.Equal(t, "555-555-1234", flattened["Phone.0.Number"])
	assert.Equal(t, "9015c2ea-2d02-491b-aa1f-4d536cfc4878", flattened["Mensago.1.Workspace"])
}

func TestFlattenRejectsBadValues(t *testing.T) {
	t.Parallel()

	_, err := Flatten(map[string]any{"Count": 42})
	assert.Error(t, err)

	_, err = Flatten(map[string]any{"Nested": map[string]any{"Bad": 3.14}})
	assert.Error(t, err)
}

func TestUnflattenInverse(t *testing.T) {
	t.Parallel()

	original := sampleContact()
	flattened, err := Flatten(original)
	require.NoError(t, err)

	unflattened, err := Unflatten(flattened)
	require.NoError(t, err)
	assert.Equal(t, original, unflattened)
}

func TestUnflattenFieldIndices(t *testing.T) {
	t.Parallel()

	t.Run("contiguous indices build a list", func(t *testing.T) {
		t.Parallel()

		target := map[string]any{}
		require.NoError(t, UnflattenField(target, "Nicknames.0", "Rick"))
		require.NoError(t, UnflattenField(target, "Nicknames.1", "Ricky"))
		assert.Equal(t, map[string]any{"Nicknames": []any{"Rick", "Ricky"}}, target)
	})

	t.Run("gapped index is rejected", func(t *testing.T) {
		t.Parallel()

		target := map[string]any{}
		require.NoError(t, UnflattenField(target, "Nicknames.0", "Rick"))
		assert.Error(t, UnflattenField(target, "Nicknames.2", "Rich"))
	})

	t.Run("negative index is rejected", func(t *testing.T) {
		t.Parallel()

		target := map[string]any{}
		assert.Error(t, UnflattenField(target, "Nicknames.-1", "Rick"))
	})

	t.Run("replacing an existing index", func(t *testing.T) {
		t.Parallel()

		target := map[string]any{}
		require.NoError(t, UnflattenField(target, "Nicknames.0", "Rick"))
		require.NoError(t, UnflattenField(target, "Nicknames.0", "Ricky"))
		assert.Equal(t, map[string]any{"Nicknames": []any{"Ricky"}}, target)
	})

	t.Run("empty field name is rejected", func(t *testing.T) {
		t.Parallel()

		assert.Error(t, UnflattenField(map[string]any{}, "", "value"))
	})
}

func TestUnflattenLargeIndices(t *testing.T) {
	t.Parallel()

	// Two-digit indices must sort numerically, not lexically
	flattened := map[string]string{}
	words := []string{"zero", "one", "two", "three", "four", "five", "six",
		"seven", "eight", "nine", "ten", "eleven"}
	for i, word := range words {
		flattened["List."+itoa(i)] = word
	}

	unflattened, err := Unflatten(flattened)
	require.NoError(t, err)

	list, ok := unflattened["List"].([]any)
	require.True(t, ok)
	require.Len(t, list, len(words))
	assert.Equal(t, "ten", list[10])
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}
