package keycard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
)

// Key seeds shared by the entry tests. Each seed is a complete signing pair:
// the verification key is derived from it where needed.
const (
	orgSigningSeed  = "ED25519:msvXw(nII<Qm6oBHc+92xwRI3>VFF-RcZ=7DEu3|"
	userSigningSeed = "ED25519:p;XXU0XF#UO^}vKbC-wS(#5W6=OEIFmR2z`rS1j+"
)

// makeCompliantOrgEntry builds a fully-signed organization entry and returns
// it with its primary signing pair.
func makeCompliantOrgEntry(t *testing.T) (*Entry, *crypto.SigningPair) {
	t.Helper()

	pair, err := crypto.SigningPairFromSeed(crypto.NewCS(orgSigningSeed))
	require.NoError(t, err)

	entry := NewOrgEntry()
	require.NoError(t, entry.SetFields(map[string]string{
		"Name":                     "Example, Inc.",
		"Contact-Admin":            "c590b44c-798d-4055-8d72-725a7942f3f6/acme.com",
		"Language":                 "en",
		"Primary-Verification-Key": pair.PublicKey.AsString(),
		"Encryption-Key":           "CURVE25519:@b?cjpeY;<&y+LSOA&yUQ&ZIrp(JGt{W$*V>ATLG",
	}))

	require.NoError(t, entry.GenerateHash("BLAKE2B-256"))
	require.NoError(t, entry.Sign(pair.PrivateKey, "Organization"))
	return entry, pair
}

// makeUserEntry builds a user entry with valid fields but no signatures.
func makeUserEntry(t *testing.T) *Entry {
	t.Helper()

	entry := NewUserEntry()
	require.NoError(t, entry.SetFields(map[string]string{
		"Name":         "Corbin Simons",
		"Workspace-ID": "4418bf6c-000b-4bb3-8111-316e72030468",
		"User-ID":      "csimons",
		"Domain":       "example.com",
		"Contact-Request-Verification-Key": "ED25519:d0-oQb;{QxwnO{=!|^62+E=UYk2Y3mr2?XKScF4D",
		"Contact-Request-Encryption-Key":   "CURVE25519:yBZ0{1fE9{2<b~#i^R+JT-yh-y5M(Wyw_)}_SZOn",
		"Public-Encryption-Key":            "CURVE25519:_`UC|vltn_%P5}~vwV^)oY){#uvQSSy(dOD_l(yE",
	}))
	return entry
}

func TestOrgEntryCompliance(t *testing.T) {
	t.Parallel()

	entry, pair := makeCompliantOrgEntry(t)

	require.NoError(t, entry.VerifySignature(pair.PublicKey, "Organization"))
	require.NoError(t, entry.VerifyHash())
	require.NoError(t, entry.IsCompliant())
}

func TestUserEntrySigningSequence(t *testing.T) {
	t.Parallel()

	orgPair, err := crypto.SigningPairFromSeed(crypto.NewCS(orgSigningSeed))
	require.NoError(t, err)
	userPair, err := crypto.SigningPairFromSeed(crypto.NewCS(userSigningSeed))
	require.NoError(t, err)

	entry := makeUserEntry(t)

	// The signing order is fixed: organization counter-signature, hash, then
	// the user's own signature over everything
	require.NoError(t, entry.Sign(orgPair.PrivateKey, "Organization"))
	require.NoError(t, entry.VerifySignature(orgPair.PublicKey, "Organization"))

	require.NoError(t, entry.GenerateHash("BLAKE2B-256"))

	require.NoError(t, entry.Sign(userPair.PrivateKey, "User"))
	require.NoError(t, entry.VerifySignature(userPair.PublicKey, "User"))

	require.NoError(t, entry.IsCompliant())

	// The full byte string round-trips into an equal entry which still
	// verifies
	parsed := NewUserEntry()
	parsed.Fields = make(map[string]string)
	require.NoError(t, parsed.Set(entry.MakeByteString(-1)))

	assert.Equal(t, entry.Fields, parsed.Fields)
	assert.Equal(t, entry.Hash, parsed.Hash)
	assert.Equal(t, entry.MakeByteString(-1), parsed.MakeByteString(-1))
	require.NoError(t, parsed.VerifySignature(userPair.PublicKey, "User"))
	require.NoError(t, parsed.VerifyHash())
}

func TestMakeByteStringLayout(t *testing.T) {
	t.Parallel()

	entry := NewUserEntry()
	entry.Fields = map[string]string{
		"Name":         "Corbin Smith",
		"Workspace-ID": "4418bf6c-000b-4bb3-8111-316e72030468",
		"Domain":       "example.com",
		"Time-To-Live": "7",
		"Index":        "1",
	}
	entry.Signatures["User"] = "ED25519:deadbeef"

	out := string(entry.MakeByteString(-1))
	lines := strings.Split(out, "\r\n")

	// Type line first, declared fields in declared order, signatures last,
	// and a trailing CRLF
	assert.Equal(t, []string{
		"Type:User",
		"Index:1",
		"Name:Corbin Smith",
		"Workspace-ID:4418bf6c-000b-4bb3-8111-316e72030468",
		"Domain:example.com",
		"Time-To-Live:7",
		"User-Signature:ED25519:deadbeef",
		"",
	}, lines)
	assert.True(t, strings.HasSuffix(out, "\r\n"))
}

func TestMakeByteStringLevels(t *testing.T) {
	t.Parallel()

	orgPair, err := crypto.SigningPairFromSeed(crypto.NewCS(orgSigningSeed))
	require.NoError(t, err)
	userPair, err := crypto.SigningPairFromSeed(crypto.NewCS(userSigningSeed))
	require.NoError(t, err)

	entry := makeUserEntry(t)
	entry.PrevHash = "BLAKE2B-256:tSl@QzD1w-vNq@CC-5`(Wk@aOmeoCsEW"
	require.NoError(t, entry.Sign(orgPair.PrivateKey, "Organization"))
	require.NoError(t, entry.GenerateHash("BLAKE2B-256"))
	require.NoError(t, entry.Sign(userPair.PrivateKey, "User"))

	// Level 0 stops before every signature slot
	level0 := string(entry.MakeByteString(0))
	assert.NotContains(t, level0, "Organization-Signature")
	assert.NotContains(t, level0, "Hash:")
	assert.NotContains(t, level0, "User-Signature")

	// Level 2 includes the organization signature but stops before the hash
	// slot
	level2 := string(entry.MakeByteString(2))
	assert.Contains(t, level2, "Organization-Signature")
	assert.NotContains(t, level2, "Previous-Hash")
	assert.NotContains(t, level2, "User-Signature")

	// Level 3 adds the hash slot: previous hash first, then the hash
	level3 := string(entry.MakeByteString(3))
	assert.Contains(t, level3, "Previous-Hash:"+entry.PrevHash)
	assert.Contains(t, level3, "Hash:"+entry.Hash)
	assert.NotContains(t, level3, "User-Signature")

	// Negative and out-of-range levels mean everything
	assert.Equal(t, entry.MakeByteString(-1), entry.MakeByteString(99))
	assert.Contains(t, string(entry.MakeByteString(-1)), "User-Signature")
}

func TestSignClearsLaterSignatures(t *testing.T) {
	t.Parallel()

	orgPair, err := crypto.SigningPairFromSeed(crypto.NewCS(orgSigningSeed))
	require.NoError(t, err)
	userPair, err := crypto.SigningPairFromSeed(crypto.NewCS(userSigningSeed))
	require.NoError(t, err)

	entry := makeUserEntry(t)
	require.NoError(t, entry.Sign(orgPair.PrivateKey, "Organization"))
	require.NoError(t, entry.GenerateHash("BLAKE2B-256"))
	require.NoError(t, entry.Sign(userPair.PrivateKey, "User"))

	// Re-signing an earlier slot wipes the hash and everything after it, so
	// signatures always form a growing prefix in schema order
	require.NoError(t, entry.Sign(orgPair.PrivateKey, "Organization"))
	assert.Empty(t, entry.Hash)
	assert.Empty(t, entry.Signatures["User"])

	// Field edits discard every signature and the hash
	require.NoError(t, entry.GenerateHash("BLAKE2B-256"))
	require.NoError(t, entry.SetField("Name", "Someone Else"))
	assert.Empty(t, entry.Hash)
	assert.Empty(t, entry.Signatures)
}

func TestVerifyHashDetectsMutation(t *testing.T) {
	t.Parallel()

	entry, _ := makeCompliantOrgEntry(t)
	require.NoError(t, entry.VerifyHash())

	// Mutating a field behind the API's back must break hash verification
	entry.Fields["Name"] = "Evil Twin, Inc."
	assert.ErrorIs(t, entry.VerifyHash(), ErrHashMismatch)
}

func TestGetHashUnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	entry := NewOrgEntry()
	_, err := entry.GetHash("MD5")
	assert.ErrorIs(t, err, crypto.ErrUnsupportedHashType)
}

func TestSignRejectsBadInput(t *testing.T) {
	t.Parallel()

	entry := makeUserEntry(t)

	encKey, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	assert.ErrorIs(t, entry.Sign(encKey.PrivateKey, "User"), crypto.ErrUnsupportedAlgorithm)

	pair, err := crypto.GenerateSigningPair()
	require.NoError(t, err)
	assert.Error(t, entry.Sign(pair.PrivateKey, "Notary"))
}

func TestDataComplianceEdges(t *testing.T) {
	t.Parallel()

	t.Run("index below 1", func(t *testing.T) {
		t.Parallel()
		entry, _ := makeCompliantOrgEntry(t)

		require.NoError(t, entry.SetField("Index", "0"))
		assert.Error(t, entry.IsDataCompliant())
	})

	t.Run("expiration before timestamp", func(t *testing.T) {
		t.Parallel()
		entry, _ := makeCompliantOrgEntry(t)

		require.NoError(t, entry.SetField("Expires", "20200101"))
		assert.Error(t, entry.IsDataCompliant())
	})

	t.Run("missing required field", func(t *testing.T) {
		t.Parallel()
		entry, _ := makeCompliantOrgEntry(t)

		delete(entry.Fields, "Contact-Admin")
		assert.ErrorIs(t, entry.IsDataCompliant(), ErrRequiredFieldMissing)
	})

	t.Run("bad admin address", func(t *testing.T) {
		t.Parallel()
		entry, _ := makeCompliantOrgEntry(t)

		require.NoError(t, entry.SetField("Contact-Admin", "admin/acme.com"))
		assert.Error(t, entry.IsDataCompliant())
	})

	t.Run("ttl out of range", func(t *testing.T) {
		t.Parallel()
		entry, _ := makeCompliantOrgEntry(t)

		require.NoError(t, entry.SetField("Time-To-Live", "31"))
		assert.Error(t, entry.IsDataCompliant())
	})
}

func TestIsCompliantRequiresSignatures(t *testing.T) {
	t.Parallel()

	entry, pair := makeCompliantOrgEntry(t)
	require.NoError(t, entry.IsCompliant())

	entry.Hash = ""
	assert.ErrorIs(t, entry.IsCompliant(), ErrSignatureMissing)

	require.NoError(t, entry.GenerateHash("BLAKE2B-256"))
	delete(entry.Signatures, "Organization")
	assert.ErrorIs(t, entry.IsCompliant(), ErrSignatureMissing)

	// Custody is optional for a root entry, but may not be empty if present
	require.NoError(t, entry.Sign(pair.PrivateKey, "Organization"))
	entry.Signatures["Custody"] = ""
	assert.ErrorIs(t, entry.IsCompliant(), ErrSignatureMissing)
}
