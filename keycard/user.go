package keycard

import (
	"strconv"
	"time"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// NewUserEntry creates a new user entry with defaults in place. The
// timestamp is back-dated five minutes so that minor clock differences
// between the client and the server don't cause trouble.
func NewUserEntry() *Entry {
	e := &Entry{
		Type:       TypeUser,
		Fields:     make(map[string]string),
		Signatures: make(map[string]string),
		fieldNames: []string{
			"Index",
			"Name",
			"Workspace-ID",
			"User-ID",
			"Domain",
			"Contact-Request-Verification-Key",
			"Contact-Request-Encryption-Key",
			"Public-Encryption-Key",
			"Alternate-Encryption-Key",
			"Time-To-Live",
			"Expires",
			"Timestamp",
		},
		requiredFields: []string{
			"Index",
			"Workspace-ID",
			"Domain",
			"Contact-Request-Verification-Key",
			"Contact-Request-Encryption-Key",
			"Public-Encryption-Key",
			"Time-To-Live",
			"Expires",
			"Timestamp",
		},
		sigSlots: []sigSlot{
			{Name: "Custody", Optional: true},
			{Name: "Organization"},
			{IsHash: true},
			{Name: "User"},
		},
	}

	e.Fields["Index"] = "1"
	e.Fields["Time-To-Live"] = "7"
	e.Fields["Timestamp"] = timestampNow(-5 * time.Minute)
	_ = e.SetExpiration(-1)
	return e
}

// validateUserData checks the validity of all user data fields.
func (e *Entry) validateUserData() error {
	if err := e.validateCommonData(); err != nil {
		return err
	}

	if !types.ValidateUUID(e.Fields["Workspace-ID"]) {
		return trace.BadParameter("bad workspace ID")
	}

	domain := e.Fields["Domain"]
	if !types.ValidateDomain(domain) || len(domain) >= 64 {
		return trace.BadParameter("bad domain value")
	}

	for _, keyField := range []string{"Contact-Request-Verification-Key",
		"Contact-Request-Encryption-Key", "Public-Encryption-Key"} {
		if !crypto.NewCS(e.Fields[keyField]).IsValid() {
			return trace.BadParameter("bad key field %s", keyField)
		}
	}

	if value, ok := e.Fields["User-ID"]; ok {
		if !types.NewUserID(value).IsValid() {
			return trace.BadParameter("bad user id value")
		}
	}

	if value, ok := e.Fields["Alternate-Encryption-Key"]; ok {
		if !crypto.NewCS(value).IsValid() {
			return trace.BadParameter("bad alternate encryption key")
		}
	}

	return nil
}

// chainUser creates the next entry in a user's chain of custody. The contact
// request keys are refreshed on every chaining; the general-purpose and
// alternate encryption keys are refreshed only when rotateOptional is set so
// that they can rotate on a different schedule from the other keys.
func (e *Entry) chainUser(signingKey crypto.CryptoString, rotateOptional bool) (*Entry, *ChainKeys, error) {
	newEntry := e.duplicate()
	if err := newEntry.incrementIndex(); err != nil {
		return nil, nil, err
	}
	newEntry.Fields["Timestamp"] = timestampNow(-5 * time.Minute)
	if err := newEntry.SetExpiration(-1); err != nil {
		return nil, nil, err
	}

	keys := &ChainKeys{}

	var err error
	if keys.Signing, err = crypto.GenerateSigningPair(); err != nil {
		return nil, nil, err
	}
	if keys.CRSigning, err = crypto.GenerateSigningPair(); err != nil {
		return nil, nil, err
	}
	if keys.CREncryption, err = crypto.GenerateEncryptionPair(); err != nil {
		return nil, nil, err
	}

	newEntry.Fields["Contact-Request-Verification-Key"] = keys.CRSigning.PublicKey.AsString()
	newEntry.Fields["Contact-Request-Encryption-Key"] = keys.CREncryption.PublicKey.AsString()

	if rotateOptional {
		if keys.Encryption, err = crypto.GenerateEncryptionPair(); err != nil {
			return nil, nil, err
		}
		if keys.AltEncryption, err = crypto.GenerateEncryptionPair(); err != nil {
			return nil, nil, err
		}

		newEntry.Fields["Public-Encryption-Key"] = keys.Encryption.PublicKey.AsString()
		newEntry.Fields["Alternate-Encryption-Key"] = keys.AltEncryption.PublicKey.AsString()
	}

	newEntry.PrevHash = e.Hash
	if err = newEntry.Sign(signingKey, "Custody"); err != nil {
		return nil, nil, err
	}

	return newEntry, keys, nil
}

// verifyChainUser verifies the chain of custody between the provided
// previous user entry and this one.
func (e *Entry) verifyChainUser(previous *Entry) error {
	if sig, ok := e.Signatures["Custody"]; !ok || sig == "" {
		return trace.NotFound("custody signature missing")
	}

	verifyKey := previous.Fields["Contact-Request-Verification-Key"]
	if verifyKey == "" {
		return trace.NotFound("signing key missing from previous entry")
	}

	if err := e.verifyIndexSequence(previous); err != nil {
		return err
	}

	return e.VerifySignature(crypto.NewCS(verifyKey), "Custody")
}

// Chain creates the next entry in the chain of custody: a copy of this one
// with a bumped index, a fresh timestamp and expiration, newly generated
// keys, the previous hash filled in, and a Custody signature made with this
// entry's governing signing key. The current entry must be fully compliant.
//
// Organization entries are governed by the primary signing key; user entries
// by the contact request signing key. All freshly generated key material is
// returned alongside the new entry.
func (e *Entry) Chain(signingKey crypto.CryptoString, rotateOptional bool) (*Entry, *ChainKeys, error) {
	if signingKey.Prefix != "ED25519" {
		return nil, nil, trace.BadParameter("wrong key type %s", signingKey.Prefix)
	}

	if err := e.IsCompliant(); err != nil {
		return nil, nil, err
	}

	if e.Type == TypeOrganization {
		return e.chainOrg(signingKey, rotateOptional)
	}
	return e.chainUser(signingKey, rotateOptional)
}

// VerifyChain verifies the chain of custody between the provided previous
// entry and this one: matching types, a Custody signature, an index exactly
// one greater, and a valid signature under the previous entry's governing
// verification key.
func (e *Entry) VerifyChain(previous *Entry) error {
	if previous.Type != e.Type {
		return trace.BadParameter("entry type mismatch")
	}

	if e.Type == TypeOrganization {
		return e.verifyChainOrg(previous)
	}
	return e.verifyChainUser(previous)
}

// indexFollows reports whether index b is exactly one greater than index a.
func indexFollows(a string, b string) bool {
	aVal, err := strconv.Atoi(a)
	if err != nil {
		return false
	}
	bVal, err := strconv.Atoi(b)
	if err != nil {
		return false
	}
	return bVal == aVal+1
}
