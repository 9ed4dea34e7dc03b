package keycard

import (
	"regexp"
	"strings"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

var (
	namePattern     = regexp.MustCompile(`\w+`)
	languagePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(,[a-zA-Z]{2,3})*$`)
)

// NewOrgEntry creates a new organization entry with defaults in place: a
// root index, the maximum time-to-live, the current timestamp, and a
// one-year expiration.
func NewOrgEntry() *Entry {
	e := &Entry{
		Type:       TypeOrganization,
		Fields:     make(map[string]string),
		Signatures: make(map[string]string),
		fieldNames: []string{
			"Index",
			"Name",
			"Contact-Admin",
			"Contact-Abuse",
			"Contact-Support",
			"Language",
			"Primary-Verification-Key",
			"Secondary-Verification-Key",
			"Encryption-Key",
			"Time-To-Live",
			"Expires",
			"Timestamp",
		},
		requiredFields: []string{
			"Index",
			"Name",
			"Contact-Admin",
			"Primary-Verification-Key",
			"Encryption-Key",
			"Time-To-Live",
			"Expires",
			"Timestamp",
		},
		sigSlots: []sigSlot{
			{Name: "Custody", Optional: true},
			{IsHash: true},
			{Name: "Organization"},
		},
	}

	e.Fields["Index"] = "1"
	e.Fields["Time-To-Live"] = "30"
	e.Fields["Timestamp"] = timestampNow(0)
	_ = e.SetExpiration(-1)
	return e
}

// validateOrgData checks the validity of all organization data fields.
func (e *Entry) validateOrgData() error {
	if err := e.validateCommonData(); err != nil {
		return err
	}

	if !isWAddress(e.Fields["Contact-Admin"]) {
		return trace.BadParameter("bad admin contact address")
	}

	// The key data itself can't be verified, but it must at least be
	// formatted correctly and decodable
	for _, keyField := range []string{"Primary-Verification-Key", "Encryption-Key"} {
		if !crypto.NewCS(e.Fields[keyField]).IsValid() {
			return trace.BadParameter("bad key field %s", keyField)
		}
	}

	for _, contactField := range []string{"Contact-Support", "Contact-Abuse"} {
		if value, ok := e.Fields[contactField]; ok {
			if !isWAddress(value) {
				return trace.BadParameter("bad contact address %s", contactField)
			}
		}
	}

	if value, ok := e.Fields["Language"]; ok {
		if !languagePattern.MatchString(value) {
			return trace.BadParameter("bad language list")
		}
	}

	if value, ok := e.Fields["Secondary-Verification-Key"]; ok {
		if !crypto.NewCS(value).IsValid() {
			return trace.BadParameter("bad secondary verification key")
		}
	}

	return nil
}

// validateCommonData checks the data fields shared by both entry types.
func (e *Entry) validateCommonData() error {
	if err := e.validateInteger("Index", 1, -1); err != nil {
		return err
	}

	// The Name field is mostly freeform, but it requires at least one
	// printable character and fewer than 64 code points
	if name, ok := e.Fields["Name"]; ok {
		if !namePattern.MatchString(name) || len([]rune(name)) >= 64 {
			return trace.BadParameter("bad name value")
		}
	}

	if err := e.validateInteger("Time-To-Live", 1, 30); err != nil {
		return err
	}

	return e.IsTimestampValid()
}

// IsDataCompliant performs the compliance checks for the data fields only,
// ignoring the signature and hash requirements.
func (e *Entry) IsDataCompliant() error {
	if e.Type != TypeOrganization && e.Type != TypeUser {
		return ErrUnsupportedKeycardType
	}

	for _, field := range e.requiredFields {
		value, ok := e.Fields[field]
		if !ok || strings.TrimSpace(value) == "" {
			return trace.Wrap(ErrRequiredFieldMissing, "missing field %s", field)
		}
		if value != strings.TrimSpace(value) {
			return trace.BadParameter("leading/trailing whitespace in field %s", field)
		}
	}

	if e.Type == TypeUser {
		return e.validateUserData()
	}
	return e.validateOrgData()
}

// IsCompliant checks the entry against the full set of requirements: data
// compliance plus the presence of every required signature and the hash.
func (e *Entry) IsCompliant() error {
	if err := e.IsDataCompliant(); err != nil {
		return err
	}

	for _, slot := range e.sigSlots {
		if slot.IsHash {
			if e.Hash == "" {
				return trace.Wrap(ErrSignatureMissing, "Hash")
			}
			continue
		}

		sig, present := e.Signatures[slot.Name]
		if slot.Optional {
			// Optional signatures, if present, may not be empty
			if present && sig == "" {
				return trace.Wrap(ErrSignatureMissing, "%s-Signature", slot.Name)
			}
		} else if !present || sig == "" {
			return trace.Wrap(ErrSignatureMissing, "%s-Signature", slot.Name)
		}
	}

	return nil
}

// isWAddress returns true for strings of the form workspace-ID/domain.
func isWAddress(s string) bool {
	return types.NewWAddress(s).IsValid()
}

// ChainKeys holds the key material generated when an entry is chained. Only
// the fields applicable to the entry type and rotation choice are set.
type ChainKeys struct {
	// Signing is the new primary signing pair: the organization's primary
	// verification key or the user's personal signing key.
	Signing *crypto.SigningPair

	// Encryption is the new general-purpose encryption pair. For user
	// entries it is only generated when optional keys are rotated.
	Encryption *crypto.EncryptionPair

	// AltSigning is the organization's new secondary signing pair, generated
	// only when optional keys are rotated.
	AltSigning *crypto.SigningPair

	// SecondaryVerification is the verification key placed in the new
	// organization entry's Secondary-Verification-Key field.
	SecondaryVerification crypto.CryptoString

	// CRSigning and CREncryption are the user's new contact request pairs,
	// refreshed on every chaining.
	CRSigning    *crypto.SigningPair
	CREncryption *crypto.EncryptionPair

	// AltEncryption is the user's new alternate encryption pair, generated
	// only when optional keys are rotated.
	AltEncryption *crypto.EncryptionPair
}

// chainOrg creates the next entry in an organization's chain of custody. The
// new entry receives fresh primary keys, and the old primary verification
// key is retired into the secondary slot unless rotateOptional asks for a
// brand-new secondary instead, which is recommended only for revocations.
func (e *Entry) chainOrg(signingKey crypto.CryptoString, rotateOptional bool) (*Entry, *ChainKeys, error) {
	newEntry := e.duplicate()
	if err := newEntry.incrementIndex(); err != nil {
		return nil, nil, err
	}
	newEntry.Fields["Timestamp"] = timestampNow(0)
	if err := newEntry.SetExpiration(-1); err != nil {
		return nil, nil, err
	}

	keys := &ChainKeys{}

	var err error
	if keys.Signing, err = crypto.GenerateSigningPair(); err != nil {
		return nil, nil, err
	}
	if keys.Encryption, err = crypto.GenerateEncryptionPair(); err != nil {
		return nil, nil, err
	}

	if rotateOptional {
		if keys.AltSigning, err = crypto.GenerateSigningPair(); err != nil {
			return nil, nil, err
		}
		keys.SecondaryVerification = keys.AltSigning.PublicKey
	} else {
		keys.SecondaryVerification = crypto.NewCS(e.Fields["Primary-Verification-Key"])
	}

	newEntry.Fields["Primary-Verification-Key"] = keys.Signing.PublicKey.AsString()
	newEntry.Fields["Encryption-Key"] = keys.Encryption.PublicKey.AsString()
	newEntry.Fields["Secondary-Verification-Key"] = keys.SecondaryVerification.AsString()

	newEntry.PrevHash = e.Hash
	if err = newEntry.Sign(signingKey, "Custody"); err != nil {
		return nil, nil, err
	}

	return newEntry, keys, nil
}

// verifyChainOrg verifies the chain of custody between the provided previous
// organization entry and this one.
func (e *Entry) verifyChainOrg(previous *Entry) error {
	if sig, ok := e.Signatures["Custody"]; !ok || sig == "" {
		return trace.NotFound("custody signature missing")
	}

	verifyKey := previous.Fields["Primary-Verification-Key"]
	if verifyKey == "" {
		return trace.NotFound("signing key missing from previous entry")
	}

	if err := e.verifyIndexSequence(previous); err != nil {
		return err
	}

	return e.VerifySignature(crypto.NewCS(verifyKey), "Custody")
}

// verifyIndexSequence confirms that this entry's index is exactly one more
// than the previous entry's.
func (e *Entry) verifyIndexSequence(previous *Entry) error {
	if err := previous.validateInteger("Index", 1, -1); err != nil {
		return trace.BadParameter("previous entry has a bad index")
	}
	if err := e.validateInteger("Index", 1, -1); err != nil {
		return trace.BadParameter("current entry has a bad index")
	}

	prevIndex := previous.Fields["Index"]
	index := e.Fields["Index"]
	if !indexFollows(prevIndex, index) {
		return trace.Wrap(ErrInvalidKeycard, "entry index compliance failure")
	}
	return nil
}
