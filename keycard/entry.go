// Package keycard implements the signed, hash-chained identity ledger used
// by the Mensago platform. A keycard is an append-only list of entries, each
// carrying typed fields, up to three signatures, and a content hash. The
// byte-exact serialization produced by MakeByteString is the sole canonical
// form: every signature and every hash is computed over its output, and the
// line endings are always CRLF regardless of platform.
package keycard

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
)

// Entry type tags. These appear in the Type line of the serialized form.
const (
	TypeOrganization = "Organization"
	TypeUser         = "User"
)

// sigSlot describes one position in an entry's signature schema: either a
// named signature or the slot where Previous-Hash and Hash are emitted. The
// order of slots in the schema is the order the lines appear on the wire,
// and the index of a slot is its signature level.
type sigSlot struct {
	Name     string
	Optional bool
	IsHash   bool
}

// Entry is one record in a keycard. Field order, required fields, and the
// signature schema are fixed by the entry type; use NewOrgEntry or
// NewUserEntry to get a correctly-configured instance.
type Entry struct {
	Type       string
	Fields     map[string]string
	Signatures map[string]string
	PrevHash   string
	Hash       string

	fieldNames     []string
	requiredFields []string
	sigSlots       []sigSlot
}

// timestampNow returns the current UTC time in the compact format used by
// entry Timestamp fields.
func timestampNow(offset time.Duration) string {
	return time.Now().UTC().Add(offset).Format("20060102T150405Z")
}

// SetField assigns a value to the named field. Editing of any kind
// invalidates the signatures and the hash.
func (e *Entry) SetField(name string, value string) error {
	if name == "" {
		return trace.BadParameter("field name may not be empty")
	}
	e.Fields[name] = value

	e.Signatures = make(map[string]string)
	e.Hash = ""
	return nil
}

// SetFields assigns a map of fields to the entry. Fields which are not part
// of the official set are assigned but otherwise ignored.
func (e *Entry) SetFields(fields map[string]string) error {
	e.Signatures = make(map[string]string)
	e.Hash = ""

	for k, v := range fields {
		if strings.HasSuffix(k, "Signature") {
			role, _, _ := strings.Cut(k, "-")
			if !isSignatureRole(role) {
				return trace.BadParameter("bad signature field %s", k)
			}
			e.Signatures[role] = v
		} else {
			e.Fields[k] = v
		}
	}
	return nil
}

// Set assigns the entry's information from the canonical byte string form.
func (e *Entry) Set(data []byte) error {
	for _, rawLine := range strings.Split(string(data), "\r\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		name, value, found := strings.Cut(line, ":")
		if !found || name == "" {
			return trace.BadParameter("bad entry line %s", line)
		}

		switch {
		case name == "Type":
			if value != e.Type {
				return trace.BadParameter("can't use %s data on a %s entry", value, e.Type)
			}
		case name == "Previous-Hash":
			e.PrevHash = value
		case name == "Hash":
			e.Hash = value
		case strings.HasSuffix(name, "-Signature"):
			role, _, _ := strings.Cut(name, "-")
			if !isSignatureRole(role) {
				return trace.BadParameter("bad signature line %s", name)
			}
			e.Signatures[role] = value
		default:
			e.Fields[name] = value
		}
	}
	return nil
}

func isSignatureRole(role string) bool {
	switch role {
	case "Custody", "User", "Organization", "Entry":
		return true
	}
	return false
}

// GetSignature returns the signature stored for the requested role.
func (e *Entry) GetSignature(role string) (crypto.CryptoString, error) {
	sig, ok := e.Signatures[role]
	if !ok {
		return crypto.CryptoString{}, trace.NotFound("signature %s not found", role)
	}
	if sig == "" {
		return crypto.CryptoString{}, ErrSignatureMissing
	}

	out := crypto.NewCS(sig)
	if !out.IsValid() {
		return crypto.CryptoString{}, trace.BadParameter("bad signature for %s", role)
	}
	return out, nil
}

// MakeByteString creates the canonical byte string for the entry: the Type
// line, each declared field in declared order, and the signature slots up to
// but not including the given level. A negative or out-of-range level
// includes every slot. Lines are joined by CRLF and the output ends with a
// trailing CRLF.
func (e *Entry) MakeByteString(level int) []byte {
	if level < 0 || level > len(e.sigSlots) {
		level = len(e.sigSlots)
	}

	lines := make([]string, 0, len(e.fieldNames)+len(e.sigSlots)+2)
	if e.Type != "" {
		lines = append(lines, "Type:"+e.Type)
	}

	for _, name := range e.fieldNames {
		if value, ok := e.Fields[name]; ok && value != "" {
			lines = append(lines, name+":"+value)
		}
	}

	for i := 0; i < level; i++ {
		slot := e.sigSlots[i]
		if slot.IsHash {
			if e.PrevHash != "" {
				lines = append(lines, "Previous-Hash:"+e.PrevHash)
			}
			if e.Hash != "" {
				lines = append(lines, "Hash:"+e.Hash)
			}
		} else if sig := e.Signatures[slot.Name]; sig != "" {
			lines = append(lines, slot.Name+"-Signature:"+sig)
		}
	}

	lines = append(lines, "")
	return []byte(strings.Join(lines, "\r\n"))
}

// hashSlotIndex returns the position of the hash slot in the signature
// schema.
func (e *Entry) hashSlotIndex() int {
	for i, slot := range e.sigSlots {
		if slot.IsHash {
			return i
		}
	}
	return -1
}

// slotIndex returns the position of the named signature role in the schema,
// or -1 if the role is not part of it.
func (e *Entry) slotIndex(role string) int {
	for i, slot := range e.sigSlots {
		if !slot.IsHash && slot.Name == role {
			return i
		}
	}
	return -1
}

// GetHash computes the hash of the entry's contents up to the hash slot and
// returns it as a CryptoString. The supported algorithms are those of
// crypto.HashBuffer.
func (e *Entry) GetHash(algorithm string) (crypto.CryptoString, error) {
	return crypto.HashBuffer(e.MakeByteString(e.hashSlotIndex()), algorithm)
}

// GenerateHash computes the entry's hash with the given algorithm and stores
// it in the Hash field.
func (e *Entry) GenerateHash(algorithm string) error {
	hash, err := e.GetHash(algorithm)
	if err != nil {
		return err
	}
	e.Hash = hash.AsString()
	return nil
}

// VerifyHash recomputes the entry's hash using the algorithm named in the
// stored hash field and compares the two.
func (e *Entry) VerifyHash() error {
	current := crypto.NewCS(e.Hash)
	if !current.IsValid() {
		return trace.BadParameter("entry hash is not a valid CryptoString")
	}

	computed, err := e.GetHash(current.Prefix)
	if err != nil {
		return err
	}
	if !computed.Equals(current) {
		return ErrHashMismatch
	}
	return nil
}

// Sign adds a signature to the entry using the supplied ED25519 signing key.
// Because each signature covers the ones before it, signing a role deletes
// every signature which follows it in the schema, along with the hash when
// the role precedes the hash slot.
func (e *Entry) Sign(signingKey crypto.CryptoString, role string) error {
	if !signingKey.IsValid() {
		return trace.BadParameter("bad signing key")
	}
	if signingKey.Prefix != "ED25519" {
		return crypto.ErrUnsupportedAlgorithm
	}

	index := e.slotIndex(role)
	if index < 0 {
		return trace.BadParameter("bad signature role %s", role)
	}

	for i := index; i < len(e.sigSlots); i++ {
		slot := e.sigSlots[i]
		if slot.IsHash {
			e.Hash = ""
		} else {
			delete(e.Signatures, slot.Name)
		}
	}

	signature, err := crypto.SignData(signingKey, e.MakeByteString(index+1))
	if err != nil {
		return err
	}
	e.Signatures[role] = signature.AsString()
	return nil
}

// VerifySignature verifies the signature stored for the given role against
// the supplied verification key.
func (e *Entry) VerifySignature(verifyKey crypto.CryptoString, role string) error {
	if !verifyKey.IsValid() {
		return trace.BadParameter("bad verification key")
	}
	if verifyKey.Prefix != "ED25519" {
		return crypto.ErrUnsupportedAlgorithm
	}

	index := e.slotIndex(role)
	if index < 0 {
		return trace.BadParameter("bad signature role %s", role)
	}

	signature, err := e.GetSignature(role)
	if err != nil {
		return err
	}

	if err = crypto.VerifySignature(verifyKey, e.MakeByteString(index), signature); err != nil {
		if errors.Is(err, crypto.ErrVerificationFailure) {
			return ErrInvalidKeycard
		}
		return err
	}
	return nil
}

// SetExpiration sets the Expires field to the given number of days after the
// current date, or the type's default when the count is negative. Expiration
// dates are capped at three years out.
func (e *Entry) SetExpiration(numDays int) error {
	if numDays < 0 {
		switch e.Type {
		case TypeOrganization:
			numDays = 365
		case TypeUser:
			numDays = 90
		default:
			return ErrUnsupportedKeycardType
		}
	}
	if numDays > 1095 {
		numDays = 1095
	}

	expires := time.Now().UTC().AddDate(0, 0, numDays)
	e.Fields["Expires"] = expires.Format("20060102")
	return nil
}

// IsExpired checks if the entry's expiration date has passed.
func (e *Entry) IsExpired() error {
	expiresStr, ok := e.Fields["Expires"]
	if !ok || expiresStr == "" {
		return ErrRequiredFieldMissing
	}

	expires, err := time.Parse("20060102", expiresStr)
	if err != nil {
		return trace.BadParameter("bad expiration date")
	}

	if time.Now().UTC().After(expires.AddDate(0, 0, 1)) {
		return trace.BadParameter("entry is expired")
	}
	return nil
}

// IsTimestampValid checks the validity of the Timestamp field. As a side
// effect it also validates the format of the Expires field, but it does not
// check whether the entry has actually expired.
func (e *Entry) IsTimestampValid() error {
	expires, err := time.Parse("20060102", e.Fields["Expires"])
	if err != nil {
		return trace.BadParameter("bad expiration date")
	}

	timestamp, err := time.Parse("20060102T150405Z", e.Fields["Timestamp"])
	if err != nil {
		return trace.BadParameter("bad timestamp")
	}

	// The expiration date has day granularity, so compare against the end of
	// that day
	if timestamp.After(expires.AddDate(0, 0, 1)) {
		return trace.BadParameter("timestamp later than expiration")
	}
	return nil
}

// validateInteger checks that the named field holds a non-negative integer,
// optionally inside the given range. Pass -1 to skip either bound.
func (e *Entry) validateInteger(name string, minVal int, maxVal int) error {
	value, ok := e.Fields[name]
	if !ok {
		return trace.BadParameter("field %s does not exist", name)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil || intValue < 0 {
		return trace.BadParameter("bad value for field %s", name)
	}

	if minVal != -1 && intValue < minVal {
		return trace.BadParameter("field %s less than minimum", name)
	}
	if maxVal != -1 && intValue > maxVal {
		return trace.BadParameter("field %s greater than maximum", name)
	}
	return nil
}

// Save writes the entry's canonical byte string to the specified path. The
// file is written in binary mode so that the CRLF line endings survive on
// every platform.
func (e *Entry) Save(path string, clobber bool) error {
	if path == "" {
		return trace.BadParameter("path may not be empty")
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !clobber {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	handle, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return trace.AlreadyExists("%s exists", path)
		}
		return trace.ConvertSystemError(err)
	}
	defer handle.Close()

	if _, err = handle.Write(e.MakeByteString(-1)); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// duplicate returns a deep copy of the entry's data fields in a fresh
// instance of the same type. Signatures and hashes are not copied.
func (e *Entry) duplicate() *Entry {
	var out *Entry
	if e.Type == TypeOrganization {
		out = NewOrgEntry()
	} else {
		out = NewUserEntry()
	}

	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	return out
}

// incrementIndex bumps the copied Index field by one.
func (e *Entry) incrementIndex() error {
	index, err := strconv.Atoi(e.Fields["Index"])
	if err != nil {
		return trace.BadParameter("invalid entry index")
	}
	e.Fields["Index"] = strconv.Itoa(index + 1)
	return nil
}
