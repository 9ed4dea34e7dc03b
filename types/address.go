// Package types contains the basic data types used across the Mensago Go
// SDK: workspace IDs, user IDs, domains, and the two address forms. They
// exist primarily for validation and consistency in the API.
package types

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
)

var (
	uuidPattern    = regexp.MustCompile(`^[\da-fA-F]{8}-[\da-fA-F]{4}-[\da-fA-F]{4}-[\da-fA-F]{4}-[\da-fA-F]{12}$`)
	domainPattern  = regexp.MustCompile(`^([a-zA-Z0-9-]+\.)+[a-zA-Z0-9-]+$`)
	illegalPattern = regexp.MustCompile(`[\s\\/"A-Z]`)
)

// RandomID is a string-based type for handling UUIDs.
//
// Formatting is always lowercase with dashes, a platform requirement to
// ensure consistency and fewer bugs. Generated IDs are always the random
// (v4) kind.
type RandomID struct {
	value string
}

// NewRandomID creates a RandomID from a string. If the string is not a valid
// UUID, the returned instance is empty.
func NewRandomID(s string) RandomID {
	var out RandomID
	_ = out.Set(s)
	return out
}

// Generate assigns a new random UUID to the instance and returns its value.
func (id *RandomID) Generate() string {
	id.value = uuid.NewString()
	return id.value
}

// Set assigns a value to the instance. Case is squashed and surrounding
// whitespace is removed before validation.
func (id *RandomID) Set(s string) error {
	value := strings.ToLower(strings.TrimSpace(s))
	if !uuidPattern.MatchString(value) {
		id.value = ""
		return trace.BadParameter("bad workspace ID")
	}
	id.value = value
	return nil
}

// IsValid returns true if the instance contains a valid UUID.
func (id RandomID) IsValid() bool {
	return uuidPattern.MatchString(id.value)
}

// IsEmpty returns true if the instance has no value.
func (id RandomID) IsEmpty() bool {
	return id.value == ""
}

// AsString returns the value of the instance as a string.
func (id RandomID) AsString() string {
	return id.value
}

// UserID is a basic data type for housing Mensago user IDs.
//
// User IDs must be no more than 64 Unicode code points and may not contain
// whitespace, backslashes, forward slashes, double quotes, or capital
// letters. Because of the relatively freeform format, a workspace ID is
// also a valid user ID; such values are flagged by IsWID.
type UserID struct {
	value   string
	widFlag bool
}

// NewUserID creates a UserID from a string. If the string is invalid, the
// returned instance is empty.
func NewUserID(s string) UserID {
	var out UserID
	_ = out.Set(s)
	return out
}

// Set assigns a value to the instance. Case is squashed and surrounding
// whitespace is removed before validation.
func (uid *UserID) Set(s string) error {
	value := strings.ToLower(strings.TrimSpace(s))
	if value == "" || len([]rune(value)) > 64 || illegalPattern.MatchString(value) {
		uid.value = ""
		uid.widFlag = false
		return trace.BadParameter("bad user ID")
	}
	uid.value = value
	uid.widFlag = uuidPattern.MatchString(value)
	return nil
}

// IsValid returns true if the instance is a valid Mensago user ID.
func (uid UserID) IsValid() bool {
	if uid.value == "" || illegalPattern.MatchString(uid.value) {
		return false
	}
	return len([]rune(uid.value)) <= 64
}

// IsWID returns true if the user ID is actually a workspace ID.
func (uid UserID) IsWID() bool {
	return uid.widFlag
}

// IsEmpty returns true if the instance has no value.
func (uid UserID) IsEmpty() bool {
	return uid.value == ""
}

// AsWID returns the user ID as a RandomID. The returned value is empty if
// the user ID is not a workspace ID.
func (uid UserID) AsWID() RandomID {
	if !uid.widFlag {
		return RandomID{}
	}
	return RandomID{value: uid.value}
}

// AsString returns the value of the instance as a string.
func (uid UserID) AsString() string {
	return uid.value
}

// Domain is a basic data type representing an Internet domain. It exists
// mainly to ensure valid domains are utilized across the library.
type Domain struct {
	value string
}

// NewDomain creates a Domain from a string. If the string is invalid, the
// returned instance is empty.
func NewDomain(s string) Domain {
	var out Domain
	_ = out.Set(s)
	return out
}

// Set assigns a value to the instance. Case is squashed and surrounding
// whitespace is removed before validation.
func (d *Domain) Set(s string) error {
	value := strings.ToLower(strings.TrimSpace(s))
	if !domainPattern.MatchString(value) {
		d.value = ""
		return trace.BadParameter("bad domain")
	}
	d.value = value
	return nil
}

// IsValid returns true if the instance contains a valid Internet domain.
func (d Domain) IsValid() bool {
	return domainPattern.MatchString(d.value)
}

// IsEmpty returns true if the instance has no value.
func (d Domain) IsEmpty() bool {
	return d.value == ""
}

// AsString returns the value of the instance as a string.
func (d Domain) AsString() string {
	return d.value
}

// MAddress represents a full Mensago address: a user ID or workspace ID
// joined to a domain with a slash.
type MAddress struct {
	ID     UserID
	Domain Domain
}

// NewMAddress creates an MAddress from a string. If the string is invalid,
// the returned instance is empty.
func NewMAddress(addr string) MAddress {
	var out MAddress
	_ = out.Set(addr)
	return out
}

// Set assigns a value to the instance from a string in userid/domain form.
func (addr *MAddress) Set(s string) error {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return trace.BadParameter("bad address given")
	}

	if err := addr.ID.Set(parts[0]); err != nil {
		return err
	}
	if err := addr.Domain.Set(parts[1]); err != nil {
		return err
	}
	return nil
}

// IsValid returns true if the address is valid.
func (addr MAddress) IsValid() bool {
	return addr.ID.IsValid() && addr.Domain.IsValid()
}

// IsEmpty returns true if the address has no value.
func (addr MAddress) IsEmpty() bool {
	return addr.ID.IsEmpty() && addr.Domain.IsEmpty()
}

// AsString returns the value of the address as a string.
func (addr MAddress) AsString() string {
	return addr.ID.AsString() + "/" + addr.Domain.AsString()
}

// WAddress represents a workspace address, which is the same as an MAddress
// except that the workspace ID is strictly required.
type WAddress struct {
	ID     RandomID
	Domain Domain
}

// NewWAddress creates a WAddress from a string. If the string is invalid,
// the returned instance is empty.
func NewWAddress(addr string) WAddress {
	var out WAddress
	_ = out.Set(addr)
	return out
}

// Set assigns a value to the instance from a string in wid/domain form.
func (addr *WAddress) Set(s string) error {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return trace.BadParameter("bad address given")
	}

	var id RandomID
	if err := id.Set(parts[0]); err != nil {
		return err
	}
	var domain Domain
	if err := domain.Set(parts[1]); err != nil {
		return err
	}
	addr.ID = id
	addr.Domain = domain
	return nil
}

// IsValid returns true if the instance is a valid workspace address.
func (addr WAddress) IsValid() bool {
	return addr.ID.IsValid() && addr.Domain.IsValid()
}

// IsEmpty returns true if the instance has no value.
func (addr WAddress) IsEmpty() bool {
	return addr.ID.IsEmpty() && addr.Domain.IsEmpty()
}

// AsString returns the value of the instance as a string.
func (addr WAddress) AsString() string {
	return addr.ID.AsString() + "/" + addr.Domain.AsString()
}

// AsMAddress returns an MAddress with the same address value.
func (addr WAddress) AsMAddress() MAddress {
	var out MAddress
	_ = out.Set(addr.AsString())
	return out
}

// ValidateUUID returns true if the string is a canonically-formatted UUID.
func ValidateUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// ValidateDomain returns true if the string is a valid Internet domain.
func ValidateDomain(s string) bool {
	return domainPattern.MatchString(s)
}
