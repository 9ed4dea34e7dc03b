package crypto

import (
	"regexp"

	"github.com/darkwyrm/b85"
	"github.com/gravitational/trace"
)

// cryptoStringPattern matches the full CryptoString format: a 1-15 character
// algorithm prefix of capital ASCII letters, numbers, and dashes, a colon, and
// at least one character of Base85-encoded data.
var cryptoStringPattern = regexp.MustCompile(`^[A-Z0-9-]{1,15}:[0-9A-Za-z!#$%&()*+\-;<=>?@^_` + "`" + `{|}~]+$`)

// CryptoString bundles cryptographic data -- a key, a hash, or a signature --
// with the name of the algorithm that produced it in a text-friendly format.
// All keys, hashes, and signatures in the SDK are passed around in this form.
//
// The format is ALGORITHM:DATA, where DATA is Base85-encoded (RFC 1924) raw
// byte data, e.g. `BLAKE2B-256:?*e?y<{rk(fHiWV@L(eiMLW<&}ajy?45b{Z(TV`.
type CryptoString struct {
	Prefix string
	Data   string
}

// NewCS creates a CryptoString from a string in ALGORITHM:DATA format. If the
// string is invalid, the returned instance is empty.
func NewCS(s string) CryptoString {
	var out CryptoString
	_ = out.Set(s)
	return out
}

// NewCSFromBytes creates a CryptoString from an algorithm name and raw,
// unencoded byte data.
func NewCSFromBytes(algorithm string, buffer []byte) CryptoString {
	var out CryptoString
	_ = out.SetFromBytes(algorithm, buffer)
	return out
}

// Set initializes the instance from a string in ALGORITHM:DATA format. The
// data portion is expected to be Base85-encoded raw byte data.
func (cs *CryptoString) Set(s string) error {
	cs.MakeEmpty()

	if !cryptoStringPattern.MatchString(s) {
		return trace.BadParameter("bad CryptoString format")
	}

	// The prefix pattern guarantees exactly one colon before the data
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			cs.Prefix = s[:i]
			cs.Data = s[i+1:]
			break
		}
	}

	if _, err := b85.Decode(cs.Data); err != nil {
		cs.MakeEmpty()
		return trace.BadParameter("error decoding CryptoString data")
	}

	return nil
}

// SetFromBytes initializes the instance from an algorithm name and raw byte
// data, which is encoded to Base85 internally.
func (cs *CryptoString) SetFromBytes(algorithm string, buffer []byte) error {
	cs.MakeEmpty()

	if len(algorithm) == 0 || len(buffer) == 0 {
		return trace.BadParameter("algorithm and data may not be empty")
	}

	return cs.Set(algorithm + ":" + b85.Encode(buffer))
}

// AsString returns the instance as a string in ALGORITHM:DATA format.
func (cs CryptoString) AsString() string {
	return cs.Prefix + ":" + cs.Data
}

// AsBytes returns the instance as a byte slice in ALGORITHM:DATA format.
func (cs CryptoString) AsBytes() []byte {
	return []byte(cs.AsString())
}

// RawData decodes the data portion of the instance and returns the raw bytes.
func (cs CryptoString) RawData() ([]byte, error) {
	out, err := b85.Decode(cs.Data)
	if err != nil {
		return nil, trace.BadParameter("error decoding CryptoString data")
	}
	return out, nil
}

// IsValid returns false if either the prefix or the data is missing.
func (cs CryptoString) IsValid() bool {
	return cryptoStringPattern.MatchString(cs.AsString())
}

// IsEmpty returns true if the instance has no value.
func (cs CryptoString) IsEmpty() bool {
	return cs.Prefix == "" && cs.Data == ""
}

// Equals returns true if both components of the two strings match.
func (cs CryptoString) Equals(other CryptoString) bool {
	return cs.Prefix == other.Prefix && cs.Data == other.Data
}

// MakeEmpty clears the value of the instance.
func (cs *CryptoString) MakeEmpty() {
	cs.Prefix = ""
	cs.Data = ""
}
