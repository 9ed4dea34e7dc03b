package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for new hashes. Verification honors whatever
// parameters are encoded in the stored hash string.
const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// PasswordStrength is a qualitative rating of password quality.
type PasswordStrength string

const (
	StrengthVeryWeak   PasswordStrength = "very weak"
	StrengthWeak       PasswordStrength = "weak"
	StrengthMedium     PasswordStrength = "medium"
	StrengthStrong     PasswordStrength = "strong"
	StrengthVeryStrong PasswordStrength = "very strong"
)

var (
	digitPattern       = regexp.MustCompile(`\d`)
	upperPattern       = regexp.MustCompile(`[A-Z]`)
	lowerPattern       = regexp.MustCompile(`[a-z]`)
	punctuationPattern = regexp.MustCompile("[~`!@#$%^&*()_={}/<>,.:;|'[\\]\"\\\\+?-]")
)

// CheckPasswordComplexity rates the given passphrase and returns an error if
// it does not meet the minimum security standards: at least 8 characters,
// and at least three character classes when under 12 characters.
func CheckPasswordComplexity(password string) (PasswordStrength, error) {
	if len(password) < 8 {
		return StrengthVeryWeak, trace.BadParameter("passphrase must be at least 8 characters")
	}

	score := 0

	// Non-ASCII passwords are absolutely permitted. They greatly increase
	// the keyspace.
	for _, r := range password {
		if r > unicode.MaxASCII {
			score++
			break
		}
	}

	if digitPattern.MatchString(password) {
		score++
	}
	if upperPattern.MatchString(password) {
		score++
	}
	if lowerPattern.MatchString(password) {
		score++
	}
	if punctuationPattern.MatchString(password) {
		score++
	}

	strengths := []PasswordStrength{StrengthVeryWeak, StrengthVeryWeak, StrengthWeak,
		StrengthMedium, StrengthStrong, StrengthVeryStrong}

	if (len(password) < 12 && score < 3) || score < 2 {
		return strengths[score], trace.BadParameter("passphrase too weak")
	}
	return strengths[score], nil
}

// Password encapsulates hashed password interactions. Hashes use the
// Argon2id algorithm stored in PHC string format.
type Password struct {
	HashType   string
	HashString string
	Strength   PasswordStrength
}

// NewPassword creates an empty Password instance.
func NewPassword() *Password {
	return &Password{HashType: "argon2id"}
}

// Set checks the text against the complexity policy and, if it passes,
// stores an Argon2id hash of it.
func (p *Password) Set(text string) error {
	strength, err := CheckPasswordComplexity(text)
	if err != nil {
		return err
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return trace.Wrap(err)
	}

	key := argon2.IDKey([]byte(text), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	p.HashString = fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
	p.Strength = strength
	return nil
}

// Assign adopts an existing PHC hash string, such as one loaded from the
// profile database. The strength rating is left empty because the original
// cleartext is unavailable to rate.
func (p *Password) Assign(hash string) error {
	if _, _, _, err := parseArgonHash(hash); err != nil {
		return err
	}
	p.HashString = hash
	p.Strength = ""
	return nil
}

// Verify checks the supplied password text against the stored hash.
func (p *Password) Verify(text string) bool {
	params, salt, key, err := parseArgonHash(p.HashString)
	if err != nil {
		return false
	}

	other := argon2.IDKey([]byte(text), salt, params.time, params.memory, params.threads,
		uint32(len(key)))
	return subtle.ConstantTimeCompare(key, other) == 1
}

// IsValid returns true if the instance contains a hash. A password may be
// weak, or carry no strength rating at all, and still be valid.
func (p *Password) IsValid() bool {
	return p.HashString != ""
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseArgonHash(hash string) (argonParams, []byte, []byte, error) {
	var params argonParams

	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, trace.BadParameter("not an argon2id PHC hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, trace.BadParameter("bad PHC version field")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time,
		&params.threads); err != nil {
		return params, nil, nil, trace.BadParameter("bad PHC parameter field")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, trace.BadParameter("bad PHC salt field")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, trace.BadParameter("bad PHC hash field")
	}

	return params, salt, key, nil
}
