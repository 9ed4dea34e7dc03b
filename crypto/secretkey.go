package crypto

import (
	"crypto/rand"

	"github.com/darkwyrm/b85"
	"github.com/gravitational/trace"
	"golang.org/x/crypto/nacl/secretbox"
)

// SecretKey represents a symmetric encryption key. Encryption generates a
// fresh random nonce on every call and prepends it to the ciphertext, so a
// key may be safely reused across messages.
type SecretKey struct {
	Key     CryptoString
	KeyHash CryptoString
}

// GenerateSecretKey creates a new XSALSA20 symmetric key from the operating
// system's random number generator.
func GenerateSecretKey() (*SecretKey, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, trace.Wrap(err)
	}
	return NewSecretKey(NewCSFromBytes("XSALSA20", raw[:]))
}

// NewSecretKey creates a SecretKey from an existing key string.
func NewSecretKey(key CryptoString) (*SecretKey, error) {
	if !key.IsValid() {
		return nil, trace.BadParameter("invalid key data")
	}
	if key.Prefix != "XSALSA20" {
		return nil, ErrUnsupportedAlgorithm
	}

	return &SecretKey{
		Key:     key,
		KeyHash: hashKeyData(key),
	}, nil
}

// Encrypt encrypts the data with a random nonce and returns nonce-plus-box
// as Base85-encoded text.
func (key *SecretKey) Encrypt(data []byte) (string, error) {
	boxKey, err := key.rawKey()
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", trace.Wrap(err)
	}

	out := secretbox.Seal(nonce[:], data, &nonce, &boxKey)
	return b85.Encode(out), nil
}

// Decrypt decrypts Base85-encoded data produced by Encrypt.
func (key *SecretKey) Decrypt(data string) ([]byte, error) {
	boxKey, err := key.rawKey()
	if err != nil {
		return nil, err
	}

	sealed, err := b85.Decode(data)
	if err != nil {
		return nil, trace.BadParameter("bad ciphertext encoding")
	}
	if len(sealed) < 24 {
		return nil, trace.BadParameter("ciphertext too short")
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	out, ok := secretbox.Open(nil, sealed[24:], &nonce, &boxKey)
	if !ok {
		return nil, ErrDecryptionFailure
	}
	return out, nil
}

func (key *SecretKey) rawKey() ([32]byte, error) {
	var out [32]byte

	raw, err := key.Key.RawData()
	if err != nil || len(raw) != 32 {
		return out, trace.BadParameter("bad secret key data")
	}
	copy(out[:], raw)
	return out, nil
}
