package crypto

import (
	"crypto/rand"

	"github.com/darkwyrm/b85"
	"github.com/gravitational/trace"
	"golang.org/x/crypto/nacl/box"
)

// PublicKey represents the public half of an asymmetric encryption keypair.
// It can seal data to the key's owner, but cannot open anything.
type PublicKey struct {
	PublicKey  CryptoString
	PublicHash CryptoString
}

// NewPublicKey creates a PublicKey and precomputes its fingerprint.
func NewPublicKey(public CryptoString) *PublicKey {
	return &PublicKey{
		PublicKey:  public,
		PublicHash: hashKeyData(public),
	}
}

// Encrypt seals the data to the key in an anonymous sealed box and returns the
// ciphertext as Base85-encoded text.
func (key *PublicKey) Encrypt(data []byte) (string, error) {
	if key.PublicKey.Prefix != "CURVE25519" {
		return "", ErrUnsupportedAlgorithm
	}

	rawKey, err := key.PublicKey.RawData()
	if err != nil || len(rawKey) != 32 {
		return "", trace.BadParameter("bad public key data")
	}
	var boxKey [32]byte
	copy(boxKey[:], rawKey)

	sealed, err := box.SealAnonymous(nil, data, &boxKey, rand.Reader)
	if err != nil {
		return "", trace.Wrap(err)
	}

	return b85.Encode(sealed), nil
}

// EncryptionPair represents a complete asymmetric encryption keypair. The
// public half seals data in anonymous sealed boxes and the private half opens
// them. Fingerprint hashes for both halves are computed at construction.
type EncryptionPair struct {
	PublicKey   CryptoString
	PrivateKey  CryptoString
	PublicHash  CryptoString
	PrivateHash CryptoString
}

// GenerateEncryptionPair creates a new CURVE25519 keypair from the operating
// system's random number generator.
func GenerateEncryptionPair() (*EncryptionPair, error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return NewEncryptionPair(
		NewCSFromBytes("CURVE25519", public[:]),
		NewCSFromBytes("CURVE25519", private[:]))
}

// NewEncryptionPair creates an EncryptionPair from existing keys. The two
// halves must use the same algorithm.
func NewEncryptionPair(public CryptoString, private CryptoString) (*EncryptionPair, error) {
	if !public.IsValid() || !private.IsValid() {
		return nil, trace.BadParameter("invalid key data")
	}
	if public.Prefix != private.Prefix {
		return nil, trace.BadParameter("key algorithm mismatch")
	}

	return &EncryptionPair{
		PublicKey:   public,
		PrivateKey:  private,
		PublicHash:  hashKeyData(public),
		PrivateHash: hashKeyData(private),
	}, nil
}

// Encrypt seals the data to the pair's public key and returns the ciphertext
// as Base85-encoded text.
func (pair *EncryptionPair) Encrypt(data []byte) (string, error) {
	pub := PublicKey{PublicKey: pair.PublicKey, PublicHash: pair.PublicHash}
	return pub.Encrypt(data)
}

// Decrypt opens a Base85-encoded sealed box with the pair's private key.
func (pair *EncryptionPair) Decrypt(data string) ([]byte, error) {
	if pair.PublicKey.Prefix != "CURVE25519" {
		return nil, ErrUnsupportedAlgorithm
	}

	rawPub, err := pair.PublicKey.RawData()
	if err != nil || len(rawPub) != 32 {
		return nil, trace.BadParameter("bad public key data")
	}
	rawPriv, err := pair.PrivateKey.RawData()
	if err != nil || len(rawPriv) != 32 {
		return nil, trace.BadParameter("bad private key data")
	}

	var pubKey, privKey [32]byte
	copy(pubKey[:], rawPub)
	copy(privKey[:], rawPriv)

	sealed, err := b85.Decode(data)
	if err != nil {
		return nil, trace.BadParameter("bad ciphertext encoding")
	}

	out, ok := box.OpenAnonymous(nil, sealed, &pubKey, &privKey)
	if !ok {
		return nil, ErrDecryptionFailure
	}
	return out, nil
}

// hashKeyData computes the fingerprint for one half of a key: the default
// hash over the raw key bytes.
func hashKeyData(key CryptoString) CryptoString {
	raw, err := key.RawData()
	if err != nil {
		return CryptoString{}
	}
	return Blake2Hash(raw)
}
