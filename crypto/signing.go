package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/gravitational/trace"
	"github.com/hdevalence/ed25519consensus"
)

// VerificationKey represents the public half of a signing keypair. It can
// verify signatures but not produce them.
type VerificationKey struct {
	PublicKey  CryptoString
	PublicHash CryptoString
}

// NewVerificationKey creates a VerificationKey and precomputes its
// fingerprint.
func NewVerificationKey(public CryptoString) *VerificationKey {
	return &VerificationKey{
		PublicKey:  public,
		PublicHash: hashKeyData(public),
	}
}

// Verify checks a detached signature over the given data.
func (key *VerificationKey) Verify(data []byte, signature CryptoString) error {
	return VerifySignature(key.PublicKey, data, signature)
}

// SigningPair represents a complete ED25519 signing keypair. The private half
// is stored as the 32-byte seed.
type SigningPair struct {
	PublicKey   CryptoString
	PrivateKey  CryptoString
	PublicHash  CryptoString
	PrivateHash CryptoString
}

// GenerateSigningPair creates a new ED25519 keypair from the operating
// system's random number generator.
func GenerateSigningPair() (*SigningPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return NewSigningPair(
		NewCSFromBytes("ED25519", public),
		NewCSFromBytes("ED25519", private.Seed()))
}

// NewSigningPair creates a SigningPair from existing keys.
func NewSigningPair(public CryptoString, private CryptoString) (*SigningPair, error) {
	if !public.IsValid() || !private.IsValid() {
		return nil, trace.BadParameter("invalid key data")
	}
	if public.Prefix != "ED25519" || private.Prefix != "ED25519" {
		return nil, ErrUnsupportedAlgorithm
	}

	return &SigningPair{
		PublicKey:   public,
		PrivateKey:  private,
		PublicHash:  hashKeyData(public),
		PrivateHash: hashKeyData(private),
	}, nil
}

// SigningPairFromSeed instantiates a full signing pair from the private key
// seed alone.
func SigningPairFromSeed(seed CryptoString) (*SigningPair, error) {
	if seed.Prefix != "ED25519" {
		return nil, ErrUnsupportedAlgorithm
	}
	raw, err := seed.RawData()
	if err != nil || len(raw) != ed25519.SeedSize {
		return nil, trace.BadParameter("bad signing key seed")
	}

	private := ed25519.NewKeyFromSeed(raw)
	public := private.Public().(ed25519.PublicKey)
	return NewSigningPair(NewCSFromBytes("ED25519", public), seed)
}

// Sign produces a detached signature over the data and returns it as an
// ED25519 CryptoString.
func (pair *SigningPair) Sign(data []byte) (CryptoString, error) {
	return SignData(pair.PrivateKey, data)
}

// Verify checks a detached signature over the given data.
func (pair *SigningPair) Verify(data []byte, signature CryptoString) error {
	return VerifySignature(pair.PublicKey, data, signature)
}

// SignData produces a detached ED25519 signature over the data using the
// supplied private key seed.
func SignData(signingKey CryptoString, data []byte) (CryptoString, error) {
	if signingKey.Prefix != "ED25519" {
		return CryptoString{}, ErrUnsupportedAlgorithm
	}

	seed, err := signingKey.RawData()
	if err != nil || len(seed) != ed25519.SeedSize {
		return CryptoString{}, trace.BadParameter("bad signing key")
	}

	signature := ed25519.Sign(ed25519.NewKeyFromSeed(seed), data)
	return NewCSFromBytes("ED25519", signature), nil
}

// VerifySignature checks a detached signature using the stricter ZIP-215
// verification rules so that results agree across implementations.
func VerifySignature(verifyKey CryptoString, data []byte, signature CryptoString) error {
	if verifyKey.Prefix != "ED25519" {
		return ErrUnsupportedAlgorithm
	}
	if signature.Prefix != "ED25519" {
		return ErrUnsupportedAlgorithm
	}

	rawKey, err := verifyKey.RawData()
	if err != nil || len(rawKey) != ed25519.PublicKeySize {
		return trace.BadParameter("bad verification key")
	}
	rawSig, err := signature.RawData()
	if err != nil || len(rawSig) != ed25519.SignatureSize {
		return trace.BadParameter("bad signature data")
	}

	if !ed25519consensus.Verify(rawKey, data, rawSig) {
		return ErrVerificationFailure
	}
	return nil
}
