package crypto

import "errors"

var (
	// ErrUnsupportedAlgorithm is returned when a key or signature uses an
	// encryption algorithm other than the fixed set used by the platform.
	ErrUnsupportedAlgorithm = errors.New("unsupported encryption type")

	// ErrDecryptionFailure is returned when a sealed box or secret box fails
	// to open, whether from a wrong key or corrupted ciphertext.
	ErrDecryptionFailure = errors.New("decryption failure")

	// ErrVerificationFailure is returned when a signature does not match the
	// data it claims to cover.
	ErrVerificationFailure = errors.New("signature verification failure")
)
