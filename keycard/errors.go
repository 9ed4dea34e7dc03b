package keycard

import "errors"

var (
	// ErrNotCompliant is returned when an entry fails a compliance check for
	// a reason other than a missing field or signature.
	ErrNotCompliant = errors.New("entry not compliant")

	// ErrRequiredFieldMissing is returned when an entry is missing one of
	// the fields its type requires.
	ErrRequiredFieldMissing = errors.New("required field missing")

	// ErrSignatureMissing is returned when an entry is missing a signature
	// or the hash required for full compliance.
	ErrSignatureMissing = errors.New("signature missing")

	// ErrInvalidKeycard is returned when signature verification or the
	// chain-of-custody check fails for a keycard entry.
	ErrInvalidKeycard = errors.New("invalid keycard")

	// ErrHashMismatch is returned when an entry's hash field does not match
	// the computed hash of its contents.
	ErrHashMismatch = errors.New("hash mismatch")

	// ErrUnsupportedKeycardType is returned when entry data carries a type
	// other than User or Organization.
	ErrUnsupportedKeycardType = errors.New("unsupported keycard type")
)
