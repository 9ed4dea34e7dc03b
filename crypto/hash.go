package crypto

import (
	"crypto/sha256"
	"errors"
	"io"
	"os"

	"github.com/gravitational/trace"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// DefaultHashAlgorithm is used anywhere a hash is needed and the caller has
// not asked for a specific algorithm, most notably for key fingerprints.
const DefaultHashAlgorithm = "BLAKE2B-256"

// ErrUnsupportedHashType is returned when a hash algorithm outside the
// supported set (BLAKE2B-256, BLAKE3-256, SHA-256, SHA3-256) is requested.
var ErrUnsupportedHashType = errors.New("unsupported hash type")

// HashBuffer computes a hash of the given buffer and returns it as a
// CryptoString. The supported algorithms are BLAKE2B-256, BLAKE3-256,
// SHA-256, and SHA3-256.
func HashBuffer(data []byte, algorithm string) (CryptoString, error) {
	var sum [32]byte
	switch algorithm {
	case "BLAKE2B-256":
		sum = blake2b.Sum256(data)
	case "BLAKE3-256":
		sum = blake3.Sum256(data)
	case "SHA-256":
		sum = sha256.Sum256(data)
	case "SHA3-256":
		sum = sha3.Sum256(data)
	default:
		return CryptoString{}, ErrUnsupportedHashType
	}

	return NewCSFromBytes(algorithm, sum[:]), nil
}

// Blake2Hash computes a BLAKE2B-256 hash of the buffer. It exists because the
// default algorithm is used so often that threading an algorithm name and a
// second return value through every call site hurts readability.
func Blake2Hash(data []byte) CryptoString {
	sum := blake2b.Sum256(data)
	return NewCSFromBytes("BLAKE2B-256", sum[:])
}

// HashFile computes a hash of the file at the given path, reading it in
// chunks so that large files don't balloon memory usage.
func HashFile(path string, algorithm string) (CryptoString, error) {
	if path == "" {
		return CryptoString{}, trace.BadParameter("path may not be empty")
	}

	var hasher io.Writer
	var sum func() []byte

	switch algorithm {
	case "BLAKE2B-256":
		h, err := blake2b.New256(nil)
		if err != nil {
			return CryptoString{}, trace.Wrap(err)
		}
		hasher = h
		sum = func() []byte { return h.Sum(nil) }
	case "BLAKE3-256":
		h := blake3.New()
		hasher = h
		sum = func() []byte { return h.Sum(nil) }
	case "SHA-256":
		h := sha256.New()
		hasher = h
		sum = func() []byte { return h.Sum(nil) }
	case "SHA3-256":
		h := sha3.New256()
		hasher = h
		sum = func() []byte { return h.Sum(nil) }
	default:
		return CryptoString{}, ErrUnsupportedHashType
	}

	handle, err := os.Open(path)
	if err != nil {
		return CryptoString{}, trace.ConvertSystemError(err)
	}
	defer handle.Close()

	if _, err = io.Copy(hasher, handle); err != nil {
		return CryptoString{}, trace.ConvertSystemError(err)
	}

	return NewCSFromBytes(algorithm, sum()), nil
}
