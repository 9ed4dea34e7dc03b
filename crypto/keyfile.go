package crypto

import (
	"encoding/json"
	"os"

	"github.com/gravitational/trace"
)

// Key files are small JSON records pairing each key with its fingerprint so
// that a key can be located by hash without decoding it. Writing to an
// existing path always fails; callers wanting to replace a key file must
// remove it first.

type encryptionPairFile struct {
	PublicKey   string `json:"PublicKey"`
	PublicHash  string `json:"PublicHash"`
	PrivateKey  string `json:"PrivateKey"`
	PrivateHash string `json:"PrivateHash"`
}

type signingPairFile struct {
	VerificationKey  string `json:"VerificationKey"`
	VerificationHash string `json:"VerificationHash"`
	SigningKey       string `json:"SigningKey"`
	SigningHash      string `json:"SigningHash"`
}

type secretKeyFile struct {
	SecretKey string `json:"SecretKey"`
}

// Save writes the keypair to a file. It fails if the path already exists.
func (pair *EncryptionPair) Save(path string) error {
	outdata := encryptionPairFile{
		PublicKey:   pair.PublicKey.AsString(),
		PublicHash:  pair.PublicHash.AsString(),
		PrivateKey:  pair.PrivateKey.AsString(),
		PrivateHash: pair.PrivateHash.AsString(),
	}
	return writeKeyFile(path, &outdata)
}

// LoadEncryptionPair instantiates a keypair from a file.
func LoadEncryptionPair(path string) (*EncryptionPair, error) {
	var indata encryptionPairFile
	if err := readKeyFile(path, &indata); err != nil {
		return nil, err
	}

	public := NewCS(indata.PublicKey)
	private := NewCS(indata.PrivateKey)
	if !public.IsValid() || !private.IsValid() {
		return nil, trace.BadParameter("failure to decode key data in %s", path)
	}

	return NewEncryptionPair(public, private)
}

// Save writes the signing pair to a file. It fails if the path already
// exists.
func (pair *SigningPair) Save(path string) error {
	outdata := signingPairFile{
		VerificationKey:  pair.PublicKey.AsString(),
		VerificationHash: pair.PublicHash.AsString(),
		SigningKey:       pair.PrivateKey.AsString(),
		SigningHash:      pair.PrivateHash.AsString(),
	}
	return writeKeyFile(path, &outdata)
}

// LoadSigningPair instantiates a signing pair from a file.
func LoadSigningPair(path string) (*SigningPair, error) {
	var indata signingPairFile
	if err := readKeyFile(path, &indata); err != nil {
		return nil, err
	}

	public := NewCS(indata.VerificationKey)
	private := NewCS(indata.SigningKey)
	if !public.IsValid() || !private.IsValid() {
		return nil, trace.BadParameter("failure to decode key data in %s", path)
	}

	return NewSigningPair(public, private)
}

// Save writes the key to a file. It fails if the path already exists.
func (key *SecretKey) Save(path string) error {
	outdata := secretKeyFile{SecretKey: key.Key.AsString()}
	return writeKeyFile(path, &outdata)
}

// LoadSecretKey instantiates a secret key from a file.
func LoadSecretKey(path string) (*SecretKey, error) {
	var indata secretKeyFile
	if err := readKeyFile(path, &indata); err != nil {
		return nil, err
	}

	key := NewCS(indata.SecretKey)
	if !key.IsValid() {
		return nil, trace.BadParameter("failure to decode key data in %s", path)
	}

	return NewSecretKey(key)
}

func writeKeyFile(path string, data any) error {
	if path == "" {
		return trace.BadParameter("path may not be empty")
	}

	outdata, err := json.MarshalIndent(data, "", " ")
	if err != nil {
		return trace.Wrap(err)
	}

	handle, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return trace.AlreadyExists("%s exists", path)
		}
		return trace.ConvertSystemError(err)
	}
	defer handle.Close()

	if _, err = handle.Write(outdata); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

func readKeyFile(path string, out any) error {
	if path == "" {
		return trace.BadParameter("path may not be empty")
	}

	indata, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return trace.NotFound("%s not found", path)
		}
		return trace.ConvertSystemError(err)
	}

	if err = json.Unmarshal(indata, out); err != nil {
		return trace.BadParameter("file does not contain a Mensago JSON key record")
	}
	return nil
}
