package profile

import (
	"database/sql"
	"runtime"
	"time"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// This file encapsulates credential, key, and device session storage for a
// profile. Keys are indexed by the fingerprint of their public half (or of
// the key itself for symmetric keys) so that material referenced by hash in
// a keycard or an envelope can be found without decoding anything.

// GetCredentials returns the stored login credentials for a workspace.
func GetCredentials(db *sql.DB, wid types.RandomID, domain types.Domain) (*crypto.Password, error) {
	row := db.QueryRow(`SELECT password,pwhashtype FROM workspaces WHERE wid=? AND domain=?`,
		wid.AsString(), domain.AsString())

	var hash, hashtype string
	err := row.Scan(&hash, &hashtype)
	if err == sql.ErrNoRows || (err == nil && hash == "") {
		return nil, trace.NotFound("credentials not found")
	}
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out := crypto.NewPassword()
	out.HashType = hashtype
	if err = out.Assign(hash); err != nil {
		return nil, err
	}
	return out, nil
}

// SetCredentials sets the password and hash type for a workspace.
func SetCredentials(db *sql.DB, wid types.RandomID, domain types.Domain,
	pw *crypto.Password) error {
	var existing string
	err := db.QueryRow(`SELECT wid FROM workspaces WHERE wid=? AND domain=?`,
		wid.AsString(), domain.AsString()).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("workspace not found")
	}
	if err != nil {
		return trace.Wrap(err)
	}

	_, err = db.Exec(`UPDATE workspaces SET password=?,pwhashtype=? WHERE wid=? AND domain=?`,
		pw.HashString, pw.HashType, wid.AsString(), domain.AsString())
	return trace.Wrap(err)
}

// AddDeviceSession adds a device to a workspace. The address must belong to
// a workspace already in the database and may have only one session.
func AddDeviceSession(db *sql.DB, address types.WAddress, devid types.RandomID,
	devPair *crypto.EncryptionPair, devName string) error {
	if !address.IsValid() || !devid.IsValid() {
		return trace.BadParameter("bad session parameter")
	}
	if devPair.PublicKey.Prefix != "CURVE25519" {
		return trace.BadParameter("device key must be CURVE25519")
	}

	// The workspace has to exist already
	var existing string
	err := db.QueryRow(`SELECT wid FROM workspaces WHERE wid=?`,
		address.ID.AsString()).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("workspace not found")
	}
	if err != nil {
		return trace.Wrap(err)
	}

	// Only one session per address
	err = db.QueryRow(`SELECT address FROM sessions WHERE address=?`,
		address.AsString()).Scan(&existing)
	if err == nil {
		return trace.AlreadyExists("session already exists for %s", address.AsString())
	}
	if err != sql.ErrNoRows {
		return trace.Wrap(err)
	}

	_, err = db.Exec(`INSERT INTO sessions(address,devid,devname,public_key,private_key,os)
		VALUES(?,?,?,?,?,?)`,
		address.AsString(), devid.AsString(), devName,
		devPair.PublicKey.AsString(), devPair.PrivateKey.AsString(), deviceOS())
	return trace.Wrap(err)
}

// deviceOS names the platform recorded with a device session.
func deviceOS() string {
	return runtime.GOOS
}

// RemoveDeviceSession removes an authorized device from the workspace.
func RemoveDeviceSession(db *sql.DB, devid types.RandomID) error {
	var existing string
	err := db.QueryRow(`SELECT devid FROM sessions WHERE devid=?`,
		devid.AsString()).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("session not found")
	}
	if err != nil {
		return trace.Wrap(err)
	}

	_, err = db.Exec(`DELETE FROM sessions WHERE devid=?`, devid.AsString())
	return trace.Wrap(err)
}

// GetDeviceSession returns the device keypair for the session bound to an
// address.
func GetDeviceSession(db *sql.DB, address types.WAddress) (types.RandomID,
	*crypto.EncryptionPair, error) {
	row := db.QueryRow(`SELECT devid,public_key,private_key FROM sessions WHERE address=?`,
		address.AsString())

	var devidStr, public, private string
	err := row.Scan(&devidStr, &public, &private)
	if err == sql.ErrNoRows {
		return types.RandomID{}, nil, trace.NotFound("session not found")
	}
	if err != nil {
		return types.RandomID{}, nil, trace.Wrap(err)
	}

	pair, err := crypto.NewEncryptionPair(crypto.NewCS(public), crypto.NewCS(private))
	if err != nil {
		return types.RandomID{}, nil, err
	}
	return types.NewRandomID(devidStr), pair, nil
}

// AddEncryptionKey stores an asymmetric encryption pair for a workspace,
// keyed by the fingerprint of its public half.
func AddEncryptionKey(db *sql.DB, address string, category string,
	pair *crypto.EncryptionPair) error {
	return insertKey(db, pair.PublicHash.AsString(), address, "asymmetric", category,
		pair.PrivateKey.AsString(), pair.PublicKey.AsString(), pair.PublicKey.Prefix)
}

// AddSigningKey stores a signing pair for a workspace, keyed by the
// fingerprint of its verification half.
func AddSigningKey(db *sql.DB, address string, category string, pair *crypto.SigningPair) error {
	return insertKey(db, pair.PublicHash.AsString(), address, "asymmetric", category,
		pair.PrivateKey.AsString(), pair.PublicKey.AsString(), pair.PublicKey.Prefix)
}

// AddSecretKey stores a symmetric key for a workspace, keyed by its
// fingerprint.
func AddSecretKey(db *sql.DB, address string, category string, key *crypto.SecretKey) error {
	return insertKey(db, key.KeyHash.AsString(), address, "symmetric", category,
		key.Key.AsString(), "", key.Key.Prefix)
}

func insertKey(db *sql.DB, keyid string, address string, keyType string, category string,
	private string, public string, algorithm string) error {
	var existing string
	err := db.QueryRow(`SELECT keyid FROM keys WHERE keyid=?`, keyid).Scan(&existing)
	if err == nil {
		return trace.AlreadyExists("key %s already exists", keyid)
	}
	if err != sql.ErrNoRows {
		return trace.Wrap(err)
	}

	_, err = db.Exec(`INSERT INTO keys(keyid,address,type,category,private,public,algorithm,
		timestamp) VALUES(?,?,?,?,?,?,?,?)`,
		keyid, address, keyType, category, private, public, algorithm,
		time.Now().UTC().Format("20060102T150405Z"))
	return trace.Wrap(err)
}

// RemoveKey deletes an encryption key from a workspace.
func RemoveKey(db *sql.DB, keyid string) error {
	var existing string
	err := db.QueryRow(`SELECT keyid FROM keys WHERE keyid=?`, keyid).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("key %s not found", keyid)
	}
	if err != nil {
		return trace.Wrap(err)
	}

	_, err = db.Exec(`DELETE FROM keys WHERE keyid=?`, keyid)
	return trace.Wrap(err)
}

// StoredKey is one key record from the profile database. Public is empty
// for symmetric keys.
type StoredKey struct {
	KeyID     string
	Address   string
	Type      string
	Category  string
	Private   crypto.CryptoString
	Public    crypto.CryptoString
	Algorithm string
}

// GetKey returns the key with the specified fingerprint.
func GetKey(db *sql.DB, keyid string) (*StoredKey, error) {
	row := db.QueryRow(`SELECT address,type,category,private,public,algorithm
		FROM keys WHERE keyid=?`, keyid)

	var out StoredKey
	var private, public string
	err := row.Scan(&out.Address, &out.Type, &out.Category, &private, &public, &out.Algorithm)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("key %s not found", keyid)
	}
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out.KeyID = keyid
	out.Private = crypto.NewCS(private)
	if public != "" {
		out.Public = crypto.NewCS(public)
	}

	switch out.Type {
	case "asymmetric", "symmetric":
		return &out, nil
	}
	return nil, trace.BadParameter("key type must be 'asymmetric' or 'symmetric'")
}

// GetKeyByCategory returns the key stored for an address under the given
// category, such as crsigning or storage.
func GetKeyByCategory(db *sql.DB, address string, category string) (*StoredKey, error) {
	row := db.QueryRow(`SELECT keyid FROM keys WHERE address=? AND category=?`,
		address, category)

	var keyid string
	err := row.Scan(&keyid)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("no %s key for %s", category, address)
	}
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return GetKey(db, keyid)
}
