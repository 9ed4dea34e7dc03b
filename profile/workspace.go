package profile

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// Workspace provides the high-level operations for managing workspace data
// inside a profile: the database records, the key set, the folder maps, and
// the local directory scaffolding.
type Workspace struct {
	UserID types.UserID
	WID    types.RandomID
	Domain types.Domain
	Type   string
	PW     *crypto.Password

	db   *sql.DB
	path string
}

// NewWorkspace creates a workspace attached to the given database handle
// and local directory.
func NewWorkspace(db *sql.DB, path string) *Workspace {
	return &Workspace{
		Type: "identity",
		PW:   crypto.NewPassword(),
		db:   db,
		path: path,
	}
}

// Generate creates all the data needed for an individual workspace account:
// the database record, the full set of encryption keys, the folder
// mappings, and the local directories.
func (w *Workspace) Generate(userid types.UserID, server types.Domain, wid types.RandomID,
	pw *crypto.Password) error {
	if !userid.IsEmpty() && !userid.IsValid() {
		return trace.BadParameter("userid not valid")
	}
	if !server.IsValid() {
		return trace.BadParameter("domain not valid")
	}
	if !wid.IsValid() {
		return trace.BadParameter("workspace id not valid")
	}
	if !pw.IsValid() {
		return trace.BadParameter("password not valid")
	}

	w.UserID = userid
	w.WID = wid
	w.Domain = server
	w.PW = pw

	if err := w.AddToDB(w.db); err != nil {
		return err
	}

	address := wid.AsString() + "/" + server.AsString()

	// Generate and store the user's key set
	crePair, err := crypto.GenerateEncryptionPair()
	if err != nil {
		return err
	}
	crsPair, err := crypto.GenerateSigningPair()
	if err != nil {
		return err
	}
	ePair, err := crypto.GenerateEncryptionPair()
	if err != nil {
		return err
	}
	sPair, err := crypto.GenerateSigningPair()
	if err != nil {
		return err
	}
	storageKey, err := crypto.GenerateSecretKey()
	if err != nil {
		return err
	}
	folderKey, err := crypto.GenerateSecretKey()
	if err != nil {
		return err
	}

	keyList := []struct {
		category string
		add      func() error
	}{
		{"crencryption", func() error { return AddEncryptionKey(w.db, address, "crencryption", crePair) }},
		{"crsigning", func() error { return AddSigningKey(w.db, address, "crsigning", crsPair) }},
		{"encryption", func() error { return AddEncryptionKey(w.db, address, "encryption", ePair) }},
		{"signing", func() error { return AddSigningKey(w.db, address, "signing", sPair) }},
		{"storage", func() error { return AddSecretKey(w.db, address, "storage", storageKey) }},
		{"folder", func() error { return AddSecretKey(w.db, address, "folder", folderKey) }},
	}
	for _, key := range keyList {
		if err = key.add(); err != nil {
			if removeErr := w.RemoveWorkspaceEntry(wid, server); removeErr != nil {
				return removeErr
			}
			return err
		}
	}

	// Seed the standard folder mappings
	folderList := []string{
		"messages",
		"contacts",
		"events",
		"tasks",
		"notes",
		"files",
		"files attachments",
	}
	for _, folder := range folderList {
		var fmap FolderMap
		fmap.MakeID()
		fmap.Set(address, folderKey.KeyHash.AsString(), folder, "root")
		if err = w.AddFolder(&fmap); err != nil {
			return err
		}
	}

	// The local filesystem mirrors the file-bearing folders with actual
	// directories
	if err = os.MkdirAll(w.path, 0o700); err != nil {
		_ = w.RemoveFromDB()
		return trace.ConvertSystemError(err)
	}
	if err = os.MkdirAll(filepath.Join(w.path, "files", "attachments"), 0o700); err != nil {
		_ = w.RemoveFromDB()
		return trace.ConvertSystemError(err)
	}

	return w.SetUserID(userid)
}

// AddToDB adds the workspace to the storage database. A profile may hold
// only one identity workspace.
func (w *Workspace) AddToDB(db *sql.DB) error {
	if db == nil {
		return trace.BadParameter("database may not be nil")
	}
	w.db = db

	var existing string
	err := db.QueryRow(`SELECT wid FROM workspaces WHERE wid=? OR (type = 'identity' AND ? = 'identity')`,
		w.WID.AsString(), w.Type).Scan(&existing)
	if err == nil {
		return trace.AlreadyExists("%s already exists", w.WID.AsString())
	}
	if err != sql.ErrNoRows {
		return trace.Wrap(err)
	}

	_, err = db.Exec(`INSERT INTO workspaces(wid,domain,password,pwhashtype,type)
		VALUES(?,?,?,?,?)`,
		w.WID.AsString(), w.Domain.AsString(), w.PW.HashString, w.PW.HashType, w.Type)
	return trace.Wrap(err)
}

// RemoveFromDB removes ALL DATA associated with the workspace. Don't call
// this unless you mean to erase all evidence that the workspace ever
// existed.
func (w *Workspace) RemoveFromDB() error {
	var existing string
	err := w.db.QueryRow(`SELECT wid FROM workspaces WHERE wid=? AND domain=?`,
		w.WID.AsString(), w.Domain.AsString()).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("%s/%s not found", w.WID.AsString(), w.Domain.AsString())
	}
	if err != nil {
		return trace.Wrap(err)
	}

	address := w.WID.AsString() + "/" + w.Domain.AsString()
	commands := []struct {
		query string
		arg   string
	}{
		{`DELETE FROM workspaces WHERE wid=? AND domain=?`, ""},
		{`DELETE FROM folders WHERE address=?`, address},
		{`DELETE FROM sessions WHERE address=?`, address},
		{`DELETE FROM keys WHERE address=?`, address},
		{`DELETE FROM messages WHERE address=?`, address},
		{`DELETE FROM notes WHERE address=?`, address},
	}
	for _, cmd := range commands {
		if cmd.arg == "" {
			_, err = w.db.Exec(cmd.query, w.WID.AsString(), w.Domain.AsString())
		} else {
			_, err = w.db.Exec(cmd.query, cmd.arg)
		}
		if err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// RemoveWorkspaceEntry removes the workspace record itself, leaving keys,
// sessions, and other associated data in place.
func (w *Workspace) RemoveWorkspaceEntry(wid types.RandomID, domain types.Domain) error {
	var existing string
	err := w.db.QueryRow(`SELECT wid FROM workspaces WHERE wid=? AND domain=?`,
		wid.AsString(), domain.AsString()).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("%s/%s not found", wid.AsString(), domain.AsString())
	}
	if err != nil {
		return trace.Wrap(err)
	}

	_, err = w.db.Exec(`DELETE FROM workspaces WHERE wid=? AND domain=?`,
		wid.AsString(), domain.AsString())
	return trace.Wrap(err)
}

// AddFolder adds a mapping of a folder ID to a path in the workspace.
func (w *Workspace) AddFolder(folder *FolderMap) error {
	var existing string
	err := w.db.QueryRow(`SELECT fid FROM folders WHERE fid=?`,
		folder.FID.AsString()).Scan(&existing)
	if err == nil {
		return trace.AlreadyExists("folder %s already exists", folder.FID.AsString())
	}
	if err != sql.ErrNoRows {
		return trace.Wrap(err)
	}

	_, err = w.db.Exec(`INSERT INTO folders(fid,address,keyid,path,permissions)
		VALUES(?,?,?,?,?)`,
		folder.FID.AsString(), folder.Address, folder.KeyID, folder.Path, folder.Permissions)
	return trace.Wrap(err)
}

// RemoveFolder deletes a folder mapping.
func (w *Workspace) RemoveFolder(fid types.RandomID) error {
	var existing string
	err := w.db.QueryRow(`SELECT fid FROM folders WHERE fid=?`, fid.AsString()).Scan(&existing)
	if err == sql.ErrNoRows {
		return trace.NotFound("folder %s not found", fid.AsString())
	}
	if err != nil {
		return trace.Wrap(err)
	}

	_, err = w.db.Exec(`DELETE FROM folders WHERE fid=?`, fid.AsString())
	return trace.Wrap(err)
}

// GetFolder returns the folder mapping with the specified ID.
func (w *Workspace) GetFolder(fid types.RandomID) (*FolderMap, error) {
	row := w.db.QueryRow(`SELECT address,keyid,path,permissions FROM folders WHERE fid=?`,
		fid.AsString())

	var out FolderMap
	err := row.Scan(&out.Address, &out.KeyID, &out.Path, &out.Permissions)
	if err == sql.ErrNoRows {
		return nil, trace.NotFound("folder %s not found", fid.AsString())
	}
	if err != nil {
		return nil, trace.Wrap(err)
	}

	out.FID = fid
	return &out, nil
}

// SetUserID sets the human-friendly name for the workspace.
func (w *Workspace) SetUserID(userid types.UserID) error {
	if !userid.IsEmpty() && !userid.IsValid() {
		return trace.BadParameter("bad user ID")
	}

	_, err := w.db.Exec(`UPDATE workspaces SET userid=? WHERE wid=? AND domain=?`,
		userid.AsString(), w.WID.AsString(), w.Domain.AsString())
	if err != nil {
		return trace.Wrap(err)
	}

	w.UserID = userid
	return nil
}
