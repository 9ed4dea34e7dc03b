// Package profile implements the client-side profile store. A profile is a
// directory holding one identity and all of its local state: a config file
// carrying the device ID, an optional sentinel marking it as the default,
// and a SQLite database of workspaces, device sessions, keys, folder maps,
// cached keycards, messages, and updates.
package profile

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"

	"github.com/darkwyrm/mensago-go-sdk/types"
)

var dbSetupCommands = []string{
	`CREATE TABLE workspaces (
		"wid" TEXT NOT NULL UNIQUE,
		"userid" TEXT,
		"domain" TEXT,
		"password" TEXT,
		"pwhashtype" TEXT,
		"type" TEXT
	);`,
	`CREATE TABLE "folders" (
		"fid" TEXT NOT NULL UNIQUE,
		"address" TEXT NOT NULL,
		"keyid" TEXT NOT NULL,
		"path" TEXT NOT NULL,
		"permissions" TEXT NOT NULL
	);`,
	`CREATE TABLE "sessions" (
		"address" TEXT NOT NULL,
		"devid" TEXT NOT NULL,
		"devname" TEXT NOT NULL,
		"public_key" TEXT NOT NULL,
		"private_key" TEXT NOT NULL,
		"os" TEXT NOT NULL
	);`,
	`CREATE TABLE "keys" (
		"keyid" TEXT NOT NULL UNIQUE,
		"address" TEXT NOT NULL,
		"type" TEXT NOT NULL,
		"category" TEXT NOT NULL,
		"private" TEXT NOT NULL,
		"public" TEXT,
		"algorithm" TEXT NOT NULL,
		"timestamp" TEXT NOT NULL
	);`,
	`CREATE TABLE "keycards" (
		"rowid" INTEGER PRIMARY KEY AUTOINCREMENT,
		"owner" TEXT NOT NULL,
		"index" INTEGER,
		"type" TEXT NOT NULL,
		"entry" BLOB NOT NULL,
		"textentry" TEXT NOT NULL,
		"hash" TEXT NOT NULL,
		"expires" TEXT NOT NULL,
		"timestamp" TEXT NOT NULL
	);`,
	`CREATE TABLE "messages" (
		"id" TEXT NOT NULL UNIQUE,
		"from" TEXT NOT NULL,
		"address" TEXT NOT NULL,
		"cc" TEXT,
		"bcc" TEXT,
		"date" TEXT NOT NULL,
		"thread_id" TEXT NOT NULL,
		"subject" TEXT,
		"body" TEXT,
		"attachments" TEXT
	);`,
	`CREATE TABLE "contactinfo" (
		"id" TEXT NOT NULL,
		"fieldname" TEXT NOT NULL,
		"fieldvalue" TEXT,
		"contactgroup" TEXT
	);`,
	`CREATE TABLE "userinfo" (
		"fieldname" TEXT NOT NULL,
		"fieldvalue" TEXT
	);`,
	`CREATE TABLE "annotations" (
		"id" TEXT NOT NULL,
		"fieldname" TEXT NOT NULL,
		"fieldvalue" TEXT,
		"contactgroup" TEXT
	);`,
	`CREATE TABLE "updates" (
		"id" TEXT NOT NULL UNIQUE,
		"type" TEXT NOT NULL,
		"data" TEXT NOT NULL,
		"time" TEXT NOT NULL
	);`,
	`CREATE TABLE "photos" (
		"id" TEXT NOT NULL,
		"type" TEXT NOT NULL,
		"photodata" BLOB,
		"isannotation" TEXT NOT NULL,
		"contactgroup" TEXT
	);`,
	`CREATE TABLE "notes" (
		"id" TEXT NOT NULL UNIQUE,
		"address" TEXT,
		"title" TEXT,
		"body" TEXT,
		"notebook" TEXT,
		"tags" TEXT,
		"created" TEXT NOT NULL,
		"updated" TEXT,
		"attachments" TEXT
	);`,
	`CREATE TABLE "files" (
		"id" TEXT NOT NULL UNIQUE,
		"name" TEXT NOT NULL,
		"type" TEXT NOT NULL,
		"path" TEXT NOT NULL
	);`,
	`CREATE TABLE "settings" (
		"fieldname" TEXT NOT NULL UNIQUE,
		"fieldvalue" TEXT
	);`,
}

// Profile encapsulates the data for one identity and its local state. Use
// Manager to create and load profiles rather than constructing them
// directly.
type Profile struct {
	Name      string
	Path      string
	IsDefault bool
	UserID    types.UserID
	WID       types.RandomID
	Domain    types.Domain
	DevID     types.RandomID

	db *sql.DB
}

type profileConfig struct {
	DeviceID string `json:"Device-ID"`
}

// NewProfile creates a Profile attached to the given directory, loading its
// config if one exists and generating a device ID otherwise.
func NewProfile(path string) (*Profile, error) {
	if path == "" {
		return nil, trace.BadParameter("path may not be empty")
	}

	p := &Profile{
		Name: filepath.Base(path),
		Path: path,
	}

	if _, err := os.Stat(filepath.Join(path, "default.txt")); err == nil {
		p.IsDefault = true
	}

	loadErr := p.loadConfig()
	if !p.DevID.IsValid() {
		p.DevID.Generate()
	}
	if loadErr != nil {
		if err := p.saveConfig(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// loadConfig loads the profile's config file.
func (p *Profile) loadConfig() error {
	configPath := filepath.Join(p.Path, "config.json")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return trace.NotFound("profile config file missing")
		}
		return trace.ConvertSystemError(err)
	}

	var config profileConfig
	if err = json.Unmarshal(data, &config); err != nil {
		return trace.BadParameter("bad profile config file")
	}

	if err = p.DevID.Set(config.DeviceID); err != nil {
		p.DevID.Generate()
	}
	return nil
}

// saveConfig writes the profile-specific configuration to its config file.
func (p *Profile) saveConfig() error {
	if p.DevID.IsEmpty() {
		return nil
	}

	data, err := json.Marshal(profileConfig{DeviceID: p.DevID.AsString()})
	if err != nil {
		return trace.Wrap(err)
	}

	err = os.WriteFile(filepath.Join(p.Path, "config.json"), data, 0o600)
	return trace.ConvertSystemError(err)
}

// Activate connects the profile to its database, creating and initializing
// both the directory scaffolding and the database file if they don't
// already exist.
func (p *Profile) Activate() error {
	for _, dir := range []string{p.Path, filepath.Join(p.Path, "temp")} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return trace.ConvertSystemError(err)
		}
	}

	dbPath := filepath.Join(p.Path, "storage.db")
	_, statErr := os.Stat(dbPath)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return trace.Wrap(err)
	}

	// The profile database tolerates only one writer
	db.SetMaxOpenConns(1)
	p.db = db

	if os.IsNotExist(statErr) {
		return p.initDB()
	}
	return nil
}

// Deactivate disconnects the profile from its database.
func (p *Profile) Deactivate() {
	if p.db != nil {
		p.db.Close()
		p.db = nil
	}
}

// IsActive returns true if the profile is connected to its database.
func (p *Profile) IsActive() bool {
	return p.db != nil
}

// DB returns the profile's database handle for lower-level access.
func (p *Profile) DB() *sql.DB {
	return p.db
}

// Reset reinitializes the profile database to empty. All data is
// IRREVOCABLY deleted, including keys, user data, and application settings.
func (p *Profile) Reset() error {
	dbPath := filepath.Join(p.Path, "storage.db")

	p.Deactivate()
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return trace.Wrap(err)
	}
	db.SetMaxOpenConns(1)
	p.db = db

	return p.initDB()
}

func (p *Profile) initDB() error {
	for _, cmd := range dbSetupCommands {
		if _, err := p.db.Exec(cmd); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// SetDefault turns the profile's default status on or off. The status is
// flagged in the filesystem by the existence of the file default.txt.
func (p *Profile) SetDefault(isDefault bool) error {
	sentinel := filepath.Join(p.Path, "default.txt")

	if isDefault {
		handle, err := os.OpenFile(sentinel, os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		handle.Close()
	} else {
		if err := os.Remove(sentinel); err != nil && !os.IsNotExist(err) {
			return trace.ConvertSystemError(err)
		}
	}

	p.IsDefault = isDefault
	return nil
}

// Identity returns the workspace address used for the profile's identity.
// A profile can have multiple workspace memberships, but only one carries
// the identity of the user.
func (p *Profile) Identity() (types.MAddress, error) {
	var out types.MAddress

	if p.WID.IsEmpty() && p.db != nil {
		row := p.db.QueryRow(`SELECT wid,domain,userid FROM workspaces WHERE type = 'identity'`)

		var wid, domain, userid string
		err := row.Scan(&wid, &domain, &userid)
		switch {
		case err == sql.ErrNoRows:
			return out, trace.NotFound("profile has no identity workspace")
		case err != nil:
			return out, trace.Wrap(err)
		}

		_ = p.WID.Set(wid)
		_ = p.Domain.Set(domain)
		_ = p.UserID.Set(userid)
	}

	if p.UserID.IsValid() && p.Domain.IsValid() {
		_ = out.Set(p.UserID.AsString() + "/" + p.Domain.AsString())
		return out, nil
	}
	if p.WID.IsValid() && p.Domain.IsValid() {
		_ = out.Set(p.WID.AsString() + "/" + p.Domain.AsString())
		return out, nil
	}

	return out, trace.NotFound("profile has no identity workspace")
}

// SetIdentity assigns an identity workspace to the profile. Because so much
// is tied to the identity, this is a one-time operation: once set, it
// cannot be changed.
func (p *Profile) SetIdentity(w *Workspace) error {
	if p.db == nil {
		return trace.BadParameter("profile is not active")
	}

	var existing string
	err := p.db.QueryRow(`SELECT wid FROM workspaces WHERE type = 'identity'`).Scan(&existing)
	if err == nil {
		return trace.AlreadyExists("profile already has an identity workspace")
	}
	if err != sql.ErrNoRows {
		return trace.Wrap(err)
	}

	if err = w.AddToDB(p.db); err != nil {
		return err
	}

	p.WID = w.WID
	p.UserID = w.UserID
	p.Domain = w.Domain
	return nil
}

// ResolveAddress resolves a Mensago address to its workspace ID. This works
// only for addresses to which the profile has a membership; any arbitrary
// address must go through the keycard resolver instead.
func (p *Profile) ResolveAddress(addr types.MAddress) (types.RandomID, error) {
	if addr.ID.IsWID() {
		return addr.ID.AsWID(), nil
	}
	if p.db == nil {
		return types.RandomID{}, trace.BadParameter("profile is not active")
	}

	var wid string
	err := p.db.QueryRow(`SELECT wid FROM workspaces WHERE userid=? AND domain=?`,
		addr.ID.AsString(), addr.Domain.AsString()).Scan(&wid)
	switch {
	case err == sql.ErrNoRows:
		return types.RandomID{}, trace.NotFound("address not found in profile")
	case err != nil:
		return types.RandomID{}, trace.Wrap(err)
	}

	return types.NewRandomID(wid), nil
}

// GetSetting returns a value from the profile's settings table.
func (p *Profile) GetSetting(name string) (string, error) {
	if p.db == nil {
		return "", trace.BadParameter("profile is not active")
	}

	var value string
	err := p.db.QueryRow(`SELECT fieldvalue FROM settings WHERE fieldname=?`, name).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return "", trace.NotFound("setting %s not found", name)
	case err != nil:
		return "", trace.Wrap(err)
	}
	return value, nil
}

// SetSetting stores a value in the profile's settings table, replacing any
// existing one.
func (p *Profile) SetSetting(name string, value string) error {
	if p.db == nil {
		return trace.BadParameter("profile is not active")
	}

	_, err := p.db.Exec(
		`INSERT INTO settings(fieldname,fieldvalue) VALUES(?,?)
		ON CONFLICT(fieldname) DO UPDATE SET fieldvalue=excluded.fieldvalue`, name, value)
	return trace.Wrap(err)
}

// MakePathLocal converts a server-side Mensago path into a path on the
// local filesystem, translating folder IDs through the profile's folder
// map.
func (p *Profile) MakePathLocal(path string) (string, error) {
	maps, err := LoadFolderMaps(p.db)
	if err != nil {
		return "", err
	}

	trimmed := strings.TrimPrefix(strings.TrimSpace(path), "/ wsp "+p.WID.AsString()+" ")
	parts := strings.Split(trimmed, " ")
	for i := range parts {
		if mapped, ok := maps[parts[i]]; ok {
			parts[i] = mapped
		}
	}

	return "/" + strings.Join(parts, "/"), nil
}
