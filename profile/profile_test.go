package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

func loadTestManager(t *testing.T) *Manager {
	t.Helper()

	m := NewManager()
	require.NoError(t, m.LoadProfiles(t.TempDir()))
	return m
}

func TestManagerFirstLoad(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)

	// An empty folder gets a default profile named primary, already active
	require.Len(t, m.Profiles(), 1)
	assert.Equal(t, "primary", m.DefaultProfile())

	active, err := m.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, "primary", active.Name)
	assert.True(t, active.IsActive())
	assert.True(t, active.DevID.IsValid())

	// The scaffolding is on disk
	assert.FileExists(t, filepath.Join(active.Path, "config.json"))
	assert.FileExists(t, filepath.Join(active.Path, "storage.db"))
	assert.FileExists(t, filepath.Join(active.Path, "default.txt"))
}

func TestManagerProfileLifecycle(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)

	secondary, err := m.CreateProfile("Secondary")
	require.NoError(t, err)
	assert.Equal(t, "secondary", secondary.Name)

	// Names are case-squashed and duplicates are refused
	_, err = m.CreateProfile("SECONDARY")
	assert.True(t, trace.IsAlreadyExists(err))

	// default is reserved
	_, err = m.CreateProfile("default")
	assert.Error(t, err)
	assert.Error(t, m.DeleteProfile("default"))

	require.NoError(t, m.RenameProfile("secondary", "backup"))
	assert.Positive(t, m.indexForProfile("backup"))
	assert.Negative(t, m.indexForProfile("secondary"))

	require.NoError(t, m.DeleteProfile("backup"))
	assert.Len(t, m.Profiles(), 1)
}

func TestManagerDefaultHandling(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	m := NewManager()
	require.NoError(t, m.LoadProfiles(root))
	_, err := m.CreateProfile("work")
	require.NoError(t, err)

	require.NoError(t, m.SetDefaultProfile("work"))
	assert.Equal(t, "work", m.DefaultProfile())

	// Mark both profiles as default on disk; on reload the first discovered
	// keeps the status and the other is demoted
	for _, p := range m.Profiles() {
		require.NoError(t, p.SetDefault(true))
	}

	reloaded := NewManager()
	require.NoError(t, reloaded.LoadProfiles(root))

	defaults := 0
	for _, p := range reloaded.Profiles() {
		if p.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestManagerActivateProfile(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	_, err := m.CreateProfile("other")
	require.NoError(t, err)

	first, err := m.ActiveProfile()
	require.NoError(t, err)

	require.NoError(t, m.ActivateProfile("other"))
	second, err := m.ActiveProfile()
	require.NoError(t, err)

	assert.Equal(t, "other", second.Name)
	assert.False(t, first.IsActive())
	assert.True(t, second.IsActive())

	assert.Error(t, m.ActivateProfile("missing"))
}

func TestProfileSettings(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)

	_, err = p.GetSetting("last_update")
	assert.True(t, trace.IsNotFound(err))

	require.NoError(t, p.SetSetting("last_update", "1257894000"))
	require.NoError(t, p.SetSetting("last_update", "1257894060"))

	value, err := p.GetSetting("last_update")
	require.NoError(t, err)
	assert.Equal(t, "1257894060", value)
}

func makeTestWorkspace(t *testing.T, p *Profile) *Workspace {
	t.Helper()

	pw := crypto.NewPassword()
	require.NoError(t, pw.Set("MyS3cretPassw*rd"))

	w := NewWorkspace(p.DB(), filepath.Join(p.Path, "wsp"))
	err := w.Generate(types.NewUserID("csimons"), types.NewDomain("example.com"),
		types.NewRandomID("b5a9367e-680d-46c0-bb2c-73932a6d4007"), pw)
	require.NoError(t, err)
	return w
}

func TestWorkspaceGenerate(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)

	w := makeTestWorkspace(t, p)
	address := w.WID.AsString() + "/" + w.Domain.AsString()

	// The full key set is generated and stored
	for _, category := range []string{"crencryption", "crsigning", "encryption", "signing",
		"storage", "folder"} {
		key, err := GetKeyByCategory(p.DB(), address, category)
		require.NoError(t, err, category)
		assert.True(t, key.Private.IsValid(), category)
	}

	// The folder maps are seeded and the file-bearing ones mirrored on disk
	maps, err := LoadFolderMaps(p.DB())
	require.NoError(t, err)
	assert.Len(t, maps, 7)
	assert.DirExists(t, filepath.Join(p.Path, "wsp", "files", "attachments"))

	// A second identity workspace is refused
	w2 := NewWorkspace(p.DB(), filepath.Join(p.Path, "wsp2"))
	err = w2.Generate(types.NewUserID("other"), types.NewDomain("example.com"),
		types.NewRandomID("c590b44c-798d-4055-8d72-725a7942f3f6"), w.PW)
	assert.True(t, trace.IsAlreadyExists(err))
}

func TestProfileIdentityBinding(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)

	_, err = p.Identity()
	assert.True(t, trace.IsNotFound(err))

	w := makeTestWorkspace(t, p)

	identity, err := p.Identity()
	require.NoError(t, err)
	assert.Equal(t, "csimons/example.com", identity.AsString())

	// Setting the identity is a one-time operation
	w2 := NewWorkspace(p.DB(), filepath.Join(p.Path, "wsp2"))
	w2.WID = types.NewRandomID("c590b44c-798d-4055-8d72-725a7942f3f6")
	w2.Domain = types.NewDomain("example.net")
	w2.PW = w.PW
	assert.True(t, trace.IsAlreadyExists(p.SetIdentity(w2)))

	// Address resolution through the workspace table
	wid, err := p.ResolveAddress(identity)
	require.NoError(t, err)
	assert.Equal(t, w.WID.AsString(), wid.AsString())
}

func TestCredentials(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)
	w := makeTestWorkspace(t, p)

	pw, err := GetCredentials(p.DB(), w.WID, w.Domain)
	require.NoError(t, err)
	assert.True(t, pw.Verify("MyS3cretPassw*rd"))

	newPW := crypto.NewPassword()
	require.NoError(t, newPW.Set("AnotherGoodPassphrase9"))
	require.NoError(t, SetCredentials(p.DB(), w.WID, w.Domain, newPW))

	pw, err = GetCredentials(p.DB(), w.WID, w.Domain)
	require.NoError(t, err)
	assert.True(t, pw.Verify("AnotherGoodPassphrase9"))
}

func TestDeviceSessions(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)
	w := makeTestWorkspace(t, p)

	address := types.NewWAddress(w.WID.AsString() + "/" + w.Domain.AsString())
	devPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	devid := types.RandomID{}
	devid.Generate()
	require.NoError(t, AddDeviceSession(p.DB(), address, devid, devPair, "testbox"))

	// One session per address
	err = AddDeviceSession(p.DB(), address, devid, devPair, "testbox")
	assert.True(t, trace.IsAlreadyExists(err))

	gotID, gotPair, err := GetDeviceSession(p.DB(), address)
	require.NoError(t, err)
	assert.Equal(t, devid.AsString(), gotID.AsString())
	assert.True(t, gotPair.PublicKey.Equals(devPair.PublicKey))

	require.NoError(t, RemoveDeviceSession(p.DB(), devid))
	assert.True(t, trace.IsNotFound(RemoveDeviceSession(p.DB(), devid)))
}

func TestUpdateRecords(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)

	record := &UpdateRecord{
		ID:   types.NewRandomID("33333333-3333-3333-3333-333333333333"),
		Type: UpdateCreate,
		Data: "/ 11111111-1111-1111-1111-111111111111 " +
			"1257894000.1024.22222222-2222-2222-2222-222222222222",
		Time: 1257894000,
	}
	require.NoError(t, AddUpdateRecord(p.DB(), record))

	exists, err := HasUpdateRecord(p.DB(), record.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	records, err := GetUpdateRecords(p.DB())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.Data, records[0].Data)

	require.NoError(t, RemoveUpdateRecord(p.DB(), record.ID))
	records, err = GetUpdateRecords(p.DB())
	require.NoError(t, err)
	assert.Empty(t, records)

	// Malformed records are refused before touching the database
	bad := &UpdateRecord{ID: record.ID, Type: "Explode", Data: "/", Time: 1}
	assert.Error(t, AddUpdateRecord(p.DB(), bad))
}

func TestMakePathLocal(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)
	w := makeTestWorkspace(t, p)
	p.WID = w.WID

	maps, err := LoadFolderMaps(p.DB())
	require.NoError(t, err)

	var messagesFID string
	for fid, path := range maps {
		if path == "messages" {
			messagesFID = fid
		}
	}
	require.NotEmpty(t, messagesFID)

	local, err := p.MakePathLocal("/ wsp " + w.WID.AsString() + " " + messagesFID +
		" 1257894000.1024.22222222-2222-2222-2222-222222222222")
	require.NoError(t, err)
	assert.Equal(t, "/messages/1257894000.1024.22222222-2222-2222-2222-222222222222", local)
}

func TestProfileReset(t *testing.T) {
	t.Parallel()

	m := loadTestManager(t)
	p, err := m.ActiveProfile()
	require.NoError(t, err)

	require.NoError(t, p.SetSetting("marker", "before-reset"))
	require.NoError(t, p.Reset())

	_, err = p.GetSetting("marker")
	assert.True(t, trace.IsNotFound(err))
	_ = os.Remove(filepath.Join(p.Path, "storage.db"))
}
