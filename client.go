package mensago

import (
	"os"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/profile"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// Client is a facade over the profile store and the server connection, as
// an application usually doesn't care which of the two a call touches. Its
// methods map closely to the commands a user would issue.
//
// To create a new client, please use [NewClient]:
//
//	client := NewClient("")
//	err := client.Load()
type Client struct {
	pman          *profile.Manager
	conn          *ServerConnection
	profileFolder string
}

// NewClient creates a client rooted at the given profile folder. An empty
// path selects the platform default location.
func NewClient(profileFolder string) *Client {
	return &Client{
		pman:          profile.NewManager(),
		conn:          NewServerConnection(),
		profileFolder: profileFolder,
	}
}

// Load reads the profile store from disk, creating it if necessary, and
// activates the default profile.
func (c *Client) Load() error {
	return c.pman.LoadProfiles(c.profileFolder)
}

// Conn exposes the underlying server connection for direct command calls.
func (c *Client) Conn() *ServerConnection {
	return c.conn
}

// ProfileManager exposes the underlying profile manager.
func (c *Client) ProfileManager() *profile.Manager {
	return c.pman
}

// ActiveProfile returns the currently-active profile.
func (c *Client) ActiveProfile() (*profile.Profile, error) {
	return c.pman.ActiveProfile()
}

// ActivateProfile switches the active profile, dropping any server session
// belonging to the old one.
func (c *Client) ActivateProfile(name string) error {
	if c.conn.IsConnected() {
		_ = c.conn.Disconnect()
	}
	return c.pman.ActivateProfile(name)
}

// Connect opens a connection to the home server of the active profile's
// identity.
func (c *Client) Connect() error {
	prof, err := c.pman.ActiveProfile()
	if err != nil {
		return err
	}

	identity, err := prof.Identity()
	if err != nil {
		return err
	}

	return c.conn.Connect(identity.Domain.AsString(), DefaultPort)
}

// Disconnect closes the server connection, if one is open.
func (c *Client) Disconnect() error {
	if !c.conn.IsConnected() {
		return nil
	}
	return c.conn.Disconnect()
}

// Login connects to the active identity's home server if needed and runs
// the full authentication sequence: the sealed login challenge, the
// password hash, and the device challenge.
func (c *Client) Login(orgKey crypto.CryptoString) error {
	prof, err := c.pman.ActiveProfile()
	if err != nil {
		return err
	}

	identity, err := prof.Identity()
	if err != nil {
		return err
	}
	wid, err := prof.ResolveAddress(identity)
	if err != nil {
		return err
	}

	if !c.conn.IsConnected() {
		if err = c.conn.Connect(identity.Domain.AsString(), DefaultPort); err != nil {
			return err
		}
	}

	if err = Login(c.conn, wid, orgKey); err != nil {
		return err
	}

	pw, err := profile.GetCredentials(prof.DB(), wid, identity.Domain)
	if err != nil {
		return err
	}
	if err = Password(c.conn, pw.HashString); err != nil {
		return err
	}

	address := types.NewWAddress(wid.AsString() + "/" + identity.Domain.AsString())
	devid, devPair, err := profile.GetDeviceSession(prof.DB(), address)
	if err != nil {
		return err
	}

	return Device(c.conn, devid, devPair)
}

// Logout ends the authenticated session but keeps the connection open for
// further unauthenticated commands.
func (c *Client) Logout() error {
	if !c.conn.IsConnected() {
		return nil
	}
	return Logout(c.conn)
}

// RegisterAccount creates an account on the specified server and stores the
// resulting workspace, device session, and key set in the active profile.
// Each profile may hold only one identity workspace.
func (c *Client) RegisterAccount(server types.Domain, userID types.UserID,
	userPass string) (*RegInfo, error) {
	prof, err := c.pman.ActiveProfile()
	if err != nil {
		return nil, err
	}

	if _, err = prof.Identity(); err == nil {
		return nil, trace.AlreadyExists("a user workspace already exists")
	}

	pw := crypto.NewPassword()
	if err = pw.Set(userPass); err != nil {
		return nil, err
	}

	devPair, err := crypto.GenerateEncryptionPair()
	if err != nil {
		return nil, err
	}

	if err = c.conn.Connect(server.AsString(), DefaultPort); err != nil {
		return nil, err
	}
	defer c.conn.Disconnect()

	regInfo, err := Register(c.conn, userID, pw.HashString, devPair.PublicKey)
	if err != nil {
		return nil, err
	}

	return regInfo, c.finishRegistration(prof, regInfo, server, userID, pw, devPair)
}

// RedeemRegCode completes a preregistered account using the code handed out
// by the administrator, then persists the workspace locally exactly as a
// direct registration would.
func (c *Client) RedeemRegCode(address types.MAddress, code string,
	userPass string) (*RegInfo, error) {
	prof, err := c.pman.ActiveProfile()
	if err != nil {
		return nil, err
	}

	if _, err = prof.Identity(); err == nil {
		return nil, trace.AlreadyExists("a user workspace already exists")
	}

	pw := crypto.NewPassword()
	if err = pw.Set(userPass); err != nil {
		return nil, err
	}

	devPair, err := crypto.GenerateEncryptionPair()
	if err != nil {
		return nil, err
	}

	if err = c.conn.Connect(address.Domain.AsString(), DefaultPort); err != nil {
		return nil, err
	}
	defer c.conn.Disconnect()

	regInfo, err := RegCode(c.conn, address, code, pw.HashString, devPair)
	if err != nil {
		return nil, err
	}

	var userID types.UserID
	if !address.ID.IsWID() {
		userID = address.ID
	}

	return regInfo, c.finishRegistration(prof, regInfo, address.Domain, userID, pw, devPair)
}

// finishRegistration persists the results of a successful registration:
// the workspace with its key set and folder maps, and the device session.
func (c *Client) finishRegistration(prof *profile.Profile, regInfo *RegInfo,
	server types.Domain, userID types.UserID, pw *crypto.Password,
	devPair *crypto.EncryptionPair) error {

	var wid types.RandomID
	if err := wid.Set(regInfo.WID); err != nil {
		return trace.BadParameter("server returned a bad workspace ID")
	}

	w := profile.NewWorkspace(prof.DB(), prof.Path)
	if err := w.Generate(userID, server, wid, pw); err != nil {
		return err
	}

	address := types.NewWAddress(wid.AsString() + "/" + server.AsString())
	hostname, _ := os.Hostname()

	var devid types.RandomID
	if err := devid.Set(regInfo.DevID); err != nil {
		return trace.BadParameter("bad device ID in registration info")
	}

	return profile.AddDeviceSession(prof.DB(), address, devid, devPair, hostname)
}

// PreregisterAccount provisions an account on the server for someone else
// to claim with a registration code. Administrator rights are required, and
// no local profile state is created.
func (c *Client) PreregisterAccount(uid types.UserID, domain types.Domain) (*PreregInfo, error) {
	if !c.conn.IsConnected() {
		return nil, trace.ConnectionProblem(nil, "not connected")
	}
	return Preregister(c.conn, types.RandomID{}, uid, domain)
}
