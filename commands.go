package mensago

import (
	"crypto/rand"
	"strconv"
	"time"

	"github.com/darkwyrm/b85"
	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/keycard"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// The functions in this file map one-to-one to the commands of the identity
// services protocol. Each sends one command (or drives one multi-round
// exchange), checks the response code, and unpacks the payload.

// Cancel returns the session to a state where it is ready for the next
// command. It is sent whenever a multi-round exchange fails partway through.
func Cancel(conn *ServerConnection) error {
	if err := conn.SendMessage(ClientRequest{Action: "CANCEL",
		Data: map[string]string{}}); err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// Login starts the login process by sending the workspace ID along with a
// random 32-byte challenge sealed to the organization's encryption key. The
// server proves it holds the matching private key by echoing the decrypted
// challenge; any mismatch is treated as a protocol failure.
func Login(conn *ServerConnection, wid types.RandomID, serverKey crypto.CryptoString) error {
	if !wid.IsValid() {
		return trace.BadParameter("bad workspace ID")
	}

	var rawChallenge [32]byte
	if _, err := rand.Read(rawChallenge[:]); err != nil {
		return trace.Wrap(err)
	}
	challenge := b85.Encode(rawChallenge[:])

	orgKey := crypto.NewPublicKey(serverKey)
	sealed, err := orgKey.Encrypt([]byte(challenge))
	if err != nil {
		return err
	}

	err = conn.SendMessage(ClientRequest{Action: "LOGIN", Data: map[string]string{
		"Workspace-ID": wid.AsString(),
		"Login-Type":   "PLAIN",
		"Challenge":    sealed,
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 100 {
		return wrapServerError(response)
	}

	if response.StringField("Response") != challenge {
		return &ServerError{Code: 300, Status: MsgInternal,
			Info: "server failed to decrypt challenge"}
	}
	return nil
}

// Password continues the login process by sending the password hash to the
// server.
func Password(conn *ServerConnection, pwhash string) error {
	if pwhash == "" {
		return trace.BadParameter("empty password hash")
	}

	err := conn.SendMessage(ClientRequest{Action: "PASSWORD", Data: map[string]string{
		"Password-Hash": pwhash,
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 100 {
		return wrapServerError(response)
	}
	return nil
}

// Device completes the login process by proving possession of the device
// key. The server responds with a challenge sealed to the device's public
// key; failure to decrypt it is an authentication failure, which resets the
// session with CANCEL.
func Device(conn *ServerConnection, devid types.RandomID, devPair *crypto.EncryptionPair) error {
	if !devid.IsValid() {
		return trace.BadParameter("bad device ID")
	}

	err := conn.SendMessage(ClientRequest{Action: "DEVICE", Data: map[string]string{
		"Device-ID":  devid.AsString(),
		"Device-Key": devPair.PublicKey.AsString(),
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 100 {
		return wrapServerError(response)
	}
	if !response.HasField("Challenge") {
		return &ServerError{Code: 300, Status: MsgInternal,
			Info: "server did not return a device challenge"}
	}

	answer, err := devPair.Decrypt(response.StringField("Challenge"))
	if err != nil {
		_ = Cancel(conn)
		return crypto.ErrDecryptionFailure
	}

	err = conn.SendMessage(ClientRequest{Action: "DEVICE", Data: map[string]string{
		"Device-ID":  devid.AsString(),
		"Device-Key": devPair.PublicKey.AsString(),
		"Response":   string(answer),
	}})
	if err != nil {
		return err
	}

	response, err = conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// DevKey replaces the device's key stored on the server. The server issues
// one challenge per key; the client must decrypt both.
func DevKey(conn *ServerConnection, devid types.RandomID, oldPair *crypto.EncryptionPair,
	newPair *crypto.EncryptionPair) error {
	if !devid.IsValid() {
		return trace.BadParameter("bad device ID")
	}

	err := conn.SendMessage(ClientRequest{Action: "DEVKEY", Data: map[string]string{
		"Device-ID": devid.AsString(),
		"Old-Key":   oldPair.PublicKey.AsString(),
		"New-Key":   newPair.PublicKey.AsString(),
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 100 {
		return wrapServerError(response)
	}
	if !response.HasField("Challenge") || !response.HasField("New-Challenge") {
		return &ServerError{Code: 300, Status: MsgInternal,
			Info: "server did not return both device challenges"}
	}

	oldAnswer, err := oldPair.Decrypt(response.StringField("Challenge"))
	if err != nil {
		_ = Cancel(conn)
		return crypto.ErrDecryptionFailure
	}
	newAnswer, err := newPair.Decrypt(response.StringField("New-Challenge"))
	if err != nil {
		_ = Cancel(conn)
		return crypto.ErrDecryptionFailure
	}

	err = conn.SendMessage(ClientRequest{Action: "DEVKEY", Data: map[string]string{
		"Response":     string(oldAnswer),
		"New-Response": string(newAnswer),
	}})
	if err != nil {
		return err
	}

	response, err = conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// Logout ends an authenticated session without closing the connection.
func Logout(conn *ServerConnection) error {
	err := conn.SendMessage(ClientRequest{Action: "LOGOUT", Data: map[string]string{}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// AddEntry drives the process of uploading a keycard entry to the server.
//
// The exchange has three messages: the client sends the custody-signed base
// entry, the server counter-signs and responds with its signature and the
// entry's previous hash and hash, and the client verifies the signature and
// the hash, applies the User signature, and returns it. The previous hash is
// stored as the server returned it; it is not checked. The entry is complete
// and compliant when the call returns without error.
func AddEntry(conn *ServerConnection, entry *keycard.Entry, orgVerifyKey crypto.CryptoString,
	signingPair *crypto.SigningPair) error {

	err := conn.SendMessage(ClientRequest{Action: "ADDENTRY", Data: map[string]string{
		"Base-Entry": string(entry.MakeByteString(1)),
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 100 {
		return wrapServerError(response)
	}

	for _, field := range []string{"Organization-Signature", "Hash", "Previous-Hash"} {
		if !response.HasField(field) {
			return &ServerError{Code: 300, Status: MsgInternal,
				Info: "server did not return required field " + field}
		}
	}

	entry.Signatures["Organization"] = response.StringField("Organization-Signature")
	if err = entry.VerifySignature(orgVerifyKey, "Organization"); err != nil {
		_ = Cancel(conn)
		return err
	}

	entry.PrevHash = response.StringField("Previous-Hash")
	entry.Hash = response.StringField("Hash")
	if err = entry.VerifyHash(); err != nil {
		_ = Cancel(conn)
		return err
	}

	if err = entry.Sign(signingPair.PrivateKey, "User"); err != nil {
		return err
	}
	if err = entry.VerifySignature(signingPair.PublicKey, "User"); err != nil {
		return err
	}
	if err = entry.IsCompliant(); err != nil {
		return err
	}

	err = conn.SendMessage(ClientRequest{Action: "ADDENTRY", Data: map[string]string{
		"User-Signature": entry.Signatures["User"],
	}})
	if err != nil {
		return err
	}

	response, err = conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// IsCurrent finds out if an entry index is the current one. If wid is empty,
// the index is checked against the organization's keycard.
func IsCurrent(conn *ServerConnection, index int, wid types.RandomID) (bool, error) {
	request := ClientRequest{Action: "ISCURRENT", Data: map[string]string{
		"Index": strconv.Itoa(index),
	}}
	if !wid.IsEmpty() {
		if !wid.IsValid() {
			return false, trace.BadParameter("bad workspace ID")
		}
		request.Data["Workspace-ID"] = wid.AsString()
	}

	if err := conn.SendMessage(request); err != nil {
		return false, err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return false, err
	}
	if response.Code != 200 {
		return false, wrapServerError(response)
	}
	if !response.HasField("Is-Current") {
		return false, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server did not return an answer"}
	}

	return response.StringField("Is-Current") == "YES", nil
}

// GetWID looks up a workspace ID based on the user ID and optional domain.
func GetWID(conn *ServerConnection, uid types.UserID, domain types.Domain) (types.RandomID, error) {
	if !uid.IsValid() {
		return types.RandomID{}, trace.BadParameter("bad user ID")
	}

	request := ClientRequest{Action: "GETWID", Data: map[string]string{
		"User-ID": uid.AsString(),
	}}
	if !domain.IsEmpty() {
		request.Data["Domain"] = domain.AsString()
	}

	if err := conn.SendMessage(request); err != nil {
		return types.RandomID{}, err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return types.RandomID{}, err
	}
	if response.Code != 200 {
		return types.RandomID{}, wrapServerError(response)
	}

	var wid types.RandomID
	if err = wid.Set(response.StringField("Workspace-ID")); err != nil {
		return types.RandomID{}, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server returned a bad workspace ID"}
	}
	return wid, nil
}

// PreregInfo is the provisioning data returned by a successful PREREG call.
type PreregInfo struct {
	WID     string
	Domain  string
	UID     string
	RegCode string
}

// Preregister provisions a preregistered account on the server. All three
// parameters are optional; the server fills in whatever is missing.
// Administrator rights are required.
func Preregister(conn *ServerConnection, wid types.RandomID, uid types.UserID,
	domain types.Domain) (*PreregInfo, error) {
	request := ClientRequest{Action: "PREREG", Data: map[string]string{}}
	if !wid.IsEmpty() {
		request.Data["Workspace-ID"] = wid.AsString()
	}
	if !uid.IsEmpty() {
		request.Data["User-ID"] = uid.AsString()
	}
	if !domain.IsEmpty() {
		request.Data["Domain"] = domain.AsString()
	}

	if err := conn.SendMessage(request); err != nil {
		return nil, err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return nil, err
	}
	if response.Code != 200 {
		return nil, wrapServerError(response)
	}

	for _, field := range []string{"Workspace-ID", "Domain", "Reg-Code"} {
		if response.StringField(field) == "" {
			return nil, &ServerError{Code: 300, Status: MsgInternal,
				Info: "server did not return all required fields"}
		}
	}

	return &PreregInfo{
		WID:     response.StringField("Workspace-ID"),
		Domain:  response.StringField("Domain"),
		UID:     response.StringField("User-ID"),
		RegCode: response.StringField("Reg-Code"),
	}, nil
}

// RegInfo is the identifying data returned by a successful registration.
type RegInfo struct {
	WID    string
	DevID  string
	Domain string
	UID    string
}

// RegCode finishes registration of a preregistered workspace using the
// registration code handed out by the administrator.
func RegCode(conn *ServerConnection, address types.MAddress, code string, pwhash string,
	devPair *crypto.EncryptionPair) (*RegInfo, error) {
	if !address.IsValid() {
		return nil, trace.BadParameter("bad address")
	}

	devid := types.RandomID{}
	devid.Generate()

	request := ClientRequest{Action: "REGCODE", Data: map[string]string{
		"Reg-Code":      code,
		"Password-Hash": pwhash,
		"Device-ID":     devid.AsString(),
		"Device-Key":    devPair.PublicKey.AsString(),
		"Domain":        address.Domain.AsString(),
	}}
	if address.ID.IsWID() {
		request.Data["Workspace-ID"] = address.ID.AsString()
	} else {
		request.Data["User-ID"] = address.ID.AsString()
	}

	if err := conn.SendMessage(request); err != nil {
		return nil, err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return nil, err
	}
	if response.Code != 201 {
		return nil, wrapServerError(response)
	}

	return &RegInfo{
		WID:    response.StringField("Workspace-ID"),
		DevID:  devid.AsString(),
		Domain: address.Domain.AsString(),
		UID:    response.StringField("User-ID"),
	}, nil
}

// Register creates an account on the server.
//
// The client picks the workspace ID, so in the minute possibility of a
// collision with an existing workspace it tries again with a fresh one. In
// the ridiculously small chance that collisions keep happening, it waits
// three seconds after every tenth try to reduce server load.
func Register(conn *ServerConnection, uid types.UserID, pwhash string,
	deviceKey crypto.CryptoString) (*RegInfo, error) {
	if !uid.IsEmpty() && !uid.IsValid() {
		return nil, trace.BadParameter("user id contains illegal characters")
	}

	devid := types.RandomID{}
	devid.Generate()

	for tries := 1; ; tries++ {
		if tries%10 == 0 {
			time.Sleep(3 * time.Second)
		}

		wid := types.RandomID{}
		wid.Generate()

		request := ClientRequest{Action: "REGISTER", Data: map[string]string{
			"Workspace-ID":  wid.AsString(),
			"Password-Hash": pwhash,
			"Device-ID":     devid.AsString(),
			"Device-Key":    deviceKey.AsString(),
		}}
		if !uid.IsEmpty() {
			request.Data["User-ID"] = uid.AsString()
		}

		if err := conn.SendMessage(request); err != nil {
			return nil, err
		}

		response, err := conn.ReadResponse()
		if err != nil {
			return nil, err
		}

		switch response.Code {
		case 101, 201: // Pending, Registered
			return &RegInfo{
				WID:    wid.AsString(),
				DevID:  devid.AsString(),
				Domain: response.StringField("Domain"),
				UID:    uid.AsString(),
			}, nil
		case 408: // WID or UID exists
			field := response.StringField("Field")
			switch field {
			case "Workspace-ID":
				// Collision; loop around and try another
			case "User-ID":
				return nil, trace.AlreadyExists("user id exists")
			default:
				return nil, &ServerError{Code: 300, Status: MsgInternal,
					Info: "server sent 408 without telling what existed"}
			}
		default:
			// Something unexpected: registration closed, payment required...
			return nil, wrapServerError(response)
		}
	}
}

// Unregister deletes the logged-in account from the server, or the specified
// workspace when called with administrator rights.
func Unregister(conn *ServerConnection, pwhash string, wid types.RandomID) error {
	request := ClientRequest{Action: "UNREGISTER", Data: map[string]string{
		"Password-Hash": pwhash,
	}}
	if !wid.IsEmpty() {
		if !wid.IsValid() {
			return trace.BadParameter("bad workspace ID")
		}
		request.Data["Workspace-ID"] = wid.AsString()
	}

	if err := conn.SendMessage(request); err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}

	// The server returns one of three possible response kinds: success,
	// pending for private and moderated registration modes, or an error
	if response.Code != 202 {
		return wrapServerError(response)
	}
	return nil
}

// Passcode resets a workspace's password using a reset code.
func Passcode(conn *ServerConnection, wid types.RandomID, resetCode string, pwhash string) error {
	err := conn.SendMessage(ClientRequest{Action: "PASSCODE", Data: map[string]string{
		"Workspace-ID":  wid.AsString(),
		"Reset-Code":    resetCode,
		"Password-Hash": pwhash,
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// SetPassword changes the password for the logged-in workspace.
func SetPassword(conn *ServerConnection, pwhash string, newpwhash string) error {
	err := conn.SendMessage(ClientRequest{Action: "SETPASSWORD", Data: map[string]string{
		"Password-Hash":    pwhash,
		"NewPassword-Hash": newpwhash,
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}

// ResetPassword is an administrator command which provisions a password
// reset code for a workspace. The code and expiration may be empty to let
// the server choose them.
func ResetPassword(conn *ServerConnection, wid types.RandomID, resetCode string,
	expires string) (string, string, error) {
	err := conn.SendMessage(ClientRequest{Action: "RESETPASSWORD", Data: map[string]string{
		"Workspace-ID": wid.AsString(),
		"Reset-Code":   resetCode,
		"Expires":      expires,
	}})
	if err != nil {
		return "", "", err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return "", "", err
	}
	if response.Code != 200 {
		return "", "", wrapServerError(response)
	}

	return response.StringField("Reset-Code"), response.StringField("Expires"), nil
}

// SetStatus sets the activity status of a workspace. Requires administrator
// rights. The status must be one of active, disabled, or approved.
func SetStatus(conn *ServerConnection, wid types.RandomID, status string) error {
	switch status {
	case "active", "disabled", "approved":
	default:
		return trace.BadParameter("status must be 'active', 'disabled', or 'approved'")
	}
	if !wid.IsValid() {
		return trace.BadParameter("bad workspace ID")
	}

	err := conn.SendMessage(ClientRequest{Action: "SETSTATUS", Data: map[string]string{
		"Workspace-ID": wid.AsString(),
		"Status":       status,
	}})
	if err != nil {
		return err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return err
	}
	if response.Code != 200 {
		return wrapServerError(response)
	}
	return nil
}
