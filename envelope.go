package mensago

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// EnvelopeFields is the cleartext metadata carried by a sealed envelope.
// Aside from the version, the date, and the hash of the recipient key,
// every field is ciphertext: the payload
// key is sealed to the recipient, and the two routing tags are sealed to
// the sending and receiving organizations so that each server can see only
// what it needs to route the message.
type EnvelopeFields struct {
	Version    string `json:"Version"`
	Date       string `json:"Date"`
	KeyHash    string `json:"KeyHash"`
	PayloadKey string `json:"PayloadKey"`
	Sender     string `json:"Sender,omitempty"`
	Receiver   string `json:"Receiver,omitempty"`
}

// Envelope is the sealed container for one message payload. Build it in
// order: SetMsgKey, SetSender, SetReceiver, then Marshal with the payload.
type Envelope struct {
	Fields  EnvelopeFields
	Payload map[string]any

	msgKey *crypto.SecretKey
}

// NewEnvelope creates an empty envelope stamped with the current time.
func NewEnvelope() *Envelope {
	return &Envelope{
		Fields: EnvelopeFields{
			Version: "1.0",
			Date:    time.Now().UTC().Format("20060102T150405Z"),
		},
		Payload: make(map[string]any),
	}
}

// SetMsgKey generates a message-specific symmetric key, seals it to the
// recipient's public encryption key, and attaches it to the envelope along
// with the hash of the recipient key used, so the recipient can tell which
// of its keys opens the message.
func (env *Envelope) SetMsgKey(recipientKey crypto.CryptoString) error {
	if !recipientKey.IsValid() {
		return trace.BadParameter("bad recipient key")
	}

	pubKey := crypto.NewPublicKey(recipientKey)
	msgKey, err := crypto.GenerateSecretKey()
	if err != nil {
		return err
	}

	sealed, err := pubKey.Encrypt(msgKey.Key.AsBytes())
	if err != nil {
		return err
	}

	env.msgKey = msgKey
	env.Fields.PayloadKey = sealed
	env.Fields.KeyHash = pubKey.PublicHash.AsString()
	return nil
}

// SetSender seals the sender tag to the sending organization's encryption
// key, giving the sender's server the recipient domain it needs for egress
// routing without exposing it to anyone else.
func (env *Envelope) SetSender(sender types.WAddress, recipient types.WAddress,
	senderOrgKey crypto.CryptoString) error {
	if !sender.IsValid() || !recipient.IsValid() || !senderOrgKey.IsValid() {
		return trace.BadParameter("bad sender tag data")
	}

	tag, err := json.Marshal(map[string]string{
		"From":            sender.AsString(),
		"RecipientDomain": recipient.Domain.AsString(),
	})
	if err != nil {
		return trace.Wrap(err)
	}

	sealed, err := crypto.NewPublicKey(senderOrgKey).Encrypt(tag)
	if err != nil {
		return err
	}
	env.Fields.Sender = sealed
	return nil
}

// SetReceiver seals the receiver tag to the receiving organization's
// encryption key, giving the recipient's server the delivery address and
// the sender domain for its ingress checks.
func (env *Envelope) SetReceiver(sender types.WAddress, recipient types.WAddress,
	recipientOrgKey crypto.CryptoString) error {
	if !sender.IsValid() || !recipient.IsValid() || !recipientOrgKey.IsValid() {
		return trace.BadParameter("bad receiver tag data")
	}

	tag, err := json.Marshal(map[string]string{
		"To":           recipient.AsString(),
		"SenderDomain": sender.Domain.AsString(),
	})
	if err != nil {
		return trace.Wrap(err)
	}

	sealed, err := crypto.NewPublicKey(recipientOrgKey).Encrypt(tag)
	if err != nil {
		return err
	}
	env.Fields.Receiver = sealed
	return nil
}

// Marshal converts the envelope to the text format used for Mensago data
// files: a MENSAGO magic line, the metadata as one line of JSON, a
// separator, and the encrypted payload.
func (env *Envelope) Marshal() (string, error) {
	if env.msgKey == nil {
		return "", trace.Wrap(ErrRequiredDataMissing, "message key missing")
	}
	if !crypto.NewCS(env.Fields.KeyHash).IsValid() {
		return "", trace.Wrap(ErrRequiredDataMissing, "bad message key hash")
	}
	if env.Fields.PayloadKey == "" {
		return "", trace.Wrap(ErrRequiredDataMissing, "payload key missing")
	}
	if env.Fields.Sender == "" || env.Fields.Receiver == "" {
		return "", trace.Wrap(ErrRequiredDataMissing, "sender and receiver tags missing")
	}
	if env.Fields.Version != "1.0" {
		return "", trace.BadParameter("bad version value")
	}

	envData, err := json.Marshal(env.Fields)
	if err != nil {
		return "", trace.Wrap(err)
	}

	// The internal structure of the payload varies, so it is assumed to be
	// valid; minimal validation is possible but largely pointless
	payloadData, err := json.Marshal(env.Payload)
	if err != nil {
		return "", trace.Wrap(err)
	}

	encrypted, err := env.msgKey.Encrypt(payloadData)
	if err != nil {
		return "", err
	}

	return strings.Join([]string{
		"MENSAGO",
		string(envData),
		"----------",
		env.msgKey.Key.Prefix + ":" + encrypted,
	}, "\n"), nil
}
