package mensago

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

func TestEnvelopeBuildAndMarshal(t *testing.T) {
	t.Parallel()

	recipientPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	senderOrgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	recipientOrgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	sender := types.NewWAddress("11111111-1111-1111-1111-111111111111/example.com")
	recipient := types.NewWAddress("22222222-2222-2222-2222-222222222222/example.net")

	env := NewEnvelope()
	require.NoError(t, env.SetMsgKey(recipientPair.PublicKey))
	require.NoError(t, env.SetSender(sender, recipient, senderOrgPair.PublicKey))
	require.NoError(t, env.SetReceiver(sender, recipient, recipientOrgPair.PublicKey))

	env.Payload["Type"] = "usermessage"
	env.Payload["Subject"] = "Dinner?"

	out, err := env.Marshal()
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "MENSAGO", lines[0])
	assert.Equal(t, "----------", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "XSALSA20:"))

	// The metadata line holds the sealed payload key and the hash of the
	// recipient key that sealed it
	var fields EnvelopeFields
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &fields))
	assert.Equal(t, "1.0", fields.Version)
	assert.Equal(t, recipientPair.PublicHash.AsString(), fields.KeyHash)
	require.NotEmpty(t, fields.PayloadKey)

	// The recipient can unwrap the payload key and read the payload
	rawKey, err := recipientPair.Decrypt(fields.PayloadKey)
	require.NoError(t, err)
	msgKey, err := crypto.NewSecretKey(crypto.NewCS(string(rawKey)))
	require.NoError(t, err)

	payloadData, err := msgKey.Decrypt(strings.TrimPrefix(lines[3], "XSALSA20:"))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(payloadData, &payload))
	assert.Equal(t, "Dinner?", payload["Subject"])
}

func TestEnvelopeRoutingTags(t *testing.T) {
	t.Parallel()

	recipientPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	senderOrgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	recipientOrgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	sender := types.NewWAddress("11111111-1111-1111-1111-111111111111/example.com")
	recipient := types.NewWAddress("22222222-2222-2222-2222-222222222222/example.net")

	env := NewEnvelope()
	require.NoError(t, env.SetMsgKey(recipientPair.PublicKey))
	require.NoError(t, env.SetSender(sender, recipient, senderOrgPair.PublicKey))
	require.NoError(t, env.SetReceiver(sender, recipient, recipientOrgPair.PublicKey))

	// The sender tag opens only with the sending organization's key and
	// carries the recipient domain for egress routing
	tagData, err := senderOrgPair.Decrypt(env.Fields.Sender)
	require.NoError(t, err)
	var senderTag map[string]string
	require.NoError(t, json.Unmarshal(tagData, &senderTag))
	assert.Equal(t, sender.AsString(), senderTag["From"])
	assert.Equal(t, "example.net", senderTag["RecipientDomain"])

	// The receiver tag opens only with the receiving organization's key
	tagData, err = recipientOrgPair.Decrypt(env.Fields.Receiver)
	require.NoError(t, err)
	var receiverTag map[string]string
	require.NoError(t, json.Unmarshal(tagData, &receiverTag))
	assert.Equal(t, recipient.AsString(), receiverTag["To"])
	assert.Equal(t, "example.com", receiverTag["SenderDomain"])

	_, err = recipientOrgPair.Decrypt(env.Fields.Sender)
	assert.Error(t, err)
}

func TestEnvelopeMarshalPreconditions(t *testing.T) {
	t.Parallel()

	recipientPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	orgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	sender := types.NewWAddress("11111111-1111-1111-1111-111111111111/example.com")
	recipient := types.NewWAddress("22222222-2222-2222-2222-222222222222/example.net")

	// No message key
	env := NewEnvelope()
	_, err = env.Marshal()
	assert.ErrorIs(t, err, ErrRequiredDataMissing)

	// Message key but no routing tags
	require.NoError(t, env.SetMsgKey(recipientPair.PublicKey))
	_, err = env.Marshal()
	assert.ErrorIs(t, err, ErrRequiredDataMissing)

	// Sender alone is still not enough
	require.NoError(t, env.SetSender(sender, recipient, orgPair.PublicKey))
	_, err = env.Marshal()
	assert.ErrorIs(t, err, ErrRequiredDataMissing)

	require.NoError(t, env.SetReceiver(sender, recipient, orgPair.PublicKey))
	_, err = env.Marshal()
	assert.NoError(t, err)

	// Invalid inputs are rejected at set time
	assert.Error(t, env.SetMsgKey(crypto.CryptoString{}))
	assert.Error(t, env.SetSender(types.WAddress{}, recipient, orgPair.PublicKey))
	assert.Error(t, env.SetReceiver(sender, types.WAddress{}, orgPair.PublicKey))
}
