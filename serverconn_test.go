package mensago

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// fakeServer runs a scripted Mensago server on a loopback socket. The
// script receives the accepted connection after the greeting is sent and
// plays the server's half of the exchange.
type fakeServer struct {
	listener net.Listener
	done     chan struct{}
}

func startFakeServer(t *testing.T, script func(t *testing.T, conn net.Conn)) (*fakeServer, int) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &fakeServer{listener: listener, done: make(chan struct{})}
	go func() {
		defer close(server.done)

		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		greeting, _ := json.Marshal(ServerGreeting{
			Name:    "Mensago Test Server",
			Version: "0.1",
			Code:    200,
			Status:  "OK",
		})
		_, _ = conn.Write(append(greeting, '\r', '\n'))

		script(t, conn)
	}()

	t.Cleanup(func() {
		listener.Close()
		<-server.done
	})

	return server, listener.Addr().(*net.TCPAddr).Port
}

// readRequest reads one client command from the socket.
func readRequest(t *testing.T, reader *bufio.Reader) ClientRequest {
	t.Helper()

	line, err := reader.ReadString('\n')
	require.NoError(t, err)

	var request ClientRequest
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(line)), &request))
	return request
}

// sendResponse writes one server response to the socket.
func sendResponse(t *testing.T, conn net.Conn, code int, status string, data map[string]any) {
	t.Helper()

	if data == nil {
		data = map[string]any{}
	}
	out, err := json.Marshal(ServerResponse{Code: code, Status: status, Data: data})
	require.NoError(t, err)
	_, err = conn.Write(append(out, '\r', '\n'))
	require.NoError(t, err)
}

func TestServerConnectionBasics(t *testing.T) {
	t.Parallel()

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		request := readRequest(t, reader)
		assert.Equal(t, "GETWID", request.Action)
		sendResponse(t, conn, 200, "OK", map[string]any{
			"Workspace-ID": "11111111-1111-1111-1111-111111111111",
		})

		request = readRequest(t, reader)
		assert.Equal(t, "QUIT", request.Action)
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	assert.True(t, conn.IsConnected())

	wid, err := GetWID(conn, types.NewUserID("csimons"), types.NewDomain("example.com"))
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", wid.AsString())

	require.NoError(t, conn.Disconnect())
	assert.False(t, conn.IsConnected())
}

func TestSendMessageSizeLimit(t *testing.T) {
	t.Parallel()

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		// Nothing arrives; the oversize message is rejected client-side
		_, _ = io.Copy(io.Discard, conn)
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.Disconnect()

	err := conn.SendMessage(ClientRequest{Action: "UPLOAD", Data: map[string]string{
		"Data": strings.Repeat("x", MaxCommandSize),
	}})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestStatusStringMapping(t *testing.T) {
	t.Parallel()

	// The mapping is complete over the defined ranges
	for _, code := range []int{100, 101, 102, 103, 104, 200, 201, 202,
		300, 301, 302, 303, 304, 305, 306, 307, 308, 309,
		400, 401, 402, 403, 404, 405, 406, 407, 408, 409, 410, 411, 412, 413, 414, 415} {
		status := GetStatusString(code)
		assert.True(t, strings.HasPrefix(status, strconv.Itoa(code)+"-"), code)
	}

	assert.Equal(t, MsgOK, GetStatusString(200))
	assert.Equal(t, MsgResExists, GetStatusString(408))

	// Unknown codes coerce to the generic server error
	assert.Equal(t, MsgInternal, GetStatusString(999))
}

func TestLoginChallengeExchange(t *testing.T) {
	t.Parallel()

	orgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		request := readRequest(t, reader)
		assert.Equal(t, "LOGIN", request.Action)
		assert.Equal(t, "PLAIN", request.Data["Login-Type"])

		// Decrypt the challenge the way the real server would and echo it
		challenge, err := orgPair.Decrypt(request.Data["Challenge"])
		require.NoError(t, err)
		sendResponse(t, conn, 100, "CONTINUE", map[string]any{
			"Response": string(challenge),
		})
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.close()

	wid := types.NewRandomID("11111111-1111-1111-1111-111111111111")
	require.NoError(t, Login(conn, wid, orgPair.PublicKey))
}

func TestLoginChallengeMismatch(t *testing.T) {
	t.Parallel()

	orgPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		_ = readRequest(t, reader)
		sendResponse(t, conn, 100, "CONTINUE", map[string]any{
			"Response": "not the challenge",
		})
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.close()

	wid := types.NewRandomID("11111111-1111-1111-1111-111111111111")
	err = Login(conn, wid, orgPair.PublicKey)

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, 300, serverErr.Code)
}

func TestDeviceChallengeFailureCancels(t *testing.T) {
	t.Parallel()

	devPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)
	wrongPair, err := crypto.GenerateEncryptionPair()
	require.NoError(t, err)

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		request := readRequest(t, reader)
		assert.Equal(t, "DEVICE", request.Action)

		// Seal the challenge to the wrong key so the client cannot open it
		sealed, err := crypto.NewPublicKey(wrongPair.PublicKey).Encrypt([]byte("a challenge"))
		require.NoError(t, err)
		sendResponse(t, conn, 100, "CONTINUE", map[string]any{"Challenge": sealed})

		// The failed decryption must reset the session
		request = readRequest(t, reader)
		assert.Equal(t, "CANCEL", request.Action)
		sendResponse(t, conn, 200, "OK", nil)
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.close()

	devid := types.NewRandomID("22222222-2222-2222-2222-222222222222")
	err = Device(conn, devid, devPair)
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailure)
}

func TestUploadStreaming(t *testing.T) {
	t.Parallel()

	localPath := filepath.Join(t.TempDir(), "upload.dat")
	payload := strings.Repeat("0123456789", 100)
	require.NoError(t, os.WriteFile(localPath, []byte(payload), 0o600))

	serverPath := "/ wsp 11111111-1111-1111-1111-111111111111"

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		request := readRequest(t, reader)
		assert.Equal(t, "UPLOAD", request.Action)
		assert.Equal(t, "1000", request.Data["Size"])
		assert.True(t, strings.HasPrefix(request.Data["Hash"], "BLAKE2B-256:"))
		sendResponse(t, conn, 100, "CONTINUE", map[string]any{"TempName": "tempfile.tmp"})

		body := make([]byte, len(payload))
		_, err := io.ReadFull(reader, body)
		require.NoError(t, err)
		assert.Equal(t, payload, string(body))

		sendResponse(t, conn, 200, "OK", map[string]any{
			"FileName": "1257894000.1000.22222222-2222-2222-2222-222222222222",
		})
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.close()

	fileName, err := Upload(conn, localPath, serverPath, crypto.CryptoString{}, "", -1)
	require.NoError(t, err)
	assert.Equal(t, "1257894000.1000.22222222-2222-2222-2222-222222222222", fileName)
}

func TestUploadResumeParameters(t *testing.T) {
	t.Parallel()

	localPath := filepath.Join(t.TempDir(), "upload.dat")
	require.NoError(t, os.WriteFile(localPath, []byte(strings.Repeat("ab", 512)), 0o600))

	conn := NewServerConnection()

	// Resume requires both the temp name and the offset together
	_, err := Upload(conn, localPath, "/ tmp", crypto.CryptoString{}, "", 512)
	assert.Error(t, err)
	_, err = Upload(conn, localPath, "/ tmp", crypto.CryptoString{}, "tempfile.tmp", -1)
	assert.Error(t, err)

	// An offset past the end of the file makes no sense
	_, err = Upload(conn, localPath, "/ tmp", crypto.CryptoString{}, "tempfile.tmp", 2048)
	assert.Error(t, err)
}

func TestGetQuotaInfo(t *testing.T) {
	t.Parallel()

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		_ = readRequest(t, reader)
		sendResponse(t, conn, 200, "OK", map[string]any{
			"DiskUsage": "52428800",
			"QuotaSize": "1073741824",
		})

		_ = readRequest(t, reader)
		sendResponse(t, conn, 200, "OK", map[string]any{
			"DiskUsage": "not a number",
			"QuotaSize": "1073741824",
		})
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.close()

	// Usage and quota are parsed as byte counts
	info, err := GetQuotaInfo(conn, types.RandomID{})
	require.NoError(t, err)
	assert.Equal(t, uint64(52428800), info.Usage)
	assert.Equal(t, uint64(1073741824), info.Quota)

	// Non-numeric values from the server are a protocol failure
	_, err = GetQuotaInfo(conn, types.RandomID{})
	var serverErr *ServerError
	assert.True(t, errors.As(err, &serverErr))
}

func TestIsCurrent(t *testing.T) {
	t.Parallel()

	_, port := startFakeServer(t, func(t *testing.T, conn net.Conn) {
		reader := bufio.NewReader(conn)
		request := readRequest(t, reader)
		assert.Equal(t, "ISCURRENT", request.Action)
		assert.Equal(t, "1", request.Data["Index"])
		sendResponse(t, conn, 200, "OK", map[string]any{"Is-Current": "NO"})
	})

	conn := NewServerConnection()
	require.NoError(t, conn.Connect("127.0.0.1", port))
	defer conn.close()

	current, err := IsCurrent(conn, 1, types.RandomID{})
	require.NoError(t, err)
	assert.False(t, current)
}

func TestWrapServerError(t *testing.T) {
	t.Parallel()

	err := wrapServerError(&ServerResponse{Code: 404, Status: "NOT FOUND", Info: "no such file"})

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, 404, serverErr.Code)
	assert.Contains(t, serverErr.Error(), "404-Not Found")
	assert.Contains(t, serverErr.Error(), "no such file")
}
