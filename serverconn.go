package mensago

import (
	"encoding/json"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/gravitational/trace"
)

const (
	// DefaultPort is the TCP port Mensago servers listen on.
	DefaultPort = 2001

	// MaxCommandSize is the maximum size of a single command message when
	// minified. Anything larger must use the streaming commands.
	MaxCommandSize = 16384

	// readBufferSize is the size of socket reads for both responses and
	// streamed file data.
	readBufferSize = 16384

	// connectTimeout bounds the wait for the initial connection and
	// greeting.
	connectTimeout = 10 * time.Second

	// idleTimeout bounds each read on an established session.
	idleTimeout = 30 * time.Minute
)

// ServerGreeting is the JSON message the server sends immediately upon
// connection, before any command is issued.
type ServerGreeting struct {
	Name    string `json:"Name"`
	Version string `json:"Version"`
	Code    int    `json:"Code"`
	Status  string `json:"Status"`
}

// ServerResponse is the uniform shape of every server reply: a numeric code,
// its status string, optional extra information, and a payload object whose
// fields depend on the command.
type ServerResponse struct {
	Code   int            `json:"Code"`
	Status string         `json:"Status"`
	Info   string         `json:"Info"`
	Data   map[string]any `json:"Data"`
}

// StringField returns a string field from the response payload, or an empty
// string if the field is absent or not a string.
func (r *ServerResponse) StringField(name string) string {
	if value, ok := r.Data[name].(string); ok {
		return value
	}
	return ""
}

// HasField returns true if the response payload contains the named field.
func (r *ServerResponse) HasField(name string) bool {
	_, ok := r.Data[name]
	return ok
}

// ServerConnection owns one TCP socket to a Mensago server. All reads and
// writes are synchronous and blocking, and at most one command may be in
// flight at a time. A broken socket is terminal: the connection must be
// discarded, not reused.
type ServerConnection struct {
	conn net.Conn
}

// NewServerConnection creates an unconnected ServerConnection.
func NewServerConnection() *ServerConnection {
	return &ServerConnection{}
}

// Connect creates a connection to the server and absorbs its greeting. An
// empty port selects the default.
func (sc *ServerConnection) Connect(address string, port int) error {
	if sc.conn != nil {
		return trace.AlreadyExists("already connected")
	}
	if port <= 0 {
		port = DefaultPort
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(address, strconv.Itoa(port)),
		connectTimeout)
	if err != nil {
		return trace.ConnectionProblem(err, "unable to connect to %s", address)
	}

	// The greeting is expected as soon as the socket opens, so keep the
	// short timeout until it has been read
	_ = conn.SetReadDeadline(time.Now().Add(connectTimeout))

	buffer := make([]byte, readBufferSize)
	bytesRead, err := conn.Read(buffer)
	if err != nil {
		conn.Close()
		return trace.ConnectionProblem(err, "failed to read server greeting")
	}

	var greeting ServerGreeting
	if err = json.Unmarshal(buffer[:bytesRead], &greeting); err != nil {
		conn.Close()
		return trace.BadParameter("invalid server greeting")
	}
	slog.Debug("connected to mensago server", "name", greeting.Name,
		"version", greeting.Version)

	sc.conn = conn
	return nil
}

// IsConnected returns whether or not the instance is connected to a server.
func (sc *ServerConnection) IsConnected() bool {
	return sc.conn != nil
}

// Disconnect ends the session by sending a QUIT command and closing the
// socket.
func (sc *ServerConnection) Disconnect() error {
	if sc.conn == nil {
		return nil
	}

	err := sc.SendMessage(ClientRequest{Action: "QUIT", Data: map[string]string{}})
	sc.conn.Close()
	sc.conn = nil
	return err
}

// ClientRequest is the uniform shape of every client command.
type ClientRequest struct {
	Action string            `json:"Action"`
	Data   map[string]string `json:"Data"`
}

// SendMessage sends a command message to the server. Messages larger than
// MaxCommandSize when minified are rejected with ErrMessageTooLarge.
func (sc *ServerConnection) SendMessage(request ClientRequest) error {
	if sc.conn == nil {
		return trace.ConnectionProblem(nil, "not connected")
	}

	out, err := json.Marshal(request)
	if err != nil {
		return trace.Wrap(err)
	}
	if len(out) > MaxCommandSize {
		return ErrMessageTooLarge
	}
	out = append(out, '\r', '\n')

	if _, err = sc.conn.Write(out); err != nil {
		sc.close()
		return trace.ConnectionProblem(err, "socket write failed")
	}
	return nil
}

// ReadResponse reads a server response and validates its shape.
func (sc *ServerConnection) ReadResponse() (*ServerResponse, error) {
	if sc.conn == nil {
		return nil, trace.ConnectionProblem(nil, "not connected")
	}

	_ = sc.conn.SetReadDeadline(time.Now().Add(idleTimeout))

	buffer := make([]byte, readBufferSize)
	bytesRead, err := sc.conn.Read(buffer)
	if err != nil {
		sc.close()
		return nil, trace.ConnectionProblem(err, "socket read failed")
	}

	var response ServerResponse
	if err = json.Unmarshal(buffer[:bytesRead], &response); err != nil {
		return nil, trace.BadParameter("invalid JSON in server response")
	}
	if response.Status == "" && response.Code == 0 {
		return nil, trace.BadParameter("invalid server response")
	}
	if response.Data == nil {
		response.Data = make(map[string]any)
	}

	return &response, nil
}

// Read reads raw bytes from the network connection for streamed transfers.
func (sc *ServerConnection) Read(buffer []byte) (int, error) {
	if sc.conn == nil {
		return 0, trace.ConnectionProblem(nil, "not connected")
	}

	_ = sc.conn.SetReadDeadline(time.Now().Add(idleTimeout))

	bytesRead, err := sc.conn.Read(buffer)
	if err != nil {
		sc.close()
		return bytesRead, trace.ConnectionProblem(err, "socket read failed")
	}
	return bytesRead, nil
}

// Write sends raw bytes over the socket for streamed transfers.
func (sc *ServerConnection) Write(data []byte) (int, error) {
	if sc.conn == nil {
		return 0, trace.ConnectionProblem(nil, "not connected")
	}

	bytesWritten, err := sc.conn.Write(data)
	if err != nil {
		sc.close()
		return bytesWritten, trace.ConnectionProblem(err, "socket write failed")
	}
	return bytesWritten, nil
}

func (sc *ServerConnection) close() {
	if sc.conn != nil {
		sc.conn.Close()
		sc.conn = nil
	}
}
