package mensago

import (
	"io"
	"os"
	"strconv"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// Copy copies a server-side file to the requested directory and returns the
// name of the new file.
func Copy(conn *ServerConnection, srcFile string, destDir string) (string, error) {
	if srcFile == "" || destDir == "" {
		return "", trace.BadParameter("source and destination may not be empty")
	}

	err := conn.SendMessage(ClientRequest{Action: "COPY", Data: map[string]string{
		"SourceFile": srcFile,
		"DestDir":    destDir,
	}})
	if err != nil {
		return "", err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return "", err
	}
	if response.Code != 200 {
		return "", wrapServerError(response)
	}

	return response.StringField("NewName"), nil
}

// Move moves the specified source file to the destination directory.
func Move(conn *ServerConnection, srcFile string, destDir string) error {
	err := conn.SendMessage(ClientRequest{Action: "MOVE", Data: map[string]string{
		"SourceFile": srcFile,
		"DestDir":    destDir,
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

// Delete deletes one or more server-side files. Because each command frame
// is limited to 16 KiB, long path lists are split across as many DELETE
// commands as needed.
func Delete(conn *ServerConnection, pathList []string) error {
	queue := append([]string(nil), pathList...)

	for len(queue) > 0 {
		request := ClientRequest{Action: "DELETE", Data: map[string]string{}}

		// Baseline size of a minified DELETE frame with three characters
		// reserved for the path count. Each path is at least 83 bytes, so at
		// most ~196 paths fit in one frame.
		reqSize := 46
		index := 0

		// Stop short of the full 16384 to allow a bit of a fudge factor
		for len(queue) > 0 && reqSize < 16000 {
			entrySize := 10 + len(strconv.Itoa(index)) + len(queue[0])
			if reqSize+entrySize > MaxCommandSize {
				break
			}

			request.Data["Path"+strconv.Itoa(index)] = queue[0]
			queue = queue[1:]
			reqSize += entrySize
			index++
		}
		request.Data["PathCount"] = strconv.Itoa(index)

		if err := conn.SendMessage(request); err != nil {
			return err
		}

		response, err := conn.ReadResponse()
		if err != nil {
			return err
		}
		if response.Code != 200 {
			return wrapServerError(response)
		}
	}
	return nil
}

// Exists checks to see if a path exists on the server side.
func Exists(conn *ServerConnection, path string) (bool, error) {
	if path == "" {
		return false, nil
	}

	err := conn.SendMessage(ClientRequest{Action: "EXISTS", Data: map[string]string{
		"Path": path,
	}})
	if err != nil {
		return false, err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return false, err
	}

	switch response.Code {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, wrapServerError(response)
}

// Mkdir creates one or more directories, creating any parents as needed.
// The encPath parameter carries the user-facing path encrypted client-side,
// whereas path contains the corresponding server-side path which conveys no
// identifying information.
func Mkdir(conn *ServerConnection, path string, encPath crypto.CryptoString) error {
	if path == "" || !encPath.IsValid() {
		return trace.BadParameter("bad directory path")
	}

	err := conn.SendMessage(ClientRequest{Action: "MKDIR", Data: map[string]string{
		"Path":       path,
		"ClientPath": encPath.AsString(),
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

// Rmdir removes a directory on the server.
func Rmdir(conn *ServerConnection, path string) error {
	err := conn.SendMessage(ClientRequest{Action: "RMDIR", Data: map[string]string{
		"Path": path,
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

// Select changes the working directory on the server.
func Select(conn *ServerConnection, path string) error {
	err := conn.SendMessage(ClientRequest{Action: "SELECT", Data: map[string]string{
		"Path": path,
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

// List obtains a list of the files in the current server directory. If
// epochTime is greater than zero, only files created after that time are
// returned.
func List(conn *ServerConnection, path string, epochTime int64) ([]string, error) {
	request := ClientRequest{Action: "LIST", Data: map[string]string{}}
	if path != "" {
		request.Data["Path"] = path
	}
	if epochTime > 0 {
		request.Data["Time"] = strconv.FormatInt(epochTime, 10)
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

	return stringListField(response, "Files")
}

// ListDirs obtains a list of the subdirectories of the current server
// directory.
func ListDirs(conn *ServerConnection, path string) ([]string, error) {
	request := ClientRequest{Action: "LISTDIRS", Data: map[string]string{}}
	if path != "" {
		request.Data["Path"] = path
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

	return stringListField(response, "Directories")
}

// QuotaInfo reports a workspace's disk usage and allowance in bytes.
type QuotaInfo struct {
	Usage uint64
	Quota uint64
}

// GetQuotaInfo gets the disk usage and quota for the current workspace, or
// for another workspace when in an administrator session.
func GetQuotaInfo(conn *ServerConnection, wid types.RandomID) (*QuotaInfo, error) {
	if !wid.IsEmpty() && !wid.IsValid() {
		return nil, trace.BadParameter("bad workspace ID")
	}

	request := ClientRequest{Action: "GETQUOTAINFO", Data: map[string]string{}}
	if !wid.IsEmpty() {
		request.Data["Workspace-ID"] = wid.AsString()
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

	// Both values are required to be non-negative byte counts
	usage, err := strconv.ParseUint(response.StringField("DiskUsage"), 10, 64)
	if err != nil {
		return nil, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server returned a bad disk usage value"}
	}
	quota, err := strconv.ParseUint(response.StringField("QuotaSize"), 10, 64)
	if err != nil {
		return nil, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server returned a bad quota value"}
	}

	return &QuotaInfo{Usage: usage, Quota: quota}, nil
}

// SetQuota sets the size of a workspace's quota. Requires administrator
// rights.
func SetQuota(conn *ServerConnection, wid types.RandomID, size uint64) error {
	if !wid.IsValid() {
		return trace.BadParameter("bad workspace ID")
	}

	err := conn.SendMessage(ClientRequest{Action: "SETQUOTA", Data: map[string]string{
		"Workspaces": wid.AsString(),
		"Size":       strconv.FormatUint(size, 10),
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

// Download downloads a file from the server to the local path. A positive
// offset resumes an interrupted download at that position. The number of
// bytes written is returned.
func Download(conn *ServerConnection, serverPath string, localPath string, offset int64) (uint64, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY
	}
	handle, err := os.OpenFile(localPath, flags, 0o600)
	if err != nil {
		return 0, trace.ConvertSystemError(err)
	}
	defer handle.Close()

	request := ClientRequest{Action: "DOWNLOAD", Data: map[string]string{
		"Path": serverPath,
	}}
	if offset > 0 {
		request.Data["Offset"] = strconv.FormatInt(offset, 10)
	}

	if err = conn.SendMessage(request); err != nil {
		return 0, err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return 0, err
	}
	if response.Code != 100 {
		return 0, wrapServerError(response)
	}

	sizeToRead, err := strconv.ParseInt(response.StringField("Size"), 10, 64)
	if err != nil {
		return 0, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server gave an invalid response: bad Size field"}
	}

	if offset > 0 {
		if _, err = handle.Seek(offset, io.SeekStart); err != nil {
			return 0, trace.ConvertSystemError(err)
		}
		sizeToRead -= offset
	}

	// Echoing the Size field back is the client's confirmation of readiness
	// to receive the file data
	request.Data["Size"] = response.StringField("Size")
	if err = conn.SendMessage(request); err != nil {
		return 0, err
	}

	var written uint64
	buffer := make([]byte, readBufferSize)
	for sizeToRead > 0 {
		bytesRead, err := conn.Read(buffer)
		if err != nil {
			return written, err
		}
		if bytesRead == 0 {
			break
		}

		if _, err = handle.Write(buffer[:bytesRead]); err != nil {
			return written, trace.ConvertSystemError(err)
		}
		written += uint64(bytesRead)
		sizeToRead -= int64(bytesRead)
	}

	return written, nil
}

// Upload uploads a local file to the server. To resume a previous transfer,
// pass the TempName and Sent values from the TransferError it returned;
// otherwise leave tempName empty and offset negative. The hash may be
// passed in to save recalculating it. The server-side name of the uploaded
// file is returned.
func Upload(conn *ServerConnection, localPath string, serverPath string, hash crypto.CryptoString,
	tempName string, offset int64) (string, error) {
	if serverPath == "" {
		return "", trace.BadParameter("empty server path")
	}

	data := map[string]string{"Path": serverPath}
	return streamFile(conn, "UPLOAD", localPath, data, hash, tempName, offset)
}

// Send uploads a message to the server for delivery to another domain. The
// resume and hash parameters behave as in Upload.
func Send(conn *ServerConnection, localPath string, domain types.Domain, hash crypto.CryptoString,
	tempName string, offset int64) (string, error) {
	if !domain.IsValid() {
		return "", trace.BadParameter("bad domain")
	}

	data := map[string]string{"Domain": domain.AsString()}
	return streamFile(conn, "SEND", localPath, data, hash, tempName, offset)
}

// Replace uploads a local file to replace an existing server-side one. The
// resume and hash parameters behave as in Upload.
func Replace(conn *ServerConnection, oldPath string, localPath string, newPath string,
	hash crypto.CryptoString, tempName string, offset int64) (string, error) {
	if oldPath == "" || newPath == "" {
		return "", trace.BadParameter("empty server path")
	}

	data := map[string]string{"OldPath": oldPath, "NewPath": newPath}
	return streamFile(conn, "REPLACE", localPath, data, hash, tempName, offset)
}

// SendFast works like Send for messages able to fit within the command size
// limit, skipping the streaming exchange entirely. The limit includes all of
// the JSON formatting, so the actual payload must be a bit smaller still.
func SendFast(conn *ServerConnection, msgData string, domain types.Domain) error {
	if !domain.IsValid() {
		return trace.BadParameter("bad domain")
	}

	// 55 bytes of minified framing surround the domain and message
	if len(msgData)+len(domain.AsString())+55 > MaxCommandSize {
		return ErrMessageTooLarge
	}

	err := conn.SendMessage(ClientRequest{Action: "SENDFAST", Data: map[string]string{
		"Domain":  domain.AsString(),
		"Message": msgData,
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

// streamFile implements the shared shape of the streaming upload commands:
// send the command with the file's size and hash, receive a temporary name,
// stream the raw bytes, and receive the final file name. An interruption
// mid-stream returns a TransferError so the caller can resume.
func streamFile(conn *ServerConnection, action string, localPath string, data map[string]string,
	hash crypto.CryptoString, tempName string, offset int64) (string, error) {

	info, err := os.Stat(localPath)
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	fileSize := info.Size()

	if offset >= 0 && offset > fileSize {
		return "", trace.BadParameter("bad offset")
	}
	if (offset >= 0 && tempName == "") || (offset < 0 && tempName != "") {
		return "", trace.BadParameter("tempname and offset must both be set to resume")
	}

	if !hash.IsValid() {
		if hash, err = crypto.HashFile(localPath, crypto.DefaultHashAlgorithm); err != nil {
			return "", err
		}
	}

	data["Size"] = strconv.FormatInt(fileSize, 10)
	data["Hash"] = hash.AsString()
	if offset >= 0 {
		data["Offset"] = strconv.FormatInt(offset, 10)
	}
	if tempName != "" {
		data["TempName"] = tempName
	}

	if err = conn.SendMessage(ClientRequest{Action: action, Data: data}); err != nil {
		return "", err
	}

	response, err := conn.ReadResponse()
	if err != nil {
		return "", err
	}
	if response.Code != 100 {
		return "", wrapServerError(response)
	}
	serverTemp := response.StringField("TempName")

	handle, err := os.Open(localPath)
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	defer handle.Close()

	var totalSent uint64
	if offset > 0 {
		if _, err = handle.Seek(offset, io.SeekStart); err != nil {
			return "", trace.ConvertSystemError(err)
		}
		totalSent = uint64(offset)
	}

	buffer := make([]byte, readBufferSize)
	for {
		bytesRead, err := handle.Read(buffer)
		if bytesRead > 0 {
			sent, err := conn.Write(buffer[:bytesRead])
			totalSent += uint64(sent)
			if err != nil {
				return "", &TransferError{Sent: totalSent, TempName: serverTemp, Err: err}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", &TransferError{Sent: totalSent, TempName: serverTemp,
				Err: trace.ConvertSystemError(err)}
		}
	}

	response, err = conn.ReadResponse()
	if err != nil {
		return "", err
	}
	if response.Code != 200 {
		return "", wrapServerError(response)
	}

	return response.StringField("FileName"), nil
}

// stringListField unpacks a list-of-strings field from a response payload.
func stringListField(response *ServerResponse, name string) ([]string, error) {
	raw, ok := response.Data[name].([]any)
	if !ok {
		return nil, &ServerError{Code: 300, Status: MsgInternal,
			Info: "server did not return the " + name + " list"}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, &ServerError{Code: 300, Status: MsgInternal,
				Info: "server returned bad data in the " + name + " list"}
		}
		out = append(out, s)
	}
	return out, nil
}
