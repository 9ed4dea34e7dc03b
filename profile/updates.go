package profile

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/types"
)

// Update event types reported by the server.
const (
	UpdateCreate = "Create"
	UpdateMove   = "Move"
	UpdateDelete = "Delete"
	UpdateRotate = "Rotate"
)

var updateFolderPattern = regexp.MustCompile(`^/( new)?` +
	`( [\da-fA-F]{8}-[\da-fA-F]{4}-[\da-fA-F]{4}-[\da-fA-F]{4}-[\da-fA-F]{12})*$`)

var updateFilePattern = regexp.MustCompile(`^/( new)?` +
	`( [\da-fA-F]{8}-[\da-fA-F]{4}-[\da-fA-F]{4}-[\da-fA-F]{4}-[\da-fA-F]{12})*` +
	`( [0-9]+\.[0-9]+\.[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?` +
	`[0-9a-fA-F]{12})+$`)

// UpdateRecord is one delta entry from the server's change feed: an event
// ID, what happened, the path (or paths) involved, and when.
type UpdateRecord struct {
	ID   types.RandomID
	Type string
	Data string
	Time int64
}

// Validate confirms that an update record received from the server is
// well-formed before it is stored.
func (r *UpdateRecord) Validate() error {
	if !r.ID.IsValid() {
		return trace.BadParameter("bad update ID")
	}

	switch r.Type {
	case UpdateCreate, UpdateDelete:
		if !updateFilePattern.MatchString(r.Data) {
			return trace.BadParameter("bad path in %s update", r.Type)
		}
	case UpdateMove:
		// A move carries the source file path and the destination folder
		// path separated by a slash boundary
		paths := strings.Split(strings.TrimSpace(r.Data), "/")
		if len(paths) != 3 {
			return trace.BadParameter("bad path pair in Move update")
		}
		if !updateFilePattern.MatchString("/"+strings.TrimSpace(paths[1])) ||
			!updateFolderPattern.MatchString("/"+strings.TrimSpace(paths[2])) {
			return trace.BadParameter("bad path pair in Move update")
		}
	case UpdateRotate:
	default:
		return trace.BadParameter("bad update type %s", r.Type)
	}

	if r.Time < 0 {
		return trace.BadParameter("bad update timestamp")
	}
	return nil
}

// HasUpdateRecord returns true if the update with the given ID has already
// been stored.
func HasUpdateRecord(db *sql.DB, id types.RandomID) (bool, error) {
	var existing string
	err := db.QueryRow(`SELECT id FROM updates WHERE id=?`, id.AsString()).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, trace.Wrap(err)
	}
	return true, nil
}

// AddUpdateRecord stores one update record.
func AddUpdateRecord(db *sql.DB, record *UpdateRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	_, err := db.Exec(`INSERT INTO updates(id,type,data,time) VALUES(?,?,?,?)`,
		record.ID.AsString(), record.Type, record.Data,
		strconv.FormatInt(record.Time, 10))
	return trace.Wrap(err)
}

// GetUpdateRecords returns all stored update records in the order received.
func GetUpdateRecords(db *sql.DB) ([]UpdateRecord, error) {
	rows, err := db.Query(`SELECT id,type,data,time FROM updates`)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	var out []UpdateRecord
	for rows.Next() {
		var record UpdateRecord
		var id, timeStr string
		if err = rows.Scan(&id, &record.Type, &record.Data, &timeStr); err != nil {
			return nil, trace.Wrap(err)
		}
		record.ID = types.NewRandomID(id)
		record.Time, _ = strconv.ParseInt(timeStr, 10, 64)
		out = append(out, record)
	}
	return out, trace.Wrap(rows.Err())
}

// RemoveUpdateRecord deletes a processed update record.
func RemoveUpdateRecord(db *sql.DB, id types.RandomID) error {
	_, err := db.Exec(`DELETE FROM updates WHERE id=?`, id.AsString())
	return trace.Wrap(err)
}
