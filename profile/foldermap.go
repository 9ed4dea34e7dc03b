package profile

import (
	"database/sql"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/types"
)

// FolderMap represents the mapping of a server-side folder ID to a
// user-facing path such as `messages` or `files attachments`.
type FolderMap struct {
	FID         types.RandomID
	Address     string
	KeyID       string
	Path        string
	Permissions string
}

// MakeID generates a new folder ID for the object.
func (fm *FolderMap) MakeID() {
	fm.FID.Generate()
}

// Set assigns the values of the mapping.
func (fm *FolderMap) Set(address string, keyid string, path string, permissions string) {
	fm.Address = address
	fm.KeyID = keyid
	fm.Path = path
	fm.Permissions = permissions
}

// LoadFolderMaps loads all folder mappings from the database as a map of
// folder IDs to workspace-relative paths. Because folders can share a name
// when they live in different locations, the full path is the value.
func LoadFolderMaps(db *sql.DB) (map[string]string, error) {
	if db == nil {
		return nil, trace.BadParameter("database may not be nil")
	}

	rows, err := db.Query(`SELECT fid,path FROM folders`)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	maps := make(map[string]string)
	for rows.Next() {
		var fid, path string
		if err = rows.Scan(&fid, &path); err != nil {
			return nil, trace.Wrap(err)
		}
		maps[fid] = path
	}
	if err = rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}

	if len(maps) == 0 {
		return nil, trace.NotFound("no folder maps found")
	}
	return maps, nil
}
