package profile

import (
	"database/sql"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/contact"
	"github.com/darkwyrm/mensago-go-sdk/types"
)

// Contact documents are stored flattened: one row per dot-notated field, so
// individual fields can be read, written, and searched without rebuilding
// the whole document.

// SaveContactField writes one dot-notated contact field, replacing any
// existing value.
func SaveContactField(db *sql.DB, id types.RandomID, fieldName string, fieldValue string,
	group string) error {
	if !id.IsValid() || fieldName == "" {
		return trace.BadParameter("bad contact field parameter")
	}

	if _, err := db.Exec(`DELETE FROM contactinfo WHERE id=? AND fieldname=?`,
		id.AsString(), fieldName); err != nil {
		return trace.Wrap(err)
	}
	_, err := db.Exec(`INSERT INTO contactinfo(id,fieldname,fieldvalue,contactgroup)
		VALUES(?,?,?,?)`, id.AsString(), fieldName, fieldValue, group)
	return trace.Wrap(err)
}

// LoadContactField reads one dot-notated contact field.
func LoadContactField(db *sql.DB, id types.RandomID, fieldName string) (string, error) {
	if !id.IsValid() || fieldName == "" {
		return "", trace.BadParameter("bad contact field parameter")
	}

	var value string
	err := db.QueryRow(`SELECT fieldvalue FROM contactinfo WHERE id=? AND fieldname=?`,
		id.AsString(), fieldName).Scan(&value)
	if err == sql.ErrNoRows {
		return "", trace.NotFound("contact field %s not found", fieldName)
	}
	if err != nil {
		return "", trace.Wrap(err)
	}
	return value, nil
}

// DeleteContactField removes one dot-notated contact field.
func DeleteContactField(db *sql.DB, id types.RandomID, fieldName string) error {
	if !id.IsValid() || fieldName == "" {
		return trace.BadParameter("bad contact field parameter")
	}

	_, err := db.Exec(`DELETE FROM contactinfo WHERE id=? AND fieldname=?`,
		id.AsString(), fieldName)
	return trace.Wrap(err)
}

// SaveContact flattens a nested contact document and stores it, replacing
// any fields previously stored for the ID.
func SaveContact(db *sql.DB, id types.RandomID, doc map[string]any, group string) error {
	if !id.IsValid() {
		return trace.BadParameter("bad contact ID")
	}

	flattened, err := contact.Flatten(doc)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return trace.Wrap(err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM contactinfo WHERE id=?`, id.AsString()); err != nil {
		return trace.Wrap(err)
	}
	for fieldName, fieldValue := range flattened {
		_, err = tx.Exec(`INSERT INTO contactinfo(id,fieldname,fieldvalue,contactgroup)
			VALUES(?,?,?,?)`, id.AsString(), fieldName, fieldValue, group)
		if err != nil {
			return trace.Wrap(err)
		}
	}

	return trace.Wrap(tx.Commit())
}

// LoadContact reads all fields stored for the ID and unflattens them back
// into the nested document form.
func LoadContact(db *sql.DB, id types.RandomID) (map[string]any, error) {
	if !id.IsValid() {
		return nil, trace.BadParameter("bad contact ID")
	}

	rows, err := db.Query(`SELECT fieldname,fieldvalue FROM contactinfo WHERE id=?`,
		id.AsString())
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	flattened := make(map[string]string)
	for rows.Next() {
		var fieldName, fieldValue string
		if err = rows.Scan(&fieldName, &fieldValue); err != nil {
			return nil, trace.Wrap(err)
		}
		flattened[fieldName] = fieldValue
	}
	if err = rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}

	if len(flattened) == 0 {
		return nil, trace.NotFound("contact %s not found", id.AsString())
	}
	return contact.Unflatten(flattened)
}

// FindContact returns the IDs of contacts with a field matching the given
// value exactly.
func FindContact(db *sql.DB, fieldName string, fieldValue string) ([]types.RandomID, error) {
	rows, err := db.Query(`SELECT DISTINCT id FROM contactinfo WHERE fieldname=? AND
		fieldvalue=?`, fieldName, fieldValue)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	var out []types.RandomID
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, trace.Wrap(err)
		}
		out = append(out, types.NewRandomID(id))
	}
	if err = rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}

	if len(out) == 0 {
		return nil, trace.NotFound("no contact has %s=%s", fieldName, fieldValue)
	}
	return out, nil
}

// SaveUserField writes one dot-notated field of the user's own contact
// information.
func SaveUserField(db *sql.DB, fieldName string, fieldValue string) error {
	if fieldName == "" {
		return trace.BadParameter("field name may not be empty")
	}

	if _, err := db.Exec(`DELETE FROM userinfo WHERE fieldname=?`, fieldName); err != nil {
		return trace.Wrap(err)
	}
	_, err := db.Exec(`INSERT INTO userinfo(fieldname,fieldvalue) VALUES(?,?)`,
		fieldName, fieldValue)
	return trace.Wrap(err)
}

// LoadUserField reads one dot-notated field of the user's own contact
// information.
func LoadUserField(db *sql.DB, fieldName string) (string, error) {
	if fieldName == "" {
		return "", trace.BadParameter("field name may not be empty")
	}

	var value string
	err := db.QueryRow(`SELECT fieldvalue FROM userinfo WHERE fieldname=?`,
		fieldName).Scan(&value)
	if err == sql.ErrNoRows {
		return "", trace.NotFound("user field %s not found", fieldName)
	}
	if err != nil {
		return "", trace.Wrap(err)
	}
	return value, nil
}

// DeleteUserField removes one field of the user's own contact information.
func DeleteUserField(db *sql.DB, fieldName string) error {
	if fieldName == "" {
		return trace.BadParameter("field name may not be empty")
	}

	_, err := db.Exec(`DELETE FROM userinfo WHERE fieldname=?`, fieldName)
	return trace.Wrap(err)
}
