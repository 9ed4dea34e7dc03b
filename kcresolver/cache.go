package kcresolver

import (
	"database/sql"
	"strconv"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/keycard"
)

// Cache stores resolved keycards in the profile database so that repeat
// lookups don't touch the network. The owner string is the organization's
// domain or the user's workspace address.
type Cache struct {
	db *sql.DB
}

// NewCache creates a keycard cache over the given profile database handle.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// GetCard returns the cached keycard for the owner, or NotFound when the
// cache has no entries for it.
func (c *Cache) GetCard(owner string, cardType string) (*keycard.Keycard, error) {
	rows, err := c.db.Query(
		`SELECT entry FROM keycards WHERE owner=? ORDER BY "index"`, owner)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer rows.Close()

	card := keycard.NewKeycard(cardType)
	for rows.Next() {
		var entryData []byte
		if err = rows.Scan(&entryData); err != nil {
			return nil, trace.Wrap(err)
		}

		var entry *keycard.Entry
		switch cardType {
		case keycard.TypeOrganization:
			entry = keycard.NewOrgEntry()
		case keycard.TypeUser:
			entry = keycard.NewUserEntry()
		default:
			return nil, keycard.ErrUnsupportedKeycardType
		}
		entry.Fields = make(map[string]string)

		if err = entry.Set(entryData); err != nil {
			return nil, err
		}
		if err = card.Append(entry); err != nil {
			return nil, err
		}
	}
	if err = rows.Err(); err != nil {
		return nil, trace.Wrap(err)
	}

	if len(card.Entries) == 0 {
		return nil, trace.NotFound("no cached keycard for %s", owner)
	}
	return card, nil
}

// UpdateCard replaces the cached entries for the card's owner.
func (c *Cache) UpdateCard(owner string, card *keycard.Keycard) error {
	if len(card.Entries) == 0 {
		return trace.BadParameter("keycard contains no entries")
	}

	tx, err := c.db.Begin()
	if err != nil {
		return trace.Wrap(err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM keycards WHERE owner=?`, owner); err != nil {
		return trace.Wrap(err)
	}

	for _, entry := range card.Entries {
		index, err := strconv.Atoi(entry.Fields["Index"])
		if err != nil {
			return trace.BadParameter("entry has a bad index")
		}

		entryData := entry.MakeByteString(-1)
		_, err = tx.Exec(`INSERT INTO keycards(owner,"index",type,entry,textentry,hash,
			expires,timestamp) VALUES(?,?,?,?,?,?,?,?)`,
			owner, index, entry.Type, entryData, string(entryData), entry.Hash,
			entry.Fields["Expires"], entry.Fields["Timestamp"])
		if err != nil {
			return trace.Wrap(err)
		}
	}

	return trace.Wrap(tx.Commit())
}
