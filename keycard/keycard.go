package keycard

import (
	"bufio"
	"os"
	"strings"

	"github.com/gravitational/trace"

	"github.com/darkwyrm/mensago-go-sdk/crypto"
)

const (
	entryBeginMarker = "----- BEGIN ENTRY -----"
	entryEndMarker   = "----- END ENTRY -----"
)

// Keycard encapsulates a chain of entries for a single subject along with
// the higher-level management methods.
type Keycard struct {
	Type    string
	Entries []*Entry
}

// NewKeycard creates an empty keycard for the given entry type.
func NewKeycard(cardType string) *Keycard {
	return &Keycard{Type: cardType}
}

// Current returns the entry at the end of the chain, or nil for an empty
// card.
func (card *Keycard) Current() *Entry {
	if len(card.Entries) == 0 {
		return nil
	}
	return card.Entries[len(card.Entries)-1]
}

// Append adds an entry to the end of the keycard.
func (card *Keycard) Append(entry *Entry) error {
	if entry == nil {
		return trace.BadParameter("entry may not be nil")
	}
	if card.Type != "" && entry.Type != card.Type {
		return trace.BadParameter("entry type does not match keycard")
	}

	card.Type = entry.Type
	card.Entries = append(card.Entries, entry)
	return nil
}

// Chain appends a new entry to the chain, optionally rotating keys which
// aren't required to change. The root entry must already exist.
//
// Organization entries are completed in place: the new entry is hashed and
// signed with the freshly generated primary signing key before it is
// appended. User entries are appended carrying only the Custody signature,
// because the organization's counter-signature and the hash must come from
// the server during the ADDENTRY exchange.
func (card *Keycard) Chain(signingKey crypto.CryptoString, rotateOptional bool) (*ChainKeys, error) {
	tail := card.Current()
	if tail == nil {
		return nil, trace.NotFound("missing root entry")
	}

	newEntry, keys, err := tail.Chain(signingKey, rotateOptional)
	if err != nil {
		return nil, err
	}

	if newEntry.Type == TypeOrganization {
		if err = newEntry.GenerateHash(crypto.DefaultHashAlgorithm); err != nil {
			return nil, err
		}
		if err = newEntry.Sign(keys.Signing.PrivateKey, "Organization"); err != nil {
			return nil, err
		}
	}

	card.Entries = append(card.Entries, newEntry)
	return keys, nil
}

// Verify walks the card's entire chain of entries, verifying each adjacent
// pair.
func (card *Keycard) Verify() error {
	if len(card.Entries) == 0 {
		return trace.NotFound("keycard contains no entries")
	}

	for i := 0; i < len(card.Entries)-1; i++ {
		if err := card.Entries[i+1].VerifyChain(card.Entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the keycard to a file, each entry framed by BEGIN/END ENTRY
// markers. The file is written in binary mode with CRLF line endings so that
// newline translation can never invalidate a signature.
func (card *Keycard) Save(path string, clobber bool) error {
	if path == "" {
		return trace.BadParameter("path may not be empty")
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !clobber {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	handle, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return trace.AlreadyExists("%s exists", path)
		}
		return trace.ConvertSystemError(err)
	}
	defer handle.Close()

	for _, entry := range card.Entries {
		if _, err = handle.WriteString(entryBeginMarker + "\r\n"); err != nil {
			return trace.ConvertSystemError(err)
		}
		if _, err = handle.Write(entry.MakeByteString(-1)); err != nil {
			return trace.ConvertSystemError(err)
		}
		if _, err = handle.WriteString(entryEndMarker + "\r\n"); err != nil {
			return trace.ConvertSystemError(err)
		}
	}
	return nil
}

// Load reads a keycard from a file saved by Save. Blank lines between entry
// frames are accepted but not required. The entry type found in the file is
// the in-band discriminator and every entry must carry the same one.
func (card *Keycard) Load(path string) error {
	if path == "" {
		return trace.BadParameter("path may not be empty")
	}

	handle, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return trace.NotFound("%s not found", path)
		}
		return trace.ConvertSystemError(err)
	}
	defer handle.Close()

	var accumulator []string
	cardType := card.Type
	entryIndex := 1

	scanner := bufio.NewScanner(handle)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == entryBeginMarker:
			accumulator = accumulator[:0]
		case line == entryEndMarker:
			var entry *Entry
			switch cardType {
			case TypeUser:
				entry = NewUserEntry()
			case TypeOrganization:
				entry = NewOrgEntry()
			default:
				return trace.Wrap(ErrUnsupportedKeycardType, "entry %d has invalid type",
					entryIndex)
			}

			// The constructors pre-fill defaults for building new entries;
			// loaded entries carry only what the file holds
			entry.Fields = make(map[string]string)

			if err = entry.Set([]byte(strings.Join(accumulator, "\r\n"))); err != nil {
				return trace.Wrap(err, "keycard entry %d", entryIndex)
			}
			card.Entries = append(card.Entries, entry)
			entryIndex++
		default:
			name, value, found := strings.Cut(line, ":")
			if !found {
				return trace.BadParameter("invalid line in entry %d", entryIndex)
			}

			if name == "Type" {
				if cardType == "" {
					cardType = value
				} else if cardType != value {
					return trace.BadParameter("entry type does not match keycard")
				}
			}

			accumulator = append(accumulator, line)
		}
	}
	if err = scanner.Err(); err != nil {
		return trace.ConvertSystemError(err)
	}

	card.Type = cardType
	return nil
}
