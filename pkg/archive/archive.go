package archive

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"

	"github.com/go-go-golems/storyteller/pkg/conversation"
)

// Archive is the durable multi-conversation store. Each conversation is
// stored as its codec document alongside a few columns worth of listing
// metadata, so browsing the archive never deserializes full timelines.
type Archive struct {
	db *sql.DB
}

// Entry is one row of the archive listing.
type Entry struct {
	ID           uuid.UUID
	Title        string
	MessageCount int
	UpdatedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL,
	document BLOB NOT NULL
);
`

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite db %q", path)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create archive schema")
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// Save upserts the conversation's serialized document.
func (a *Archive) Save(m *conversation.ManagerImpl) error {
	doc, err := conversation.Encode(m)
	if err != nil {
		return errors.Wrap(err, "encode conversation")
	}

	_, err = a.db.Exec(`
		INSERT INTO conversations (id, title, message_count, updated_at, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at,
			document = excluded.document`,
		m.ConversationID().String(),
		m.Title(),
		m.Tree().Store().Len(),
		time.Now().UTC().Format(time.RFC3339),
		doc,
	)
	if err != nil {
		return errors.Wrap(err, "save conversation")
	}

	log.Debug().
		Str("conversation_id", m.ConversationID().String()).
		Msg("saved conversation to archive")
	return nil
}

// Load decodes a conversation out of the archive. The document goes through
// the codec's full integrity checks, a corrupted row surfaces as
// CorruptDataError rather than a half-loaded timeline.
func (a *Archive) Load(id uuid.UUID, options ...conversation.ManagerOption) (*conversation.ManagerImpl, error) {
	var doc []byte
	err := a.db.QueryRow(
		`SELECT document FROM conversations WHERE id = ?`, id.String(),
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Errorf("conversation %s not in archive", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load conversation")
	}

	return conversation.Decode(doc, options...)
}

// List returns archive entries, most recently updated first.
func (a *Archive) List() ([]Entry, error) {
	rows, err := a.db.Query(`
		SELECT id, title, message_count, updated_at
		FROM conversations
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			idStr     string
			entry     Entry
			updatedAt string
		)
		if err := rows.Scan(&idStr, &entry.Title, &entry.MessageCount, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan archive row")
		}
		entry.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid conversation id %q in archive", idStr)
		}
		entry.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid timestamp %q in archive", updatedAt)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Delete removes a conversation from the archive for good.
func (a *Archive) Delete(id uuid.UUID) error {
	res, err := a.db.Exec(`DELETE FROM conversations WHERE id = ?`, id.String())
	if err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Errorf("conversation %s not in archive", id)
	}
	return nil
}
