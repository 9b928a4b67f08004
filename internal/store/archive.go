package store

import (
	"database/sql"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ArchivedMessage is a message kept in the local archive.
type ArchivedMessage struct {
	ID             domain.ID        `json:"id"`
	ConversationID domain.ID        `json:"conversation_id"`
	Direction      domain.Direction `json:"direction"`
	Source         domain.Source    `json:"source"`
	SenderName     string           `json:"sender_name,omitempty"`
	Content        string           `json:"content"`
	CreatedAt      time.Time        `json:"created_at"`
	Rank           float64          `json:"rank,omitempty"` // FTS5 rank score (search results only)
}

// archiveTime sorts lexically in UTC.
const archiveTime = "2006-01-02T15:04:05.000000Z"

// Archive keeps every message the desk has seen, searchable with FTS5.
type Archive struct {
	db *DB
}

// NewArchive creates a message archive using the given database.
func NewArchive(db *DB) *Archive {
	return &Archive{db: db}
}

// Save inserts or updates messages. Messages without an id are skipped.
func (a *Archive) Save(msgs ...domain.Message) error {
	tx, err := a.db.sql.Begin()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.ID.IsZero() {
			continue
		}
		created := m.CreatedAt.Time
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.Exec(
			`INSERT INTO archived_messages (id, conversation_id, direction, source, sender_name, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   content = excluded.content,
			   sender_name = excluded.sender_name`,
			m.ID.String(), m.ConversationID.String(), string(m.Direction), string(m.Source),
			m.SenderName, m.Content, created.UTC().Format(archiveTime),
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Search finds archived messages matching the FTS5 query, optionally
// within one conversation. Limit of 0 defaults to 20.
func (a *Archive) Search(query string, conversationID domain.ID, limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 20
	}

	var (
		rows *sql.Rows
		err  error
	)
	if conversationID.IsZero() {
		rows, err = a.db.sql.Query(
			`SELECT am.id, am.conversation_id, am.direction, am.source, am.sender_name, am.content, am.created_at, rank
			 FROM archived_fts
			 JOIN archived_messages am ON am.rowid = archived_fts.rowid
			 WHERE archived_fts MATCH ?
			 ORDER BY rank
			 LIMIT ?`,
			query, limit,
		)
	} else {
		rows, err = a.db.sql.Query(
			`SELECT am.id, am.conversation_id, am.direction, am.source, am.sender_name, am.content, am.created_at, rank
			 FROM archived_fts
			 JOIN archived_messages am ON am.rowid = archived_fts.rowid
			 WHERE archived_fts MATCH ?
			   AND am.conversation_id = ?
			 ORDER BY rank
			 LIMIT ?`,
			query, conversationID.String(), limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanArchived(rows)
}

// Conversation returns the newest archived messages of one conversation in
// chronological order. Limit of 0 defaults to 100.
func (a *Archive) Conversation(conversationID domain.ID, limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.sql.Query(
		`SELECT * FROM (
		   SELECT id, conversation_id, direction, source, sender_name, content, created_at, 0
		   FROM archived_messages WHERE conversation_id = ?
		   ORDER BY created_at DESC LIMIT ?
		 ) ORDER BY created_at`,
		conversationID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanArchived(rows)
}

// DeleteConversation removes one conversation's archived messages.
func (a *Archive) DeleteConversation(conversationID domain.ID) error {
	_, err := a.db.sql.Exec(`DELETE FROM archived_messages WHERE conversation_id = ?`, conversationID.String())
	return err
}

// Purge removes every archived message, as on logout.
func (a *Archive) Purge() error {
	_, err := a.db.sql.Exec(`DELETE FROM archived_messages`)
	return err
}

func scanArchived(rows *sql.Rows) ([]ArchivedMessage, error) {
	var out []ArchivedMessage
	for rows.Next() {
		var m ArchivedMessage
		var id, conv, direction, source, created string
		if err := rows.Scan(&id, &conv, &direction, &source, &m.SenderName, &m.Content, &created, &m.Rank); err != nil {
			continue
		}
		m.ID = domain.ID(id)
		m.ConversationID = domain.ID(conv)
		m.Direction = domain.Direction(direction)
		m.Source = domain.Source(source)
		m.CreatedAt, _ = time.Parse(archiveTime, created)
		out = append(out, m)
	}
	return out, rows.Err()
}
