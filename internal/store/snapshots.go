package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Snapshots keeps the last fetched conversation list so the CLI can show
// it offline and the desk can seed the store before the first fetch.
type Snapshots struct {
	db *DB
}

// NewSnapshots creates a snapshot store using the given database.
func NewSnapshots(db *DB) *Snapshots {
	return &Snapshots{db: db}
}

// SaveConversations replaces the stored list with list, keeping its order.
func (s *Snapshots) SaveConversations(list []domain.Conversation) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		tx.Rollback()
		return err
	}

	now := time.Now().UTC().Format(time.DateTime)
	for i, c := range list {
		if c.ID.IsZero() {
			continue
		}
		payload, err := json.Marshal(c)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encoding conversation %s: %w", c.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO conversations (id, position, status, payload, saved_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   position = excluded.position,
			   status = excluded.status,
			   payload = excluded.payload,
			   saved_at = excluded.saved_at`,
			c.ID.String(), i, string(c.Status), string(payload), now,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadConversations returns the stored list and when it was saved. The
// time is zero when nothing is stored.
func (s *Snapshots) LoadConversations() ([]domain.Conversation, time.Time, error) {
	rows, err := s.db.sql.Query(`SELECT payload, saved_at FROM conversations ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var (
		list    []domain.Conversation
		savedAt time.Time
	)
	for rows.Next() {
		var payload, ts string
		if err := rows.Scan(&payload, &ts); err != nil {
			return nil, time.Time{}, err
		}
		var c domain.Conversation
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			s.db.log.Warn().Err(err).Msg("skipping unreadable conversation snapshot")
			continue
		}
		if t, err := time.Parse(time.DateTime, ts); err == nil && t.After(savedAt) {
			savedAt = t
		}
		list = append(list, c)
	}
	return list, savedAt, rows.Err()
}

// Clear drops the stored list.
func (s *Snapshots) Clear() error {
	_, err := s.db.sql.Exec(`DELETE FROM conversations`)
	return err
}
