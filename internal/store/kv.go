package store

import (
	"database/sql"
	"errors"
	"time"
)

// KV is a string key-value table. It backs the credentials manager.
type KV struct {
	db *DB
}

// NewKV creates a key-value store using the given database.
func NewKV(db *DB) *KV {
	return &KV{db: db}
}

// Get returns the value stored under key and whether it exists.
func (k *KV) Get(key string) (string, bool, error) {
	var value string
	err := k.db.sql.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (k *KV) Set(key, value string) error {
	_, err := k.db.sql.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.DateTime),
	)
	return err
}

// Delete removes keys. Missing keys are not an error.
func (k *KV) Delete(keys ...string) error {
	tx, err := k.db.sql.Begin()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Keys returns all stored keys in order.
func (k *KV) Keys() ([]string, error) {
	rows, err := k.db.sql.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
