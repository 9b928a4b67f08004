package store

type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create kv",
		SQL: `
			CREATE TABLE kv (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create conversation snapshots",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				position    INTEGER NOT NULL,
				status      TEXT NOT NULL DEFAULT '',
				payload     TEXT NOT NULL,
				saved_at    TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_conversations_position ON conversations (position);
		`,
	},
	{
		Version: 3,
		Name:    "create message archive with FTS5",
		SQL: `
			CREATE TABLE archived_messages (
				id               TEXT PRIMARY KEY,
				conversation_id  TEXT NOT NULL,
				direction        TEXT NOT NULL DEFAULT '',
				source           TEXT NOT NULL DEFAULT '',
				sender_name      TEXT NOT NULL DEFAULT '',
				content          TEXT NOT NULL,
				created_at       TEXT NOT NULL
			);

			CREATE INDEX idx_archived_conversation ON archived_messages (conversation_id, created_at);

			CREATE VIRTUAL TABLE archived_fts USING fts5(
				content,
				sender_name,
				content='archived_messages',
				content_rowid='rowid'
			);

			CREATE TRIGGER archived_ai AFTER INSERT ON archived_messages BEGIN
				INSERT INTO archived_fts(rowid, content, sender_name)
				VALUES (new.rowid, new.content, new.sender_name);
			END;

			CREATE TRIGGER archived_ad AFTER DELETE ON archived_messages BEGIN
				INSERT INTO archived_fts(archived_fts, rowid, content, sender_name)
				VALUES ('delete', old.rowid, old.content, old.sender_name);
			END;

			CREATE TRIGGER archived_au AFTER UPDATE ON archived_messages BEGIN
				INSERT INTO archived_fts(archived_fts, rowid, content, sender_name)
				VALUES ('delete', old.rowid, old.content, old.sender_name);
				INSERT INTO archived_fts(rowid, content, sender_name)
				VALUES (new.rowid, new.content, new.sender_name);
			END;
		`,
	},
}
