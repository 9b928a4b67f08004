package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- DB/Migration tests ---

func TestOpen_InMemory(t *testing.T) {
	db := testDB(t)
	assert.NotNil(t, db)
	require.NoError(t, db.sql.Ping())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agentdesk.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	kv := NewKV(db)
	require.NoError(t, kv.Set("token", "abc"))
	require.NoError(t, db.Close())

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	v, ok, err := NewKV(db).Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestMigrations_Applied(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].Version, v)
}

func TestMigrations_Idempotent(t *testing.T) {
	db := testDB(t)

	err := db.migrate()
	require.NoError(t, err)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestMigrations_ResumeFromVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentdesk.db")
	db, err := Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	_, err = db.sql.Exec("DROP TABLE archived_fts")
	require.NoError(t, err)
	_, err = db.sql.Exec("DROP TABLE archived_messages")
	require.NoError(t, err)
	_, err = db.sql.Exec("PRAGMA user_version = 2")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, logging.New(nil, "silent"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, NewArchive(db).Save(archived("m1", "c1", "back again", 1)))
	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestSchema_TablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{"kv", "conversations", "archived_messages", "archived_fts"}
	for _, table := range tables {
		var name string
		err := db.sql.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

// --- KV tests ---

func TestKV_GetMissing(t *testing.T) {
	kv := NewKV(testDB(t))
	v, ok, err := kv.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestKV_SetOverwrite(t *testing.T) {
	kv := NewKV(testDB(t))
	require.NoError(t, kv.Set("token", "one"))
	require.NoError(t, kv.Set("token", "two"))

	v, ok, err := kv.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestKV_Delete(t *testing.T) {
	kv := NewKV(testDB(t))
	require.NoError(t, kv.Set("token", "a"))
	require.NoError(t, kv.Set("refreshToken", "b"))
	require.NoError(t, kv.Set("user", "c"))

	require.NoError(t, kv.Delete("token", "refreshToken", "missing"))

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, keys)
}

// --- Snapshot tests ---

func TestSnapshots_RoundTripOrder(t *testing.T) {
	snaps := NewSnapshots(testDB(t))

	list := []domain.Conversation{
		{ID: "c2", CustomerName: "Bea", Status: domain.ConversationActive, UnreadCount: 2,
			LastMessage: &domain.LastMessage{Content: "hi"}},
		{ID: "c1", CustomerName: "Ana", Status: domain.ConversationDormant},
		{CustomerName: "no id"},
	}
	require.NoError(t, snaps.SaveConversations(list))

	got, savedAt, err := snaps.LoadConversations()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ID("c2"), got[0].ID)
	assert.Equal(t, domain.ID("c1"), got[1].ID)
	assert.Equal(t, 2, got[0].UnreadCount)
	require.NotNil(t, got[0].LastMessage)
	assert.Equal(t, "hi", got[0].LastMessage.Content)
	assert.WithinDuration(t, time.Now(), savedAt, time.Minute)
}

func TestSnapshots_SaveReplaces(t *testing.T) {
	snaps := NewSnapshots(testDB(t))
	require.NoError(t, snaps.SaveConversations([]domain.Conversation{{ID: "c1"}, {ID: "c2"}}))
	require.NoError(t, snaps.SaveConversations([]domain.Conversation{{ID: "c3"}}))

	got, _, err := snaps.LoadConversations()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ID("c3"), got[0].ID)

	require.NoError(t, snaps.Clear())
	got, savedAt, err := snaps.LoadConversations()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.True(t, savedAt.IsZero())
}

// --- Archive tests ---

func archived(id, conv, content string, minute int) domain.Message {
	return domain.Message{
		ID:             domain.ID(id),
		ConversationID: domain.ID(conv),
		Content:        content,
		Direction:      domain.DirectionInbound,
		Source:         domain.SourceUser,
		SenderName:     "Ana",
		CreatedAt:      domain.NewTimestamp(time.Date(2025, 3, 1, 9, minute, 0, 0, time.UTC)),
	}
}

func TestArchive_Search(t *testing.T) {
	a := NewArchive(testDB(t))
	require.NoError(t, a.Save(
		archived("m1", "c1", "my card was declined at checkout", 1),
		archived("m2", "c1", "thanks for the help", 2),
		archived("m3", "c2", "card arrived damaged", 3),
		domain.Message{Content: "skipped"},
	))

	got, err := a.Search("card", "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = a.Search("card", "c2", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ID("m3"), got[0].ID)
	assert.Equal(t, domain.SourceUser, got[0].Source)

	got, err = a.Search("Ana", "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3, "sender name is indexed")

	got, err = a.Search("nonexistent", "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestArchive_UpdateReindexes(t *testing.T) {
	a := NewArchive(testDB(t))
	require.NoError(t, a.Save(archived("m1", "c1", "original wording", 1)))
	require.NoError(t, a.Save(archived("m1", "c1", "edited wording", 1)))

	got, err := a.Search("original", "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = a.Search("edited", "", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestArchive_ConversationOrderAndLimit(t *testing.T) {
	a := NewArchive(testDB(t))
	require.NoError(t, a.Save(
		archived("m3", "c1", "third", 3),
		archived("m1", "c1", "first", 1),
		archived("m2", "c1", "second", 2),
		archived("x1", "c2", "other", 1),
	))

	got, err := a.Conversation("c1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ID("m2"), got[0].ID)
	assert.Equal(t, domain.ID("m3"), got[1].ID)
	assert.Equal(t, 9, got[0].CreatedAt.Hour())
}

func TestArchive_Delete(t *testing.T) {
	a := NewArchive(testDB(t))
	require.NoError(t, a.Save(archived("m1", "c1", "card", 1), archived("m2", "c2", "card", 2)))

	require.NoError(t, a.DeleteConversation("c1"))
	got, err := a.Search("card", "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ID("m2"), got[0].ID)

	require.NoError(t, a.Purge())
	got, err = a.Conversation("c2", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
