package chat

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/adamavenir/chatbus/internal/db"
	"github.com/adamavenir/chatbus/internal/types"
)

func openChatDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	for _, id := range []string{"alice", "bob"} {
		if _, err := db.UpsertUser(database, id, ""); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if _, err := db.CreateChat(database, types.Chat{ID: "general"}); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		if err := db.AddMember(database, "general", id); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return database
}

func newTestModel(t *testing.T, database *sql.DB) *Model {
	t.Helper()
	m, err := NewModel(Options{DB: database, ChatID: "general", UserID: "alice", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m
}

func TestNewModelUnknownChat(t *testing.T) {
	database := openChatDB(t)
	if _, err := NewModel(Options{DB: database, ChatID: "missing", UserID: "alice"}); err == nil {
		t.Fatal("expected error for unknown chat")
	}
}

func TestModelLoadsHistory(t *testing.T) {
	database := openChatDB(t)
	if _, err := db.InsertMessage(database, types.Message{ChatID: "general", SenderID: "bob", Body: "earlier"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	m := newTestModel(t, database)
	if len(m.messages) != 1 || m.messages[0].Body != "earlier" {
		t.Fatalf("unexpected history %+v", m.messages)
	}
	if len(m.members) != 2 {
		t.Fatalf("unexpected members %v", m.members)
	}
}

func TestModelTypingIndicator(t *testing.T) {
	m := newTestModel(t, openChatDB(t))

	m.OnTypingStatusChanged("general", "bob", true)
	if line := m.typersLine(); line != "bob is typing..." {
		t.Fatalf("unexpected typing line %q", line)
	}
	m.OnTypingStatusChanged("elsewhere", "bob", false)
	if m.typersLine() == "" {
		t.Fatal("typing in another chat must not clear the indicator")
	}
	m.OnUserOnlineStatusChanged("bob", false)
	if line := m.typersLine(); line != "" {
		t.Fatalf("expected indicator cleared when offline, got %q", line)
	}
}

func TestModelReadReceiptsAndProfiles(t *testing.T) {
	database := openChatDB(t)
	m := newTestModel(t, database)

	m.OnMessageRead("msg-1", "bob")
	m.OnMessageRead("msg-1", "alice")
	if readers := m.readBy["msg-1"]; len(readers) != 1 || !readers["bob"] {
		t.Fatalf("unexpected readers %v", readers)
	}

	name := "Bobby"
	if err := db.UpdateUserProfile(database, "bob", db.UserProfileUpdates{
		DisplayName: types.OptionalString{Set: true, Value: &name},
	}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	m.OnUserProfileUpdated("bob")
	if got := m.displayName("bob"); got != "Bobby" {
		t.Fatalf("expected refreshed name, got %q", got)
	}
}

func TestModelResyncReloads(t *testing.T) {
	database := openChatDB(t)
	m := newTestModel(t, database)
	m.OnTypingStatusChanged("general", "bob", true)

	if _, err := db.InsertMessage(database, types.Message{ChatID: "general", SenderID: "bob", Body: "missed"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	m.OnResync()

	if len(m.messages) != 1 || m.messages[0].Body != "missed" {
		t.Fatalf("expected reloaded history, got %+v", m.messages)
	}
	if m.typersLine() != "" {
		t.Fatal("expected typing state cleared on resync")
	}
}

func TestModelDegradedStatus(t *testing.T) {
	m := newTestModel(t, openChatDB(t))
	m.OnDegraded(sql.ErrConnDone)
	if !strings.Contains(m.View(), "realtime updates unavailable") {
		t.Fatal("expected degraded warning in view")
	}
}
