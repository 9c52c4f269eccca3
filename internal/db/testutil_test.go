package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/adamavenir/chatbus/internal/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func seedChat(t *testing.T, db *sql.DB, chatID string, members ...string) {
	t.Helper()
	for _, id := range members {
		if _, err := UpsertUser(db, id, ""); err != nil {
			t.Fatalf("upsert user %s: %v", id, err)
		}
	}
	if _, err := CreateChat(db, types.Chat{ID: chatID}); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for _, id := range members {
		if err := AddMember(db, chatID, id); err != nil {
			t.Fatalf("add member %s: %v", id, err)
		}
	}
}

func strPtr(value string) *string {
	return &value
}
