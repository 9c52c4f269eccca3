package outbox

import (
	"testing"

	"github.com/adamavenir/chatbus/internal/core"
	"github.com/adamavenir/chatbus/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	root, err := core.InitRoot(t.TempDir(), false)
	if err != nil {
		t.Fatalf("init root: %v", err)
	}
	return Open(root, Options{})
}

func appendMessage(t *testing.T, store *Store, origin, chatID, body string) int64 {
	t.Helper()
	rec, err := NewRecord(types.KindMessage, origin, chatID, types.MessagePayload{
		Message: types.Message{ID: "msg-" + body, ChatID: chatID, SenderID: origin, Body: body},
	})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	seq, err := store.Append(rec)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return seq
}

func collect(t *testing.T, store *Store, after int64) ([]types.EventRecord, []error) {
	t.Helper()
	var records []types.EventRecord
	var errs []error
	for rec, err := range store.ReadFrom(after) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}
