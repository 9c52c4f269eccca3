package outbox

import (
	"strings"
	"testing"

	"github.com/adamavenir/chatbus/internal/types"
)

func TestEncodeDecodeMessage(t *testing.T) {
	rec, err := NewRecord(types.KindMessage, "alice", "c1", types.MessagePayload{
		Message: types.Message{ID: "msg-1", ChatID: "c1", SenderID: "alice", Body: "hi", MediaType: types.MediaImage, MediaRef: "img.png"},
	})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	rec.Seq = 7
	rec.WrittenAt = 1234

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"v":1`) {
		t.Fatalf("expected version field, got %s", data)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Seq != 7 || decoded.Kind != types.KindMessage || decoded.Origin != "alice" || decoded.Target != "c1" || decoded.WrittenAt != 1234 {
		t.Fatalf("unexpected record: %+v", decoded)
	}

	payload, err := DecodePayload[types.MessagePayload](decoded)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Message.Body != "hi" || payload.Message.MediaType != types.MediaImage {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestProfileUpdateHasNoPayload(t *testing.T) {
	rec, err := NewRecord(types.KindProfileUpdate, "alice", "alice", nil)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if len(rec.Payload) != 0 {
		t.Fatalf("expected empty payload, got %s", rec.Payload)
	}
	if _, err := DecodePayload[types.PresencePayload](rec); err == nil {
		t.Fatalf("expected error decoding empty payload")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"truncated":       `{"v":1,"seq":3,"kind":"mess`,
		"unknown version": `{"v":2,"seq":3,"kind":"message","origin":"a","target":"c"}`,
		"missing seq":     `{"v":1,"kind":"message","origin":"a","target":"c"}`,
		"empty kind":      `{"v":1,"seq":3,"kind":"","origin":"a","target":"c"}`,
		"unknown kind":    `{"v":1,"seq":3,"kind":"wave","origin":"a","target":"c"}`,
	}
	for name, input := range cases {
		if _, err := Decode([]byte(input)); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	if _, err := Encode(types.EventRecord{Seq: 1, Kind: "wave"}); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestRecordName(t *testing.T) {
	name := recordName(42)
	if name != "00000000000000000042.json" {
		t.Fatalf("unexpected name %q", name)
	}
	seq, ok := parseRecordName(name)
	if !ok || seq != 42 {
		t.Fatalf("parse %q: got %d %v", name, seq, ok)
	}
	for _, bad := range []string{"42.json", "00000000000000000042.tmp", "0000000000000000004x.json", "00000000000000000000.json"} {
		if _, ok := parseRecordName(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
