package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewTagsServiceAndInstance(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "alice")
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "chatbus" || entry["instance"] != "alice" || entry["message"] != "hello" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("expected timestamp field")
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "alice")
	logger.Info().Msg("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}

	buf.Reset()
	fallback := New(&buf, "nonsense", "alice")
	fallback.Debug().Msg("quiet")
	fallback.Info().Msg("loud")
	if buf.Len() == 0 {
		t.Fatalf("invalid level should fall back to info")
	}
}
