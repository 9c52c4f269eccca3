package bus

import (
	"errors"
	"sync"
	"testing"

	"github.com/adamavenir/chatbus/internal/types"
)

// seqSink hands out increasing sequence ids and can run a hook before
// returning, to interleave foreign records with a local append.
type seqSink struct {
	mu       sync.Mutex
	next     int64
	err      error
	onAppend func(seq int64)
}

func (s *seqSink) Append(types.EventRecord) (int64, error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return 0, s.err
	}
	s.next++
	seq := s.next
	hook := s.onAppend
	s.mu.Unlock()
	if hook != nil {
		hook(seq)
	}
	return seq, nil
}

func presenceRecord(t *testing.T, seq, writtenAt int64, userID string, online bool) types.EventRecord {
	t.Helper()
	rec := record(t, seq, types.KindPresence, userID, userID, types.PresencePayload{Online: online})
	rec.WrittenAt = writtenAt
	return rec
}

func TestPresenceOrdersBySeqNotWrittenAt(t *testing.T) {
	presence := NewPresenceRegistry(nopSink{})

	presence.Observe(presenceRecord(t, 5, 1000, "alice", true), types.PresencePayload{Online: true})
	presence.Observe(presenceRecord(t, 6, 999, "alice", false), types.PresencePayload{Online: false})

	if presence.IsOnline("alice") {
		t.Fatalf("later sequence id should win even with an earlier clock")
	}
	entry, _ := presence.Entry("alice")
	if entry.LastSeenAt != 1000 {
		t.Fatalf("last seen should keep the newest stamp, got %d", entry.LastSeenAt)
	}
}

func TestPresenceIgnoresOlderSeq(t *testing.T) {
	presence := NewPresenceRegistry(nopSink{})

	presence.Observe(presenceRecord(t, 6, 1000, "alice", false), types.PresencePayload{Online: false})
	presence.Observe(presenceRecord(t, 5, 2000, "alice", true), types.PresencePayload{Online: true})

	if presence.IsOnline("alice") {
		t.Fatalf("older sequence id must not override a newer one")
	}
}

func TestPresenceLocalEchoIsIgnored(t *testing.T) {
	sink := &seqSink{next: 9}
	presence := NewPresenceRegistry(sink)

	if err := presence.SetOnline("alice", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	presence.Observe(presenceRecord(t, 10, 1, "alice", true), types.PresencePayload{Online: true})

	entry, _ := presence.Entry("alice")
	if !entry.Online || !entry.Local {
		t.Fatalf("own echo should leave the entry local and online, got %+v", entry)
	}
}

func TestPresenceLocalBeatsOlderForeignSeen(t *testing.T) {
	sink := &seqSink{next: 9}
	presence := NewPresenceRegistry(sink)
	// Another process went offline at seq 8, but its record is read only
	// while our own append (seq 10) is in flight.
	sink.onAppend = func(int64) {
		presence.Observe(presenceRecord(t, 8, 5000, "alice", false), types.PresencePayload{Online: false})
	}

	if err := presence.SetOnline("alice", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	if !presence.IsOnline("alice") {
		t.Fatalf("local change with the later sequence id should win")
	}
}

func TestPresenceNewerForeignSeenWhilePendingApplies(t *testing.T) {
	sink := &seqSink{next: 9}
	presence := NewPresenceRegistry(sink)
	sink.onAppend = func(seq int64) {
		presence.Observe(presenceRecord(t, seq+1, 1, "alice", false), types.PresencePayload{Online: false})
	}

	if err := presence.SetOnline("alice", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	entry, _ := presence.Entry("alice")
	if entry.Online || entry.Local {
		t.Fatalf("foreign record after ours should apply once the append returns, got %+v", entry)
	}
}

func TestPresenceKeepsLocalStateWhenAppendFails(t *testing.T) {
	sink := &seqSink{err: errors.New("disk full")}
	presence := NewPresenceRegistry(sink)

	if err := presence.SetOnline("alice", true); err == nil {
		t.Fatalf("expected publish error")
	}
	if !presence.IsOnline("alice") {
		t.Fatalf("local state should stay updated after a failed append")
	}
	if got := presence.LocallyOnline(); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("expected alice locally online, got %v", got)
	}
}

func TestPresenceInvalidateAllowsReapply(t *testing.T) {
	presence := NewPresenceRegistry(nopSink{})
	rec := presenceRecord(t, 3, 1, "alice", true)

	presence.Observe(rec, types.PresencePayload{Online: true})
	presence.Invalidate()
	if presence.IsOnline("alice") {
		t.Fatalf("expected alice unknown after invalidate")
	}
	presence.Observe(rec, types.PresencePayload{Online: true})
	if !presence.IsOnline("alice") {
		t.Fatalf("retained record should apply again after invalidate")
	}
}
