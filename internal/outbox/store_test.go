package outbox

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/chatbus/internal/types"
)

func TestAppendAssignsIncreasingSequence(t *testing.T) {
	store := openTestStore(t)

	for i := int64(1); i <= 3; i++ {
		seq := appendMessage(t, store, "alice", "c1", "hello")
		if seq != i {
			t.Fatalf("expected seq %d, got %d", i, seq)
		}
	}

	head, err := store.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head != 3 {
		t.Fatalf("expected head 3, got %d", head)
	}

	entries, err := os.ReadDir(store.Root().TmpDir())
	if err != nil {
		t.Fatalf("read tmp: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty staging dir, got %d entries", len(entries))
	}
}

func TestAppendRejectsUnknownKind(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Append(types.EventRecord{Kind: "wave"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAppendFailsWhenRootUnwritable(t *testing.T) {
	store := openTestStore(t)
	if err := os.RemoveAll(store.Root().Path); err != nil {
		t.Fatalf("remove root: %v", err)
	}

	_, err := store.Append(types.EventRecord{Kind: types.KindPresence, Origin: "a", Target: "a"})
	var ioErr *IoError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IoError, got %v", err)
	}
}

func TestSequenceRecoversFromPublishedRecords(t *testing.T) {
	store := openTestStore(t)
	appendMessage(t, store, "alice", "c1", "one")
	appendMessage(t, store, "alice", "c1", "two")

	if err := os.WriteFile(store.Root().SeqPath(), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt seq: %v", err)
	}
	seq := appendMessage(t, store, "alice", "c1", "three")
	if seq != 3 {
		t.Fatalf("expected recovered seq 3, got %d", seq)
	}

	if err := os.Remove(store.Root().SeqPath()); err != nil {
		t.Fatalf("remove seq: %v", err)
	}
	seq = appendMessage(t, store, "alice", "c1", "four")
	if seq != 4 {
		t.Fatalf("expected recovered seq 4, got %d", seq)
	}
}

func TestConcurrentAppendsAreUniqueAndGapFree(t *testing.T) {
	store := openTestStore(t)
	const producers = 8
	const perProducer = 10

	var wg sync.WaitGroup
	seen := make(chan int64, producers*perProducer)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				rec, err := NewRecord(types.KindTyping, "u", types.CompositeTarget("c1", "u"), types.TypingPayload{Typing: true})
				if err != nil {
					t.Errorf("new record: %v", err)
					return
				}
				seq, err := store.Append(rec)
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				seen <- seq
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for seq := range seen {
		if unique[seq] {
			t.Fatalf("duplicate seq %d", seq)
		}
		unique[seq] = true
	}

	records, errs := collect(t, store, 0)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(records) != producers*perProducer {
		t.Fatalf("expected %d records, got %d", producers*perProducer, len(records))
	}
	for i, rec := range records {
		if rec.Seq != int64(i+1) {
			t.Fatalf("record %d has seq %d", i, rec.Seq)
		}
	}
}

func TestReadFromIsRestartable(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 5; i++ {
		appendMessage(t, store, "alice", "c1", "m")
	}

	seq := store.ReadFrom(2)
	for pass := 0; pass < 2; pass++ {
		var got []int64
		for rec, err := range seq {
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			got = append(got, rec.Seq)
		}
		if len(got) != 3 || got[0] != 3 || got[2] != 5 {
			t.Fatalf("pass %d: unexpected seqs %v", pass, got)
		}
	}

	records, _ := collect(t, store, 5)
	if len(records) != 0 {
		t.Fatalf("expected nothing after head, got %d", len(records))
	}
}

func TestReadFromReportsCorruptRecord(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 10; i++ {
		appendMessage(t, store, "alice", "c1", "m")
	}
	path := filepath.Join(store.Root().EventsDir(), recordName(5))
	if err := os.WriteFile(path, []byte(`{"v":1,"seq":5,"kind":`), 0o644); err != nil {
		t.Fatalf("corrupt record: %v", err)
	}

	var good []int64
	var corrupt []int64
	for rec, err := range store.ReadFrom(0) {
		var cErr *CorruptRecordError
		switch {
		case errors.As(err, &cErr):
			corrupt = append(corrupt, cErr.Seq)
			if rec.Seq != 5 {
				t.Fatalf("expected record seq 5 with corrupt error, got %d", rec.Seq)
			}
		case err != nil:
			t.Fatalf("unexpected error: %v", err)
		default:
			good = append(good, rec.Seq)
		}
	}
	if len(corrupt) != 1 || corrupt[0] != 5 {
		t.Fatalf("expected corrupt seq 5, got %v", corrupt)
	}
	if len(good) != 9 {
		t.Fatalf("expected 9 good records, got %v", good)
	}
}

func TestReadFromWaitsOnYoungGap(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 3; i++ {
		appendMessage(t, store, "alice", "c1", "m")
	}
	if err := os.Remove(filepath.Join(store.Root().EventsDir(), recordName(2))); err != nil {
		t.Fatalf("remove: %v", err)
	}

	records, errs := collect(t, store, 0)
	if len(errs) != 0 {
		t.Fatalf("expected no errors on a young gap, got %v", errs)
	}
	if len(records) != 1 || records[0].Seq != 1 {
		t.Fatalf("expected only seq 1, got %+v", records)
	}
}

func TestReadFromReportsExpiredGap(t *testing.T) {
	store := openTestStore(t)
	for i := 0; i < 4; i++ {
		appendMessage(t, store, "alice", "c1", "m")
	}
	for _, seq := range []int64{2, 3} {
		if err := os.Remove(filepath.Join(store.Root().EventsDir(), recordName(seq))); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}
	store.now = func() time.Time { return time.Now().Add(time.Minute) }

	var seqs []int64
	var gaps []*GapError
	for rec, err := range store.ReadFrom(0) {
		var gap *GapError
		if errors.As(err, &gap) {
			gaps = append(gaps, gap)
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seqs = append(seqs, rec.Seq)
	}
	if len(gaps) != 1 || gaps[0].From != 2 || gaps[0].To != 3 {
		t.Fatalf("expected gap 2..3, got %+v", gaps)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 4 {
		t.Fatalf("expected seqs 1 and 4, got %v", seqs)
	}
}

func TestReadFromListingFailure(t *testing.T) {
	store := openTestStore(t)
	if err := os.RemoveAll(store.Root().EventsDir()); err != nil {
		t.Fatalf("remove events: %v", err)
	}
	_, errs := collect(t, store, 0)
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	var ioErr *IoError
	if !errors.As(errs[0], &ioErr) {
		t.Fatalf("expected IoError, got %v", errs[0])
	}
	if err := store.CheckRoot(); !errors.Is(err, ErrRootMissing) {
		t.Fatalf("expected ErrRootMissing, got %v", err)
	}
}

func TestOldestFollowsPurge(t *testing.T) {
	store := openTestStore(t)
	if oldest, err := store.Oldest(); err != nil || oldest != 0 {
		t.Fatalf("expected 0 for an empty outbox, got %d (%v)", oldest, err)
	}
	for i := 0; i < 3; i++ {
		appendMessage(t, store, "alice", "c1", "m")
	}
	if err := os.Remove(filepath.Join(store.Root().EventsDir(), recordName(1))); err != nil {
		t.Fatalf("remove: %v", err)
	}
	oldest, err := store.Oldest()
	if err != nil {
		t.Fatalf("oldest: %v", err)
	}
	if oldest != 2 {
		t.Fatalf("expected oldest 2, got %d", oldest)
	}
}
