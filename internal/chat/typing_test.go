package chat

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type typingLog struct {
	mu     sync.Mutex
	events []bool
}

func (l *typingLog) send(typing bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, typing)
	return nil
}

func (l *typingLog) snapshot() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.events...)
}

func waitForEvents(t *testing.T, log *typingLog, n int) []bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := log.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d typing events, got %v", n, log.snapshot())
	return nil
}

func TestTypingTimerExpires(t *testing.T) {
	log := &typingLog{}
	timer := NewTypingTimer(30*time.Millisecond, log.send)

	timer.Keystroke()
	if !timer.Typing() {
		t.Fatal("expected typing after keystroke")
	}
	events := waitForEvents(t, log, 2)
	if events[0] != true || events[1] != false {
		t.Fatalf("unexpected events %v", events)
	}
	if timer.Typing() {
		t.Fatal("expected typing to expire")
	}

	time.Sleep(60 * time.Millisecond)
	if got := log.snapshot(); len(got) != 2 {
		t.Fatalf("expected no further events, got %v", got)
	}
}

func TestTypingTimerKeystrokesExtend(t *testing.T) {
	log := &typingLog{}
	timer := NewTypingTimer(200*time.Millisecond, log.send)

	for i := 0; i < 5; i++ {
		timer.Keystroke()
		time.Sleep(20 * time.Millisecond)
	}
	if got := log.snapshot(); len(got) != 1 || got[0] != true {
		t.Fatalf("expected a single typing=true while active, got %v", got)
	}
	events := waitForEvents(t, log, 2)
	if events[1] != false {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestTypingTimerStopPublishesOnce(t *testing.T) {
	log := &typingLog{}
	timer := NewTypingTimer(30*time.Millisecond, log.send)

	timer.Keystroke()
	timer.Stop()
	timer.Stop()
	time.Sleep(60 * time.Millisecond)

	got := log.snapshot()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected true then false once, got %v", got)
	}
}

func TestTypingTimerStopWithoutTyping(t *testing.T) {
	log := &typingLog{}
	timer := NewTypingTimer(time.Second, log.send)
	timer.Stop()
	if got := log.snapshot(); len(got) != 0 {
		t.Fatalf("expected no events, got %v", got)
	}
}

func TestTypingTimerReportsErrors(t *testing.T) {
	failure := errors.New("outbox gone")
	timer := NewTypingTimer(time.Second, func(bool) error { return failure })

	var got error
	timer.OnError(func(err error) { got = err })
	timer.Keystroke()
	timer.Stop()

	if !errors.Is(got, failure) {
		t.Fatalf("expected publish error, got %v", got)
	}
}
