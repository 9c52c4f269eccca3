package chat

import (
	"sync"
	"time"
)

// TypingTimer owns the local "is typing" state of one user in one chat.
// The first keystroke publishes typing=true; every keystroke pushes the
// expiry back; expiry, a sent message or an explicit stop publishes
// typing=false exactly once.
type TypingTimer struct {
	mu      sync.Mutex
	expiry  time.Duration
	send    func(typing bool) error
	onError func(error)
	timer   *time.Timer
	typing  bool
	gen     uint64
}

// NewTypingTimer returns a timer that publishes through send.
func NewTypingTimer(expiry time.Duration, send func(typing bool) error) *TypingTimer {
	return &TypingTimer{expiry: expiry, send: send}
}

// OnError sets a handler for publish failures.
func (t *TypingTimer) OnError(fn func(error)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// Keystroke records input activity.
func (t *TypingTimer) Keystroke() {
	t.mu.Lock()
	started := !t.typing
	t.typing = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.expiry, func() { t.expire(gen) })
	t.mu.Unlock()

	if started {
		t.publish(true)
	}
}

// Stop ends typing immediately, e.g. when the message is sent.
func (t *TypingTimer) Stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	wasTyping := t.typing
	t.typing = false
	t.mu.Unlock()

	if wasTyping {
		t.publish(false)
	}
}

// Typing reports the local state.
func (t *TypingTimer) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

func (t *TypingTimer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	t.mu.Unlock()

	t.publish(false)
}

func (t *TypingTimer) publish(typing bool) {
	if err := t.send(typing); err != nil {
		t.mu.Lock()
		onError := t.onError
		t.mu.Unlock()
		if onError != nil {
			onError(err)
		}
	}
}
