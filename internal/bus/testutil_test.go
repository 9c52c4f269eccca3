package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/chatbus/internal/core"
	"github.com/adamavenir/chatbus/internal/cursor"
	"github.com/adamavenir/chatbus/internal/outbox"
	"github.com/adamavenir/chatbus/internal/types"
)

const testInterval = 10 * time.Millisecond

type mapDirectory struct {
	mu      sync.Mutex
	members map[string][]string
	chatOf  map[string]string
	calls   int
	err     error
}

func (d *mapDirectory) Participants(chatID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.members[chatID], nil
}

func (d *mapDirectory) ChatOfMessage(messageID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	chatID, ok := d.chatOf[messageID]
	if !ok {
		return "", fmt.Errorf("message %s not found", messageID)
	}
	return chatID, nil
}

type event struct {
	Kind    types.EventKind
	ChatID  string
	UserID  string
	Message types.Message
	ID      string
	Flag    bool
}

type recorder struct {
	mu       sync.Mutex
	events   []event
	resyncs  int
	panicOn  types.EventKind
	onResync func()
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.panicOn != "" && r.panicOn == e.Kind {
		panic("listener failure")
	}
}

func (r *recorder) OnNewMessage(msg types.Message) {
	r.add(event{Kind: types.KindMessage, ChatID: msg.ChatID, UserID: msg.SenderID, Message: msg})
}

func (r *recorder) OnTypingStatusChanged(chatID, userID string, typing bool) {
	r.add(event{Kind: types.KindTyping, ChatID: chatID, UserID: userID, Flag: typing})
}

func (r *recorder) OnMessageRead(messageID, userID string) {
	r.add(event{Kind: types.KindReadReceipt, UserID: userID, ID: messageID})
}

func (r *recorder) OnUserProfileUpdated(userID string) {
	r.add(event{Kind: types.KindProfileUpdate, UserID: userID})
}

func (r *recorder) OnUserOnlineStatusChanged(userID string, online bool) {
	r.add(event{Kind: types.KindPresence, UserID: userID, Flag: online})
}

func (r *recorder) OnResync() {
	r.mu.Lock()
	r.resyncs++
	r.mu.Unlock()
	if r.onResync != nil {
		r.onResync()
	}
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(kind types.EventKind) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) resyncCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resyncs
}

func newTestRoot(t *testing.T) core.Root {
	t.Helper()
	root, err := core.InitRoot(t.TempDir(), false)
	if err != nil {
		t.Fatalf("init root: %v", err)
	}
	return root
}

type testProcess struct {
	bus    *Bus
	queue  *UIQueue
	store  *outbox.Store
	cursor *cursor.Tracker
}

func newTestProcess(t *testing.T, root core.Root, processID string, dir Directory, mutate func(*Options)) *testProcess {
	t.Helper()
	store := outbox.Open(root, outbox.Options{})
	tracker := cursor.NewTracker(root, processID)
	queue := NewUIQueue()
	cfg := DefaultConfig()
	cfg.PollInterval = testInterval
	cfg.Watch = false
	opts := Options{
		Config:    cfg,
		Outbox:    store,
		Cursor:    tracker,
		Directory: dir,
		Executor:  queue,
		WatchDir:  root.EventsDir(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := New(opts)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	t.Cleanup(func() {
		_ = b.Close(context.Background())
		queue.Close()
	})
	return &testProcess{bus: b, queue: queue, store: store, cursor: tracker}
}

func (p *testProcess) start(t *testing.T) {
	t.Helper()
	if err := p.bus.Start(context.Background()); err != nil {
		t.Fatalf("start bus: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle waits a few poll intervals and drains the executor so negative
// assertions are meaningful.
func settle(p *testProcess) {
	time.Sleep(5 * testInterval)
	p.queue.Flush()
}
