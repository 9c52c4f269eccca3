package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/adamavenir/chatbus/internal/outbox"
	"github.com/adamavenir/chatbus/internal/types"
)

const membershipCacheSize = 1024

// Directory answers chat membership for relevance filtering.
type Directory interface {
	Participants(chatID string) ([]string, error)
}

// MessageLocator resolves the chat a message belongs to.
type MessageLocator interface {
	ChatOfMessage(messageID string) (string, error)
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Sessions      *SessionRegistry
	Presence      *PresenceRegistry
	Directory     Directory
	Executor      Executor
	MembershipTTL time.Duration
	// Rewarm rebuilds remote presence after Resync invalidates it.
	Rewarm func()
	Logger zerolog.Logger
}

// Dispatcher routes records to the listeners of relevant local sessions.
// Dispatch is called from the poller goroutine only; callbacks run on the executor.
type Dispatcher struct {
	sessions  *SessionRegistry
	presence  *PresenceRegistry
	directory Directory
	executor  Executor
	members   *expirable.LRU[string, map[string]bool]
	rewarm    func()
	logger    zerolog.Logger

	mu  sync.Mutex
	hwm int64
}

// NewDispatcher builds a dispatcher. A nil Directory makes every record
// relevant to every session.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		sessions:  cfg.Sessions,
		presence:  cfg.Presence,
		directory: cfg.Directory,
		executor:  cfg.Executor,
		rewarm:    cfg.Rewarm,
		logger:    cfg.Logger,
	}
	if cfg.Directory != nil && cfg.MembershipTTL > 0 {
		d.members = expirable.NewLRU[string, map[string]bool](membershipCacheSize, nil, cfg.MembershipTTL)
	}
	return d
}

// Seed sets the de-duplication high-water mark, normally to the cursor.
func (d *Dispatcher) Seed(seq int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq > d.hwm {
		d.hwm = seq
	}
}

// HighWater returns the highest sequence id dispatched or skipped.
func (d *Dispatcher) HighWater() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hwm
}

// Dispatch delivers one record. Records at or below the high-water mark are
// dropped. It reports whether the record was accepted.
func (d *Dispatcher) Dispatch(rec types.EventRecord) bool {
	if !d.advance(rec.Seq) {
		return false
	}

	call, chatID, err := d.callbackFor(rec)
	if err != nil {
		d.logger.Warn().Err(err).Int64("seq", rec.Seq).Str("kind", string(rec.Kind)).Msg("skipping undecodable payload")
		return true
	}

	handles := d.relevant(rec, chatID)
	if len(handles) == 0 {
		return true
	}
	d.executor.Post(func() {
		for _, h := range handles {
			d.invoke(h, rec.Seq, func() { call(h.Listener) })
		}
	})
	return true
}

// Skip moves the high-water mark past a record that could not be delivered.
func (d *Dispatcher) Skip(seq int64) {
	d.advance(seq)
}

// Resync handles missed events: remote presence becomes unknown and every
// resync-aware listener is told to re-fetch from the persistence layer.
func (d *Dispatcher) Resync(gap *outbox.GapError) {
	if gap != nil {
		d.advance(gap.To)
	}
	if d.presence != nil {
		d.presence.Invalidate()
		if d.rewarm != nil {
			d.rewarm()
		}
	}
	if d.members != nil {
		d.members.Purge()
	}
	handles := d.sessions.Sessions()
	d.executor.Post(func() {
		for _, h := range handles {
			resync, ok := h.Listener.(ResyncListener)
			if !ok {
				continue
			}
			d.invoke(h, 0, resync.OnResync)
		}
	})
}

func (d *Dispatcher) advance(seq int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seq <= d.hwm {
		return false
	}
	d.hwm = seq
	return true
}

// callbackFor decodes the payload on the poller goroutine and returns the
// listener call along with the chat the record belongs to, if any.
func (d *Dispatcher) callbackFor(rec types.EventRecord) (func(Listener), string, error) {
	switch rec.Kind {
	case types.KindMessage:
		payload, err := outbox.DecodePayload[types.MessagePayload](rec)
		if err != nil {
			return nil, "", err
		}
		msg := payload.Message
		return func(l Listener) { l.OnNewMessage(msg) }, rec.Target, nil
	case types.KindTyping:
		payload, err := outbox.DecodePayload[types.TypingPayload](rec)
		if err != nil {
			return nil, "", err
		}
		chatID, userID := types.SplitTarget(rec.Target)
		return func(l Listener) { l.OnTypingStatusChanged(chatID, userID, payload.Typing) }, chatID, nil
	case types.KindReadReceipt:
		payload, err := outbox.DecodePayload[types.ReadReceiptPayload](rec)
		if err != nil {
			return nil, "", err
		}
		chatID, userID := types.SplitTarget(rec.Target)
		return func(l Listener) { l.OnMessageRead(payload.MessageID, userID) }, chatID, nil
	case types.KindPresence:
		payload, err := outbox.DecodePayload[types.PresencePayload](rec)
		if err != nil {
			return nil, "", err
		}
		if d.presence != nil {
			d.presence.Observe(rec, payload)
		}
		userID := rec.Target
		return func(l Listener) { l.OnUserOnlineStatusChanged(userID, payload.Online) }, "", nil
	case types.KindProfileUpdate:
		userID := rec.Target
		return func(l Listener) { l.OnUserProfileUpdated(userID) }, "", nil
	}
	return nil, "", fmt.Errorf("unknown kind %q", rec.Kind)
}

func (d *Dispatcher) relevant(rec types.EventRecord, chatID string) []*SessionHandle {
	handles := d.sessions.Sessions()
	if len(handles) == 0 {
		return nil
	}

	var members map[string]bool
	if chatID != "" && d.directory != nil {
		var err error
		members, err = d.participants(chatID)
		if err != nil {
			d.logger.Warn().Err(err).Str("chat", chatID).Msg("membership lookup failed, delivering to all sessions")
			members = nil
		}
	}

	out := handles[:0]
	for _, h := range handles {
		if rec.Kind == types.KindMessage && h.UserID == rec.Origin {
			continue
		}
		if members != nil && !members[h.UserID] {
			continue
		}
		out = append(out, h)
	}
	return out
}

func (d *Dispatcher) participants(chatID string) (map[string]bool, error) {
	if d.members != nil {
		if members, ok := d.members.Get(chatID); ok {
			return members, nil
		}
	}
	ids, err := d.directory.Participants(chatID)
	if err != nil {
		return nil, err
	}
	members := make(map[string]bool, len(ids))
	for _, id := range ids {
		members[id] = true
	}
	if d.members != nil {
		d.members.Add(chatID, members)
	}
	return members, nil
}

// invoke runs one listener callback on the executor. Panics never escape:
// a handle unregistered mid-dispatch is stale and its failure is dropped.
func (d *Dispatcher) invoke(h *SessionHandle, seq int64, call func()) {
	if !d.sessions.Active(h) {
		d.logger.Debug().Str("handle", h.ID).Int64("seq", seq).Msg("skipping unregistered session")
		return
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if !d.sessions.Active(h) {
			stale := &StaleListenerError{HandleID: h.ID, UserID: h.UserID, Cause: r}
			d.logger.Debug().Err(stale).Int64("seq", seq).Msg("discarded stale listener failure")
			return
		}
		d.logger.Error().Str("handle", h.ID).Str("user", h.UserID).Int64("seq", seq).Msgf("listener panic: %v", r)
	}()
	call()
}
