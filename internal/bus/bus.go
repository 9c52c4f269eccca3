package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamavenir/chatbus/internal/outbox"
	"github.com/adamavenir/chatbus/internal/types"
)

// Config holds bus timing and retention settings.
type Config struct {
	PollInterval    time.Duration
	Retention       time.Duration
	PurgeEvery      int
	MaxReadFailures int
	MembershipTTL   time.Duration
	ShutdownTimeout time.Duration
	Watch           bool
	ReplayFromStart bool
}

// DefaultConfig returns default bus configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    250 * time.Millisecond,
		Retention:       24 * time.Hour,
		PurgeEvery:      240,
		MaxReadFailures: 5,
		MembershipTTL:   5 * time.Second,
		ShutdownTimeout: 500 * time.Millisecond,
		Watch:           true,
	}
}

// Options are the collaborators of a Bus.
type Options struct {
	Config    Config
	Outbox    Outbox
	Cursor    CursorStore
	Directory Directory
	// Executor runs listener callbacks. When nil the bus owns a UIQueue.
	Executor Executor
	// WatchDir is the directory the nudge watcher observes.
	WatchDir string
	Logger   *zerolog.Logger
	// OnDegraded is posted to the executor once if realtime delivery stops.
	OnDegraded func(err error)
}

// Bus is the per-process event bus. Build one with New and pass it to
// every service that needs it.
type Bus struct {
	cfg        Config
	outbox     Outbox
	cursor     CursorStore
	directory  Directory
	executor   Executor
	ownedQueue *UIQueue
	watchDir   string
	logger     zerolog.Logger

	sessions   *SessionRegistry
	presence   *PresenceRegistry
	dispatcher *Dispatcher
	poller     *Poller
	watcher    *nudgeWatcher

	closeOnce sync.Once
}

// New builds a bus. Nothing runs until Start.
func New(opts Options) (*Bus, error) {
	if opts.Outbox == nil {
		return nil, errors.New("bus: outbox is required")
	}
	if opts.Cursor == nil {
		return nil, errors.New("bus: cursor store is required")
	}
	cfg := opts.Config
	defaults := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.MaxReadFailures <= 0 {
		cfg.MaxReadFailures = defaults.MaxReadFailures
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	b := &Bus{
		cfg:       cfg,
		outbox:    opts.Outbox,
		cursor:    opts.Cursor,
		directory: opts.Directory,
		executor:  opts.Executor,
		watchDir:  opts.WatchDir,
		logger:    logger,
		sessions:  NewSessionRegistry(),
		presence:  NewPresenceRegistry(opts.Outbox),
	}
	if b.executor == nil {
		b.ownedQueue = NewUIQueue()
		b.executor = b.ownedQueue
	}

	b.dispatcher = NewDispatcher(DispatcherConfig{
		Sessions:      b.sessions,
		Presence:      b.presence,
		Directory:     opts.Directory,
		Executor:      b.executor,
		MembershipTTL: cfg.MembershipTTL,
		Rewarm:        b.WarmPresence,
		Logger:        logger.With().Str("component", "dispatcher").Logger(),
	})

	onDegraded := opts.OnDegraded
	b.poller = NewPoller(PollerConfig{
		Source:          opts.Outbox,
		Cursor:          opts.Cursor,
		Handler:         b.dispatcher,
		Interval:        cfg.PollInterval,
		MaxReadFailures: cfg.MaxReadFailures,
		Retention:       cfg.Retention,
		PurgeEvery:      cfg.PurgeEvery,
		Logger:          logger.With().Str("component", "poller").Logger(),
		OnDegraded: func(err error) {
			if onDegraded != nil {
				b.executor.Post(func() { onDegraded(err) })
			}
		},
	})
	return b, nil
}

// Start warms presence from the retained outbox, seeds the cursor and
// launches the poller.
func (b *Bus) Start(ctx context.Context) error {
	if err := b.outbox.CheckRoot(); err != nil {
		return err
	}
	b.WarmPresence()

	if !b.cursor.Exists() && !b.cfg.ReplayFromStart {
		head, err := b.outbox.Head()
		if err != nil {
			return fmt.Errorf("read outbox head: %w", err)
		}
		if err := b.cursor.AdvanceTo(head); err != nil {
			return fmt.Errorf("seed cursor: %w", err)
		}
	}
	position, err := b.cursor.Load()
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	b.dispatcher.Seed(position)

	if err := b.poller.Start(ctx); err != nil {
		return err
	}

	if b.cfg.Watch && b.watchDir != "" {
		watcher, err := startNudgeWatcher(b.watchDir, b.poller.Nudge, b.logger)
		if err != nil {
			b.logger.Warn().Err(err).Str("dir", b.watchDir).Msg("outbox watcher unavailable, polling only")
		} else {
			b.watcher = watcher
		}
	}
	b.logger.Debug().Int64("cursor", position).Dur("interval", b.cfg.PollInterval).Msg("bus started")
	return nil
}

// WarmPresence replays retained PRESENCE records into the registry without
// dispatching them, so presence is known before the first poll. It also
// rebuilds remote presence after a resync.
func (b *Bus) WarmPresence() {
	oldest, err := b.outbox.Oldest()
	if err != nil {
		b.logger.Debug().Err(err).Msg("warm presence")
		return
	}
	from := max(oldest-1, 0)
	for rec, err := range b.outbox.ReadFrom(from) {
		if err != nil || rec.Kind != types.KindPresence {
			continue
		}
		payload, err := outbox.DecodePayload[types.PresencePayload](rec)
		if err != nil {
			continue
		}
		b.presence.Observe(rec, payload)
	}
}

// Close sets this process's users offline, bounded by the shutdown
// timeout, then stops polling. It never blocks exit on a failing outbox.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.goOffline(ctx)
		b.poller.Stop()
		if b.watcher != nil {
			if err := b.watcher.Close(); err != nil {
				b.logger.Debug().Err(err).Msg("close outbox watcher")
			}
		}
		if b.ownedQueue != nil {
			b.ownedQueue.Close()
		}
	})
	return nil
}

func (b *Bus) goOffline(ctx context.Context) {
	users := b.presence.LocallyOnline()
	if len(users) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ShutdownTimeout)
	defer cancel()

	// Best effort: on timeout the goroutine is abandoned and may still
	// publish after Close returns, or die with the process.
	var published atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, user := range users {
			if err := b.presence.SetOnline(user, false); err != nil {
				b.logger.Warn().Err(err).Str("user", user).Msg("offline on shutdown failed")
			}
			published.Add(1)
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		pending := users[min(int(published.Load()), len(users)):]
		b.logger.Warn().Strs("pending", pending).Msg("offline on shutdown timed out")
	}
}

// Done is closed when the poller has exited, by Close or by degradation.
func (b *Bus) Done() <-chan struct{} {
	return b.poller.Done()
}

// Position returns the sequence id the poller has advanced to.
func (b *Bus) Position() int64 {
	return b.poller.Position()
}

// Presence returns the process-wide presence registry.
func (b *Bus) Presence() *PresenceRegistry {
	return b.presence
}

// Sessions returns the session registry.
func (b *Bus) Sessions() *SessionRegistry {
	return b.sessions
}

// BroadcastMessage publishes a new message to the message's chat.
func (b *Bus) BroadcastMessage(msg types.Message) error {
	return b.publish(types.KindMessage, msg.SenderID, msg.ChatID, types.MessagePayload{Message: msg})
}

// UpdateTypingStatus publishes a typing change for userID in chatID.
func (b *Bus) UpdateTypingStatus(chatID, userID string, typing bool) error {
	return b.publish(types.KindTyping, userID, types.CompositeTarget(chatID, userID), types.TypingPayload{Typing: typing})
}

// NotifyMessageRead publishes a read receipt. The chat is resolved through
// the directory when it can locate messages; otherwise the receipt is
// relevant to every session.
func (b *Bus) NotifyMessageRead(messageID, userID string) error {
	chatID := ""
	if locator, ok := b.directory.(MessageLocator); ok {
		resolved, err := locator.ChatOfMessage(messageID)
		if err != nil {
			b.logger.Warn().Err(err).Str("message", messageID).Msg("chat lookup failed for read receipt")
		} else {
			chatID = resolved
		}
	}
	return b.publish(types.KindReadReceipt, userID, types.CompositeTarget(chatID, userID), types.ReadReceiptPayload{MessageID: messageID})
}

// SetUserOnline updates local presence immediately and publishes it.
func (b *Bus) SetUserOnline(userID string, online bool) error {
	return b.presence.SetOnline(userID, online)
}

// BroadcastProfileUpdate tells other processes to re-fetch userID's profile.
func (b *Bus) BroadcastProfileUpdate(userID string) error {
	return b.publish(types.KindProfileUpdate, userID, userID, nil)
}

// RegisterSession adds a listener for userID.
func (b *Bus) RegisterSession(userID string, listener Listener) *SessionHandle {
	return b.sessions.Register(userID, listener)
}

// UnregisterSession removes a session handle.
func (b *Bus) UnregisterSession(handle *SessionHandle) {
	b.sessions.Unregister(handle)
}

// IsUserOnline reads local presence only.
func (b *Bus) IsUserOnline(userID string) bool {
	return b.presence.IsOnline(userID)
}

// Logout removes all of userID's sessions at once and sets the user offline.
func (b *Bus) Logout(userID string) error {
	b.sessions.UnregisterUser(userID)
	return b.presence.SetOnline(userID, false)
}

func (b *Bus) publish(kind types.EventKind, origin, target string, payload any) error {
	rec, err := outbox.NewRecord(kind, origin, target, payload)
	if err != nil {
		return err
	}
	if _, err := b.outbox.Append(rec); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
