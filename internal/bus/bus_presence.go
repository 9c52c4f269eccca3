package bus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adamavenir/chatbus/internal/outbox"
	"github.com/adamavenir/chatbus/internal/types"
)

// PresenceRegistry is the process-wide view of who is online. Reads never
// touch the outbox; they may lag other processes by one poll interval.
// Records are ordered by sequence id; WrittenAt only feeds LastSeenAt.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]*presenceState
	sink    Sink
	now     func() time.Time
}

type presenceState struct {
	entry types.PresenceEntry
	// seq is the sequence id of the record the entry reflects.
	seq int64
	// pending counts local changes whose append has not returned yet.
	pending int
	// deferred holds the newest foreign record seen while pending.
	deferred *observedPresence
}

type observedPresence struct {
	seq       int64
	online    bool
	writtenAt int64
}

// NewPresenceRegistry returns a registry that publishes through sink.
func NewPresenceRegistry(sink Sink) *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]*presenceState),
		sink:    sink,
		now:     time.Now,
	}
}

// SetOnline updates the local entry, then appends a PRESENCE record so other
// processes converge. If the append fails the local state stays updated and
// the error is returned. Foreign records observed before the append returns
// are held back and applied only if they carry a later sequence id.
func (r *PresenceRegistry) SetOnline(userID string, online bool) error {
	now := r.now().UnixMilli()
	r.mu.Lock()
	state := r.stateLocked(userID)
	state.entry.Online = online
	state.entry.Local = true
	if now > state.entry.LastSeenAt {
		state.entry.LastSeenAt = now
	}
	state.pending++
	r.mu.Unlock()

	rec, err := outbox.NewRecord(types.KindPresence, userID, userID, types.PresencePayload{Online: online})
	var seq int64
	if err == nil {
		rec.WrittenAt = now
		seq, err = r.sink.Append(rec)
	}

	r.mu.Lock()
	state.pending--
	if err == nil && seq > state.seq {
		state.seq = seq
	}
	if state.pending == 0 && state.deferred != nil {
		deferred := state.deferred
		state.deferred = nil
		if deferred.seq > state.seq {
			state.apply(*deferred)
		}
	}
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("publish presence for %s: %w", userID, err)
	}
	return nil
}

// IsOnline reports the last known state. Unknown users are offline.
func (r *PresenceRegistry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.entries[userID]
	return ok && state.entry.Online
}

// Entry returns a copy of a user's entry.
func (r *PresenceRegistry) Entry(userID string) (types.PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.entries[userID]
	if !ok {
		return types.PresenceEntry{UserID: userID}, false
	}
	return state.entry, true
}

// Snapshot returns every known entry ordered by user id.
func (r *PresenceRegistry) Snapshot() []types.PresenceEntry {
	r.mu.RLock()
	out := make([]types.PresenceEntry, 0, len(r.entries))
	for _, state := range r.entries {
		out = append(out, state.entry)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Invalidate marks every entry this process did not set itself as offline
// and forgets which record it came from, so retained records can be applied
// again. Entries are never removed.
func (r *PresenceRegistry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, state := range r.entries {
		if state.entry.Local {
			continue
		}
		state.entry.Online = false
		state.seq = 0
		state.deferred = nil
	}
}

// LocallyOnline returns the users this process set online and has not set offline.
func (r *PresenceRegistry) LocallyOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []string
	for _, state := range r.entries {
		if state.entry.Local && state.entry.Online {
			users = append(users, state.entry.UserID)
		}
	}
	sort.Strings(users)
	return users
}

// Observe applies a PRESENCE record read from the outbox. Records at or below
// the sequence id the entry already reflects are ignored, which includes the
// echo of this process's own change.
func (r *PresenceRegistry) Observe(rec types.EventRecord, payload types.PresencePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.stateLocked(rec.Target)
	if rec.Seq <= state.seq {
		return
	}
	obs := observedPresence{seq: rec.Seq, online: payload.Online, writtenAt: rec.WrittenAt}
	if state.pending > 0 {
		if state.deferred == nil || obs.seq > state.deferred.seq {
			state.deferred = &obs
		}
		return
	}
	state.apply(obs)
}

func (s *presenceState) apply(obs observedPresence) {
	s.seq = obs.seq
	s.entry.Online = obs.online
	s.entry.Local = false
	if obs.writtenAt > s.entry.LastSeenAt {
		s.entry.LastSeenAt = obs.writtenAt
	}
}

func (r *PresenceRegistry) stateLocked(userID string) *presenceState {
	state, ok := r.entries[userID]
	if !ok {
		state = &presenceState{entry: types.PresenceEntry{UserID: userID}}
		r.entries[userID] = state
	}
	return state
}
