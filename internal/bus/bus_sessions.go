package bus

import (
	"sync"

	"github.com/google/uuid"
)

// SessionHandle is one registered UI session. The UI owns it and must
// unregister it before discarding it.
type SessionHandle struct {
	ID       string
	UserID   string
	Listener Listener
}

// SessionRegistry tracks the sessions registered in this process.
// A user may have several handles (multi-window); all receive the same events.
type SessionRegistry struct {
	mu      sync.RWMutex
	handles []*SessionHandle
	byID    map[string]*SessionHandle
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byID: make(map[string]*SessionHandle)}
}

// Register adds a session for userID.
func (r *SessionRegistry) Register(userID string, listener Listener) *SessionHandle {
	handle := &SessionHandle{
		ID:       uuid.NewString(),
		UserID:   userID,
		Listener: listener,
	}
	r.mu.Lock()
	r.handles = append(r.handles, handle)
	r.byID[handle.ID] = handle
	r.mu.Unlock()
	return handle
}

// Unregister removes a handle. It reports whether the handle was registered.
func (r *SessionRegistry) Unregister(handle *SessionHandle) bool {
	if handle == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[handle.ID]; !ok {
		return false
	}
	delete(r.byID, handle.ID)
	r.handles = removeHandles(r.handles, func(h *SessionHandle) bool { return h.ID == handle.ID })
	return true
}

// UnregisterUser removes every handle of userID under a single lock
// acquisition and returns the removed handles.
func (r *SessionRegistry) UnregisterUser(userID string) []*SessionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*SessionHandle
	for _, h := range r.handles {
		if h.UserID == userID {
			removed = append(removed, h)
			delete(r.byID, h.ID)
		}
	}
	if len(removed) > 0 {
		r.handles = removeHandles(r.handles, func(h *SessionHandle) bool { return h.UserID == userID })
	}
	return removed
}

// Sessions returns a snapshot of the registered handles in registration order.
func (r *SessionRegistry) Sessions() []*SessionHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SessionHandle, len(r.handles))
	copy(out, r.handles)
	return out
}

// Active reports whether the handle is still registered.
func (r *SessionRegistry) Active(handle *SessionHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[handle.ID]
	return ok
}

// Users returns the distinct user ids with at least one session.
func (r *SessionRegistry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var users []string
	for _, h := range r.handles {
		if !seen[h.UserID] {
			seen[h.UserID] = true
			users = append(users, h.UserID)
		}
	}
	return users
}

func removeHandles(handles []*SessionHandle, match func(*SessionHandle) bool) []*SessionHandle {
	kept := handles[:0:0]
	for _, h := range handles {
		if !match(h) {
			kept = append(kept, h)
		}
	}
	return kept
}
