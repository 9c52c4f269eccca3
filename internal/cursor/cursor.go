package cursor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/adamavenir/chatbus/internal/core"
)

// State is the persisted bookmark of one process.
type State struct {
	ProcessID string `json:"process_id"`
	LastSeq   int64  `json:"last_seq"`
	UpdatedAt int64  `json:"updated_at"`
}

// Tracker persists the last processed sequence id of one process.
type Tracker struct {
	path      string
	processID string

	mu     sync.Mutex
	loaded bool
	last   int64
}

// NewTracker returns the tracker for processID under the root's cursor directory.
func NewTracker(root core.Root, processID string) *Tracker {
	return &Tracker{
		path:      filepath.Join(root.CursorsDir(), processID+".json"),
		processID: processID,
	}
}

// ProcessID returns the identity the cursor is stored under.
func (t *Tracker) ProcessID() string {
	return t.processID
}

// Path returns the cursor file location.
func (t *Tracker) Path() string {
	return t.path
}

// Load returns the persisted sequence id, or 0 if none was persisted.
func (t *Tracker) Load() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked()
}

// Exists reports whether a cursor has been persisted for this process.
func (t *Tracker) Exists() bool {
	_, err := os.Stat(t.path)
	return err == nil
}

// AdvanceTo persists seq unless it would move the cursor backwards. The
// persisted value is re-read under an exclusive lock, so several trackers
// sharing one process id never regress it.
func (t *Tracker) AdvanceTo(seq int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loaded && seq <= t.last {
		return nil
	}
	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()

	state, _, err := t.Read()
	if err != nil {
		return err
	}
	if seq <= state.LastSeq {
		t.last = state.LastSeq
		t.loaded = true
		return nil
	}
	if err := t.write(seq); err != nil {
		return err
	}
	t.last = seq
	t.loaded = true
	return nil
}

// Reset overwrites the cursor, including moving it backwards.
// Only operator tooling should call it, never a running poller.
func (t *Tracker) Reset(seq int64) error {
	if seq < 0 {
		return fmt.Errorf("reset cursor: negative sequence %d", seq)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()
	if err := t.write(seq); err != nil {
		return err
	}
	t.last = seq
	t.loaded = true
	return nil
}

// Read returns the full persisted state, if any.
func (t *Tracker) Read() (State, bool, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{ProcessID: t.processID}, false, nil
		}
		return State{}, false, fmt.Errorf("read cursor: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("parse cursor %s: %w", t.path, err)
	}
	return state, true, nil
}

func (t *Tracker) loadLocked() (int64, error) {
	if t.loaded {
		return t.last, nil
	}
	state, _, err := t.Read()
	if err != nil {
		return 0, err
	}
	t.last = state.LastSeq
	t.loaded = true
	return t.last, nil
}

// lock takes an exclusive flock on a sidecar file for the cursor's
// read-modify-write. The cursor file itself is replaced by rename, so it
// cannot carry the lock.
func (t *Tracker) lock() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return nil, fmt.Errorf("lock cursor: %w", err)
	}
	file, err := os.OpenFile(t.path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock cursor: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("lock cursor: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
	}, nil
}

func (t *Tracker) write(seq int64) error {
	data, err := json.MarshalIndent(State{
		ProcessID: t.processID,
		LastSeq:   seq,
		UpdatedAt: time.Now().UnixMilli(),
	}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp := fmt.Sprintf("%s.%d.tmp", t.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}
