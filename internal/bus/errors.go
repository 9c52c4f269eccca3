package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrPollerRunning is returned when starting a poller that is already running.
	ErrPollerRunning = errors.New("poller already running")
	// ErrPollerStopped is returned when starting a poller that has been stopped.
	// A stopped poller cannot be restarted.
	ErrPollerStopped = errors.New("poller stopped")
)

// StaleListenerError reports a callback that failed after its session was
// unregistered. The dispatcher discards it.
type StaleListenerError struct {
	HandleID string
	UserID   string
	Cause    any
}

func (e *StaleListenerError) Error() string {
	return fmt.Sprintf("stale listener %s (user %s): %v", e.HandleID, e.UserID, e.Cause)
}
