package outbox

import (
	"errors"
	"fmt"
)

// ErrRootMissing reports that the storage root no longer exists.
var ErrRootMissing = errors.New("outbox root missing")

// IoError reports that the outbox could not be written or listed.
// For producers it means the event was lost; the caller decides whether to retry.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("outbox %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// CorruptRecordError reports a published record that cannot be decoded.
// Readers skip it and may advance past Seq.
type CorruptRecordError struct {
	Seq  int64
	Path string
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record %d (%s): %v", e.Seq, e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// GapError reports a range of sequence ids that will never be readable,
// either because retention purged them or because their writer died
// between reserving the sequence and publishing the record.
type GapError struct {
	From int64
	To   int64
}

func (e *GapError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("outbox gap at %d", e.From)
	}
	return fmt.Sprintf("outbox gap %d..%d", e.From, e.To)
}
