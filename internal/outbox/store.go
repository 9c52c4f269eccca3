package outbox

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adamavenir/chatbus/internal/core"
	"github.com/adamavenir/chatbus/internal/types"
)

// DefaultGapTimeout is how long a missing sequence id is assumed to be
// mid-publish before readers give up on it.
const DefaultGapTimeout = 5 * time.Second

// Options configure a Store.
type Options struct {
	GapTimeout time.Duration
}

// Store is the shared, append-only, multi-writer outbox: one file per
// record under <root>/events, published by rename from <root>/tmp.
type Store struct {
	root       core.Root
	gapTimeout time.Duration
	now        func() time.Time
}

// Open returns a store over an existing root.
func Open(root core.Root, opts Options) *Store {
	if opts.GapTimeout <= 0 {
		opts.GapTimeout = DefaultGapTimeout
	}
	return &Store{
		root:       root,
		gapTimeout: opts.GapTimeout,
		now:        time.Now,
	}
}

// Root returns the storage root the store operates on.
func (s *Store) Root() core.Root {
	return s.root
}

// Append assigns the next sequence id to rec and publishes it atomically.
// Failures are returned as *IoError and are not retried.
func (s *Store) Append(rec types.EventRecord) (int64, error) {
	if !rec.Kind.Valid() {
		return 0, fmt.Errorf("append: unknown kind %q", rec.Kind)
	}

	seq, err := s.nextSequence()
	if err != nil {
		return 0, &IoError{Op: "reserve", Path: s.root.SeqPath(), Err: err}
	}
	rec.Seq = seq
	if rec.WrittenAt == 0 {
		rec.WrittenAt = s.now().UnixMilli()
	}

	data, err := Encode(rec)
	if err != nil {
		return 0, err
	}

	final := filepath.Join(s.root.EventsDir(), recordName(seq))
	tmp := filepath.Join(s.root.TmpDir(), fmt.Sprintf("%s.%d.tmp", recordName(seq), os.Getpid()))
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return 0, &IoError{Op: "write", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return 0, &IoError{Op: "publish", Path: final, Err: err}
	}
	return seq, nil
}

// ReadFrom yields every readable record with a sequence id greater than
// after, in order. The sequence is finite and can be ranged over again.
//
// A record that cannot be read yet ends the iteration quietly so the next
// poll retries it. Malformed records yield *CorruptRecordError, missing
// ranges older than the gap timeout yield *GapError, and a failure to list
// the outbox yields *IoError.
func (s *Store) ReadFrom(after int64) iter.Seq2[types.EventRecord, error] {
	return func(yield func(types.EventRecord, error) bool) {
		seqs, err := s.list()
		if err != nil {
			yield(types.EventRecord{}, err)
			return
		}

		start := sort.Search(len(seqs), func(i int) bool { return seqs[i] > after })
		expected := after + 1
		for _, seq := range seqs[start:] {
			path := filepath.Join(s.root.EventsDir(), recordName(seq))
			if seq > expected {
				info, err := os.Stat(path)
				if err != nil {
					return
				}
				if s.now().Sub(info.ModTime()) < s.gapTimeout {
					return
				}
				if !yield(types.EventRecord{}, &GapError{From: expected, To: seq - 1}) {
					return
				}
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return
			}
			rec, err := Decode(data)
			if err == nil && rec.Seq != seq {
				err = fmt.Errorf("sequence mismatch: file %d, record %d", seq, rec.Seq)
			}
			if err != nil {
				if !yield(types.EventRecord{Seq: seq}, &CorruptRecordError{Seq: seq, Path: path, Err: err}) {
					return
				}
			} else if !yield(rec, nil) {
				return
			}
			expected = seq + 1
		}
	}
}

// Head returns the highest published sequence id, or 0 for an empty outbox.
func (s *Store) Head() (int64, error) {
	seqs, err := s.list()
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, nil
	}
	return seqs[len(seqs)-1], nil
}

// Oldest returns the lowest retained sequence id, or 0 for an empty outbox.
func (s *Store) Oldest() (int64, error) {
	seqs, err := s.list()
	if err != nil {
		return 0, err
	}
	if len(seqs) == 0 {
		return 0, nil
	}
	return seqs[0], nil
}

// CheckRoot reports ErrRootMissing when the storage root or its events
// directory is gone.
func (s *Store) CheckRoot() error {
	for _, dir := range []string{s.root.Path, s.root.EventsDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrRootMissing, dir)
			}
			return &IoError{Op: "stat", Path: dir, Err: err}
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrRootMissing, dir)
		}
	}
	return nil
}

func (s *Store) list() ([]int64, error) {
	entries, err := os.ReadDir(s.root.EventsDir())
	if err != nil {
		return nil, &IoError{Op: "list", Path: s.root.EventsDir(), Err: err}
	}
	seqs := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if seq, ok := parseRecordName(entry.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
