package outbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Purge removes published records older than olderThan, always keeping the
// newest one so the head stays discoverable. Abandoned staging files past
// the same age are removed as well. Concurrent purges from several
// processes are safe: a record already removed by someone else is ignored.
func (s *Store) Purge(olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)

	seqs, err := s.list()
	if err != nil {
		return 0, err
	}

	removed := 0
	if len(seqs) > 1 {
		for _, seq := range seqs[:len(seqs)-1] {
			path := filepath.Join(s.root.EventsDir(), recordName(seq))
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				// Stop at the first young record. Later ones can be older when a
				// reserved sequence id was published late; a later pass gets them.
				break
			}
			if err := os.Remove(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return removed, &IoError{Op: "purge", Path: path, Err: err}
			}
			removed++
		}
	}

	entries, err := os.ReadDir(s.root.TmpDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return removed, nil
		}
		return removed, &IoError{Op: "list", Path: s.root.TmpDir(), Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		_ = os.Remove(filepath.Join(s.root.TmpDir(), entry.Name()))
	}
	return removed, nil
}
