package outbox

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"syscall"
	"time"
)

type seqFile struct {
	Seq       int64 `json:"seq"`
	UpdatedAt int64 `json:"updated_at"`
}

// nextSequence reserves the next sequence id. The exclusive lock covers only
// the counter's read-modify-write, never the record publish.
func (s *Store) nextSequence() (int64, error) {
	file, err := os.OpenFile(s.root.SeqPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		return 0, err
	}
	defer syscall.Flock(int(file.Fd()), syscall.LOCK_UN)

	data, err := io.ReadAll(file)
	if err != nil {
		return 0, err
	}

	current, ok := parseSeqFile(data)
	if !ok {
		recovered, err := s.Head()
		if err != nil {
			return 0, err
		}
		current = recovered
	}

	next := current + 1
	encoded, err := json.Marshal(seqFile{Seq: next, UpdatedAt: time.Now().UnixMilli()})
	if err != nil {
		return 0, err
	}
	encoded = append(encoded, '\n')

	if _, err := file.Seek(0, 0); err != nil {
		return 0, err
	}
	if err := file.Truncate(0); err != nil {
		return 0, err
	}
	if _, err := file.Write(encoded); err != nil {
		return 0, err
	}
	if err := file.Sync(); err != nil {
		return 0, err
	}
	return next, nil
}

func parseSeqFile(data []byte) (int64, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return 0, false
	}
	var record seqFile
	if err := json.Unmarshal(data, &record); err != nil {
		return 0, false
	}
	if record.Seq < 0 {
		return 0, false
	}
	return record.Seq, true
}
