package outbox

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/adamavenir/chatbus/internal/types"
)

// CodecVersion is the on-disk record format version.
const CodecVersion = 1

const (
	recordExt   = ".json"
	recordWidth = 20
)

type wireRecord struct {
	V int `json:"v"`
	types.EventRecord
}

// Encode serializes a record to its on-disk form.
func Encode(rec types.EventRecord) ([]byte, error) {
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("encode record: unknown kind %q", rec.Kind)
	}
	data, err := json.Marshal(wireRecord{V: CodecVersion, EventRecord: rec})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses an on-disk record. Any structural problem is an error;
// callers surface it as a CorruptRecordError.
func Decode(data []byte) (types.EventRecord, error) {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return types.EventRecord{}, err
	}
	if wire.V != CodecVersion {
		return types.EventRecord{}, fmt.Errorf("unsupported record version %d", wire.V)
	}
	if wire.Seq <= 0 {
		return types.EventRecord{}, fmt.Errorf("missing sequence id")
	}
	if !wire.Kind.Valid() {
		return types.EventRecord{}, fmt.Errorf("unknown kind %q", wire.Kind)
	}
	return wire.EventRecord, nil
}

// DecodePayload unmarshals the kind-specific payload of a record.
func DecodePayload[T any](rec types.EventRecord) (T, error) {
	var payload T
	if len(rec.Payload) == 0 {
		return payload, fmt.Errorf("record %d: empty %s payload", rec.Seq, rec.Kind)
	}
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return payload, fmt.Errorf("record %d: decode %s payload: %w", rec.Seq, rec.Kind, err)
	}
	return payload, nil
}

// NewRecord builds an unsequenced record with a marshaled payload.
// A nil payload produces a record without one.
func NewRecord(kind types.EventKind, origin, target string, payload any) (types.EventRecord, error) {
	rec := types.EventRecord{Kind: kind, Origin: origin, Target: target}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return rec, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		rec.Payload = raw
	}
	return rec, nil
}

func recordName(seq int64) string {
	return fmt.Sprintf("%0*d%s", recordWidth, seq, recordExt)
}

func parseRecordName(name string) (int64, bool) {
	if !strings.HasSuffix(name, recordExt) {
		return 0, false
	}
	base := strings.TrimSuffix(name, recordExt)
	if len(base) != recordWidth {
		return 0, false
	}
	seq, err := strconv.ParseInt(base, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}
