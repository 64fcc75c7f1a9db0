package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Record layout: magic, created and accessed as Unix nanoseconds, payload
// length, payload. Integers are big endian.
var magic = []byte("SLC1")

const headerLen = 4 + 8 + 8 + 8

// Entry is one cached pipeline output.
type Entry struct {
	Key        string
	Payload    []byte
	CreatedAt  time.Time
	AccessedAt time.Time
}

// Size is the number of bytes the entry counts against the budget.
func (e *Entry) Size() int64 { return int64(len(e.Payload)) }

// CorruptionError reports a stored record that cannot be decoded.
type CorruptionError struct {
	Key    string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache entry %q is corrupt: %s", e.Key, e.Reason)
}

func encodeEntry(e *Entry) []byte {
	buf := make([]byte, headerLen+len(e.Payload))
	copy(buf, magic)
	binary.BigEndian.PutUint64(buf[4:], uint64(e.CreatedAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[12:], uint64(e.AccessedAt.UnixNano()))
	binary.BigEndian.PutUint64(buf[20:], uint64(len(e.Payload)))
	copy(buf[headerLen:], e.Payload)
	return buf
}

func decodeEntry(key string, raw []byte) (*Entry, error) {
	if len(raw) < headerLen {
		return nil, &CorruptionError{Key: key, Reason: fmt.Sprintf("record of %d bytes is shorter than its header", len(raw))}
	}
	if !bytes.Equal(raw[:4], magic) {
		return nil, &CorruptionError{Key: key, Reason: "bad magic"}
	}
	n := binary.BigEndian.Uint64(raw[20:])
	if n != uint64(len(raw)-headerLen) {
		return nil, &CorruptionError{Key: key, Reason: fmt.Sprintf("payload length %d does not match %d stored bytes", n, len(raw)-headerLen)}
	}
	return &Entry{
		Key:        key,
		Payload:    raw[headerLen:],
		CreatedAt:  time.Unix(0, int64(binary.BigEndian.Uint64(raw[4:]))),
		AccessedAt: time.Unix(0, int64(binary.BigEndian.Uint64(raw[12:]))),
	}, nil
}
