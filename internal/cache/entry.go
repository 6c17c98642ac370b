package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotExist is returned by a Backend when no entry is stored
	ErrNotExist = errors.New("cache entry does not exist")
	// ErrCorrupt is returned by a Backend when a stored entry cannot be decoded
	ErrCorrupt = errors.New("cache entry is corrupt")
)

// Entry is one cached payload
type Entry struct {
	Kind      string
	Key       string
	Payload   []byte
	FetchedAt time.Time
	Source    string
}

// Backend persists entries. Implementations must make Write atomic with
// respect to concurrent Read calls.
type Backend interface {
	Read(ctx context.Context, kind, key string) (*Entry, error)
	Write(ctx context.Context, e *Entry, ttl time.Duration) error
	Delete(ctx context.Context, kind, key string) error
	DeleteKind(ctx context.Context, kind string) error
}

type entryHeader struct {
	Kind      string    `json:"kind"`
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
	Size      int       `json:"size"`
}

// encodeEntry writes a one-line JSON header followed by the raw payload so
// the payload comes back byte-exact.
func encodeEntry(e *Entry) ([]byte, error) {
	header, err := json.Marshal(entryHeader{
		Kind:      e.Kind,
		Key:       e.Key,
		FetchedAt: e.FetchedAt.UTC(),
		Source:    e.Source,
		Size:      len(e.Payload),
	})
	if err != nil {
		return nil, fmt.Errorf("encode cache header: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(header) + 1 + len(e.Payload))
	buf.Write(header)
	buf.WriteByte('\n')
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	line, payload, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return nil, fmt.Errorf("%w: missing header", ErrCorrupt)
	}
	var h entryHeader
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if h.Size != len(payload) {
		return nil, fmt.Errorf("%w: truncated payload (%d of %d bytes)", ErrCorrupt, len(payload), h.Size)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not JSON", ErrCorrupt)
	}
	return &Entry{
		Kind:      h.Kind,
		Key:       h.Key,
		Payload:   payload,
		FetchedAt: h.FetchedAt,
		Source:    h.Source,
	}, nil
}
