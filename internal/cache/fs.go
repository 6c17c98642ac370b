package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FSBackend stores one file per entry under <root>/<kind>/<key>.json
type FSBackend struct {
	root string
}

// NewFSBackend creates the root directory if needed
func NewFSBackend(root string) (*FSBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", root, err)
	}
	return &FSBackend{root: root}, nil
}

// Root returns the cache directory
func (b *FSBackend) Root() string {
	return b.root
}

// Path returns the file an entry is stored in
func (b *FSBackend) Path(kind, key string) string {
	return filepath.Join(b.root, sanitize(kind), sanitize(key)+".json")
}

func (b *FSBackend) Read(_ context.Context, kind, key string) (*Entry, error) {
	data, err := os.ReadFile(b.Path(kind, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	return decodeEntry(data)
}

// Write replaces the entry file atomically: readers see the old file or
// the new one, never a partial write.
func (b *FSBackend) Write(_ context.Context, e *Entry, _ time.Duration) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	return WriteFileAtomic(b.Path(e.Kind, e.Key), data)
}

func (b *FSBackend) Delete(_ context.Context, kind, key string) error {
	err := os.Remove(b.Path(kind, key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotExist
	}
	return err
}

func (b *FSBackend) DeleteKind(_ context.Context, kind string) error {
	return os.RemoveAll(filepath.Join(b.root, sanitize(kind)))
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
