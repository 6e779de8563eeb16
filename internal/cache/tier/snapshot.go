package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Snapshot persists the entry as a JSON file. It is only a cold-start
// fallback; writes go to a temp file and are renamed into place.
type Snapshot[T any] struct {
	path string
	ttl  time.Duration
}

// NewSnapshot stores entries with ttl instead of the writer's TTL when ttl > 0,
// so a snapshot can outlive the in-memory freshness window.
func NewSnapshot[T any](path string, ttl time.Duration) *Snapshot[T] {
	return &Snapshot[T]{path: path, ttl: ttl}
}

func (s *Snapshot[T]) Name() string { return "snapshot" }

func (s *Snapshot[T]) Path() string { return s.path }

func (s *Snapshot[T]) Load(context.Context) (Entry[T], bool, error) {
	var e Entry[T]
	if s.path == "" {
		return e, false, nil
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return e, false, nil
	}
	if err != nil {
		return e, false, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return e, false, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	return e, true, nil
}

func (s *Snapshot[T]) Store(_ context.Context, e Entry[T]) error {
	if s.path == "" {
		return nil
	}
	if s.ttl > 0 {
		e.TTL = s.ttl
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
