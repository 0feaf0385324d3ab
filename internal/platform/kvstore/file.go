package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const fileExt = ".json"

// fileEnvelope is the on-disk layout of one entry.
type fileEnvelope struct {
	Version int64           `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// FileStore keeps each key in its own JSON file under a directory. Writes go
// to a temporary file that is renamed into place, so a crash never leaves a
// half-written entry behind.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}

func (s *FileStore) read(key string) (*fileEnvelope, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &env, nil
}

func (s *FileStore) write(key string, env fileEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := s.read(key)
	if err != nil {
		return nil, 0, err
	}
	return []byte(env.Value), env.Version, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) (int64, error) {
	if err := checkEntry(key, value); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	env, err := s.read(key)
	switch {
	case err == nil:
		version = env.Version
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}
	version++
	if err := s.write(key, fileEnvelope{Version: version, Value: value}); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *FileStore) CompareAndSet(_ context.Context, key string, value []byte, expected int64) (int64, error) {
	if err := checkEntry(key, value); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	env, err := s.read(key)
	switch {
	case err == nil:
		current = env.Version
	case !errors.Is(err, ErrNotFound):
		return 0, err
	}
	if current != expected {
		return 0, ErrVersionConflict
	}
	if err := s.write(key, fileEnvelope{Version: expected + 1, Value: value}); err != nil {
		return 0, err
	}
	return expected + 1, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
