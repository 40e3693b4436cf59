package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/patrickmn/go-cache"
)

// Store is a minimal string key/value store for credentials, the user
// profile and cached plan documents.
//
// For example, you could back this with:
//   - an in-memory map (MemoryStore)
//   - a JSON file on disk (FileStore)
//   - an OS keychain
type Store interface {
	Get(key string) (value string, found bool)
	Set(key, value string) error
	Delete(key string) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)

// MemoryStore keeps values for the life of the process.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	value, found := m.cache.Get(key)
	if !found {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

func (m *MemoryStore) Set(key, value string) error {
	m.cache.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

// FileStore persists a flat JSON object to disk. Every write rewrites the
// whole file through a temp file and rename.
type FileStore struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// OpenFileStore loads path if it exists. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.values); err != nil {
		return nil, fmt.Errorf("failed to parse store %s: %w", path, err)
	}
	return fs, nil
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.values[key]
	f.values[key] = value
	if err := f.flushLocked(); err != nil {
		if existed {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.values[key]
	if !existed {
		return nil
	}
	delete(f.values, key)
	if err := f.flushLocked(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

func (f *FileStore) flushLocked() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set store permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
