package page

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/enessayaci/heybe/internal/domain"
)

// LocalStore persists the page's own copy of the session identity. It is a
// separate, independently mutable store from the bridge; only the reconciler
// writes to it.
type LocalStore interface {
	Load() (domain.StorageRecord, error)
	Save(record domain.StorageRecord) error
	Clear() error
}

// FileStore keeps the record as a JSON file, the page's persistent storage.
type FileStore struct {
	path string
}

// NewFileStore builds a FileStore rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

var _ LocalStore = (*FileStore)(nil)

// Load reads the persisted record. A missing file is an empty record.
func (f *FileStore) Load() (domain.StorageRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.StorageRecord{}, nil
		}
		return domain.StorageRecord{}, fmt.Errorf("read local state: %w", err)
	}
	var record domain.StorageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.StorageRecord{}, fmt.Errorf("decode local state: %w", err)
	}
	return record, nil
}

// Save writes the record atomically via a temp file rename.
func (f *FileStore) Save(record domain.StorageRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode local state: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write local state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace local state: %w", err)
	}
	return nil
}

// Clear removes the persisted record. A missing file already counts as
// cleared.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear local state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process LocalStore for tests and headless use.
type MemoryStore struct {
	mu     sync.Mutex
	record domain.StorageRecord
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ LocalStore = (*MemoryStore)(nil)

func (m *MemoryStore) Load() (domain.StorageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record, nil
}

func (m *MemoryStore) Save(record domain.StorageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = record
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = domain.StorageRecord{}
	return nil
}
