package song

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultKey is the storage key the sequencer saves its document under.
const DefaultKey = "web-daw-song-data"

var ErrNotFound = errors.New("song not found")

// Store persists song documents under stable keys.
type Store interface {
	Load(key string) (*Song, error)
	Save(key string, s *Song) error
}

// FileStore keeps one document per key in Dir, named key + format extension.
type FileStore struct {
	Dir    string
	Format Format
}

func NewFileStore(dir string, f Format) *FileStore {
	return &FileStore{Dir: dir, Format: f}
}

func (fs *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(fs.Dir, key+fs.Format.Ext()), nil
}

func (fs *FileStore) Load(key string) (*Song, error) {
	path, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return Decode(data, fs.Format)
}

func (fs *FileStore) Save(key string, s *Song) error {
	path, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(fs.Dir, 0755); err != nil {
		return err
	}
	data, err := Encode(s, fs.Format)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MemoryStore keeps encoded documents in memory, so loads go through the
// same decoding and defaulting as files.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Load(key string) (*Song, error) {
	m.mu.Lock()
	data, ok := m.docs[key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Decode(data, FormatJSON)
}

func (m *MemoryStore) Save(key string, s *Song) error {
	data, err := Encode(s, FormatJSON)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[key] = data
	m.mu.Unlock()
	return nil
}

// Put stores a raw document, as if written by another client.
func (m *MemoryStore) Put(key string, data []byte) {
	m.mu.Lock()
	m.docs[key] = append([]byte(nil), data...)
	m.mu.Unlock()
}

// LoadFile reads a document from path, choosing the format by extension.
func LoadFile(path string) (*Song, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data, FormatForPath(path))
}

// SaveFile writes s to path, choosing the format by extension.
func SaveFile(path string, s *Song) error {
	data, err := Encode(s, FormatForPath(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
