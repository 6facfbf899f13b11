package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"places-server/models"

	"github.com/goccy/go-json"
)

// Keys of the persisted client state.
const (
	KeyCurrentUser  = "places_app_current_user"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Storage is a small string key-value store that survives restarts.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(keys ...string) error
}

// MemoryStorage keeps values in memory only.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStorage) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// FileStorage persists values as one JSON object on disk. Every write
// rewrites the file.
type FileStorage struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

// OpenFileStorage loads path if it exists. A missing file is an empty store.
func OpenFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{path: path, data: make(map[string]string)}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("client state %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.flushLocked()
}

func (s *FileStorage) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return s.flushLocked()
}

func (s *FileStorage) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func saveUser(s Storage, u *models.User) error {
	if u == nil {
		return s.Delete(KeyCurrentUser)
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.Set(KeyCurrentUser, string(raw))
}

// loadUser returns nil when no snapshot is stored or it cannot be decoded.
func loadUser(s Storage) *models.User {
	raw, ok := s.Get(KeyCurrentUser)
	if !ok || raw == "" {
		return nil
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil
	}
	return &u
}

func clearSession(s Storage) error {
	return s.Delete(KeyAccessToken, KeyRefreshToken, KeyCurrentUser, KeySessionCookies)
}
