package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoToken is returned by Load when nothing is stored
var ErrNoToken = errors.New("no stored token")

// Credentials is what survives between runs: the bearer token and the
// user it belongs to
type Credentials struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// TokenStore persists credentials
type TokenStore interface {
	Load() (*Credentials, error)
	Save(*Credentials) error
	Clear() error
}

// MemoryTokenStore keeps credentials for the life of the process
type MemoryTokenStore struct {
	mu    sync.RWMutex
	creds *Credentials
}

// NewMemoryTokenStore creates an empty in-memory store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (*Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds == nil {
		return nil, ErrNoToken
	}
	c := *s.creds
	return &c, nil
}

func (s *MemoryTokenStore) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *creds
	s.creds = &c
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}

// FileTokenStore keeps credentials in a JSON file readable only by the owner
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore stores credentials at path
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// DefaultTokenPath is credentials.json under the user's config directory
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "landregistry", "credentials.json"), nil
}

// Path returns the backing file
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Token == "" {
		return nil, ErrNoToken
	}
	return &creds, nil
}

func (s *FileTokenStore) Save(creds *Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
