package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/comunergy/energy-wallet/internal/logger"
)

// Session storage keys. Read and written as a group on every state transition.
const (
	KeyAgentID           = "walletId"
	KeyAddress           = "walletAddress"
	KeyNetwork           = "walletNetwork"
	KeyNetworkPassphrase = "networkPassphrase"
)

const sessionFile = "session.json"

// Store is a durable key/value store that survives restarts. A missing or
// unreadable backing file behaves as an empty store, never as an error.
// The reconcile loop and user-initiated calls write concurrently; the mutex
// keeps each read-modify-write of the backing file whole.
type Store struct {
	dir string
	mu  sync.Mutex
}

// GetAppDataDir returns the application data directory
func GetAppDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	appDataDir := filepath.Join(homeDir, ".energy-wallet")
	if err := os.MkdirAll(appDataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create app data directory: %w", err)
	}

	return appDataDir, nil
}

// New creates a store backed by the default application data directory.
func New() *Store {
	dir, err := GetAppDataDir()
	if err != nil {
		logger.Warn("Session store unavailable, continuing with empty store: %v", err)
		return &Store{}
	}
	return &Store{dir: dir}
}

// NewAt creates a store backed by the given directory.
func NewAt(dir string) *Store {
	return &Store{dir: dir}
}

// Get returns the value for key, or the empty string when the key is absent
// or the store is unavailable.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()[key]
}

// Set persists the value for key.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	values[key] = value
	s.save(values)
}

// Remove deletes the key.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	delete(values, key)
	s.save(values)
}

// SetGroup persists all given keys in a single write.
func (s *Store) SetGroup(group map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := s.load()
	for key, value := range group {
		if value == "" {
			delete(values, key)
		} else {
			values[key] = value
		}
	}
	s.save(values)
}

func (s *Store) load() map[string]string {
	values := make(map[string]string)
	if s.dir == "" {
		return values
	}

	fileData, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("Failed to read session store: %v", err)
		}
		return values
	}

	if err := json.Unmarshal(fileData, &values); err != nil {
		logger.Warn("Session store is corrupted, starting empty: %v", err)
		return make(map[string]string)
	}

	return values
}

func (s *Store) save(values map[string]string) {
	if s.dir == "" {
		return
	}

	jsonData, err := json.Marshal(values)
	if err != nil {
		logger.Error("Failed to marshal session store: %v", err)
		return
	}

	if err := os.WriteFile(filepath.Join(s.dir, sessionFile), jsonData, 0600); err != nil {
		logger.Warn("Failed to write session store: %v", err)
	}
}
