// Package tokenstore persists the session's token pair between runs.
// It is the localStorage analogue of the platform's web client: a small
// per-user key-value file that survives restarts but makes no
// cross-process invalidation promise.
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
)

// Store holds at most one token pair. Set and Clear must be immediately
// visible to subsequent Get calls in the same process.
type Store interface {
	Set(pair domain.TokenPair) error
	// Get reports the stored pair and whether one is present.
	Get() (domain.TokenPair, bool)
	Clear() error
}

type fileCredentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

// FileStore keeps the pair in a mode-0600 JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Set(pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := json.Marshal(fileCredentials{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	// Write-then-rename so a crash never leaves a torn file behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

func (s *FileStore) Get() (domain.TokenPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.TokenPair{}, false
	}

	var creds fileCredentials
	if err := json.Unmarshal(data, &creds); err != nil || creds.AccessToken == "" {
		return domain.TokenPair{}, false
	}

	return domain.TokenPair{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
	}, true
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

// MemStore holds the pair in memory only. Used for one-shot commands
// that should not touch the credentials file.
type MemStore struct {
	mu   sync.Mutex
	pair domain.TokenPair
	set  bool
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Set(pair domain.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair, s.set = pair, true
	return nil
}

func (s *MemStore) Get() (domain.TokenPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair, s.set
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair, s.set = domain.TokenPair{}, false
	return nil
}
