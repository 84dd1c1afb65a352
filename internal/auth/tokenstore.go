package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoToken means the store holds no persisted token.
var ErrNoToken = errors.New("no stored token")

// TokenStore is a single mutable slot for the bearer token. Save overwrites,
// never appends; last writer wins across processes.
type TokenStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	SavedAt     time.Time `json:"saved_at"`
}

// FileTokenStore persists the token as a JSON file with owner-only
// permissions, the way CLI tools keep credentials under the user's data dir.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore stores the token at dir/token.json.
func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{path: filepath.Join(dir, "token.json")}
}

func (s *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	data, err := json.MarshalIndent(tokenFile{AccessToken: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("parsing token file: %w", err)
	}
	if tf.AccessToken == "" {
		return "", ErrNoToken
	}
	return tf.AccessToken, nil
}

func (s *FileTokenStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// MemoryTokenStore is an in-process slot used by tests.
type MemoryTokenStore struct {
	token string
	has   bool
}

func (s *MemoryTokenStore) Save(token string) error {
	s.token, s.has = token, true
	return nil
}

func (s *MemoryTokenStore) Load() (string, error) {
	if !s.has {
		return "", ErrNoToken
	}
	return s.token, nil
}

func (s *MemoryTokenStore) Clear() error {
	s.token, s.has = "", false
	return nil
}
