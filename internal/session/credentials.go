package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/hms/console/internal/platform/apiclient"
)

const credentialsFileName = "credentials.json"

type credentialsFile struct {
	Server       string `json:"server,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}

// FileStore keeps the CLI's token pair and redirectUrl in a JSON credentials
// file readable only by the owner.
type FileStore struct {
	path string

	mu   sync.Mutex
	data credentialsFile
	err  error
}

// DefaultCredentialsPath returns ~/.hms/credentials.json.
func DefaultCredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".hms", credentialsFileName), nil
}

// OpenFileStore reads path if it exists. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return s, nil
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Server returns the backend the tokens were issued by.
func (s *FileStore) Server() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Server
}

// SetServer records the backend base URL alongside the tokens.
func (s *FileStore) SetServer(url string) {
	s.mu.Lock()
	s.data.Server = url
	s.writeLocked()
	s.mu.Unlock()
}

func (s *FileStore) Load() apiclient.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return apiclient.TokenPair{AccessToken: s.data.AccessToken, RefreshToken: s.data.RefreshToken}
}

func (s *FileStore) Save(p apiclient.TokenPair) {
	s.mu.Lock()
	s.data.AccessToken = p.AccessToken
	s.data.RefreshToken = p.RefreshToken
	s.writeLocked()
	s.mu.Unlock()
}

func (s *FileStore) LoadRedirect() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.RedirectURL
}

func (s *FileStore) SaveRedirect(path string) {
	s.mu.Lock()
	s.data.RedirectURL = path
	s.writeLocked()
	s.mu.Unlock()
}

// Err returns the last write error, if any.
func (s *FileStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FileStore) writeLocked() {
	s.err = nil
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.err = fmt.Errorf("create config directory: %w", err)
		return
	}
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		s.err = fmt.Errorf("marshal credentials: %w", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.err = fmt.Errorf("write credentials: %w", err)
	}
}
