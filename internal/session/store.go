package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store persists the session between runs.
type Store interface {
	Load() (Session, bool, error)
	Save(Session) error
	Clear() error
}

// FileStore keeps the session in a YAML file readable only by the owner.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (Session, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("read %s: %w", s.Path, err)
	}
	var stored Session
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return Session{}, false, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return stored, true, nil
}

func (s FileStore) Save(session Session) error {
	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("install session: %w", err)
	}
	return nil
}

func (s FileStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.Path, err)
	}
	return nil
}

// MemoryStore keeps the session for the life of the process only.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

func (s *MemoryStore) Load() (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, false, nil
	}
	return *s.session, true, nil
}

func (s *MemoryStore) Save(session Session) error {
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}
