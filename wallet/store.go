package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/timeboundbeats/titlerent/types"
)

// PersistedSession is the reconnect hint written after a successful
// connect. Only the account and network survive restarts; everything else
// is re-derived from the provider.
type PersistedSession struct {
	Account string           `json:"account"`
	Network types.NetworkKey `json:"network"`
}

// Store persists the reconnect hint. Load returns ok=false when nothing
// usable is stored.
type Store interface {
	Load() (PersistedSession, bool, error)
	Save(PersistedSession) error
	Clear() error
}

// MemoryStore keeps the hint in process memory, for tests and embedders
// that manage persistence themselves.
type MemoryStore struct {
	mu   sync.Mutex
	sess PersistedSession
	set  bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() (PersistedSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, s.set, nil
}

func (s *MemoryStore) Save(sess PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess, s.set = sess, true
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess, s.set = PersistedSession{}, false
	return nil
}

// FileStore persists the hint as a small JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Load() (PersistedSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return PersistedSession{}, false, nil
	}
	if err != nil {
		return PersistedSession{}, false, fmt.Errorf("read session file: %w", err)
	}
	var sess PersistedSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt hint is the same as no hint.
		return PersistedSession{}, false, nil
	}
	if sess.Account == "" {
		return PersistedSession{}, false, nil
	}
	return sess, true, nil
}

func (s *FileStore) Save(sess PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session file: %w", err)
	}
	return nil
}
