package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/drowse/schema"
	"pkt.systems/pslog"
)

// TabRecord captures a tab's metadata for persistence. Content handles do
// not survive a restart; restored tabs come back hibernated.
type TabRecord struct {
	ID           schema.TabID            `json:"id"`
	URL          string                  `json:"url"`
	Title        string                  `json:"title,omitempty"`
	FaviconRef   string                  `json:"favicon_ref,omitempty"`
	LastAccessed time.Time               `json:"last_accessed"`
	Pinned       bool                    `json:"pinned,omitempty"`
	Restore      *schema.RestoreSnapshot `json:"restore,omitempty"`
}

// SessionSnapshot captures the registry state for persistence.
type SessionSnapshot struct {
	Order          []schema.TabID     `json:"order"`
	Tabs           []TabRecord        `json:"tabs"`
	RecentlyClosed []schema.ClosedTab `json:"recently_closed,omitempty"`
}

// Store persists session snapshots to disk.
type Store struct {
	dir string
	log pslog.Logger
}

const sessionFile = "session.json"

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads the session snapshot from disk.
func (s *Store) Load() (SessionSnapshot, bool, error) {
	path := filepath.Join(s.dir, sessionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss")
			}
			return SessionSnapshot{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return SessionSnapshot{}, false, err
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "err", err)
		}
		return SessionSnapshot{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "tabs", len(snapshot.Tabs))
	}
	return snapshot, true, nil
}

// Save writes the session snapshot to disk atomically.
func (s *Store) Save(snapshot SessionSnapshot) error {
	path := filepath.Join(s.dir, sessionFile)
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return s.saveFailed(err)
	}
	tmp, err := os.CreateTemp(s.dir, "session-*.json")
	if err != nil {
		return s.saveFailed(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.saveFailed(err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return s.saveFailed(err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "tabs", len(snapshot.Tabs))
	}
	return nil
}

func (s *Store) saveFailed(err error) error {
	if s.log != nil {
		s.log.Warn("state save failed", "err", err)
	}
	return err
}
