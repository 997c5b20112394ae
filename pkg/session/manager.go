package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"dicomlabeler/pkg/config"
	"dicomlabeler/pkg/ingest"
)

// Manager owns the live sessions, keyed by ID
type Manager struct {
	cfg     *config.Config
	fetcher *ingest.Fetcher

	sessions map[string]*Session
	mu       sync.RWMutex
}

// New creates a session manager using cfg for scratch locations,
// ingestion limits and processing parameters
func New(cfg *config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		fetcher:  ingest.NewFetcher(cfg.Ingest.DownloadTimeout, cfg.Ingest.MaxArchiveBytes),
		sessions: make(map[string]*Session),
	}
}

// Create starts a new empty session
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.cfg, m.fetcher)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("Session created", "session_id", s.ID)
	return s
}

// Get returns the session with the given ID
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete removes a session and its scratch directories. It reports
// whether the session existed.
func (m *Manager) Delete(id string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false, nil
	}

	slog.Info("Session deleted", "session_id", id)
	return true, s.Close()
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close deletes every session
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
