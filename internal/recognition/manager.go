package recognition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// ErrManagerClosed is returned by Start after StopAll.
var ErrManagerClosed = errors.New("session manager is shutting down")

// Manager manages live recognition sessions.
type Manager struct {
	sessions map[string]*Session
	opts     SessionOptions
	closed   bool
	mu       sync.RWMutex
}

// NewManager creates a session manager. Every session it starts shares opts.
func NewManager(opts SessionOptions) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// Start creates and registers a new session. It fails once StopAll was called.
func (m *Manager) Start(mode Mode) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	s := NewSession(uuid.NewString(), mode, m.opts)
	m.sessions[s.ID()] = s
	return s, nil
}

// Get retrieves a session by ID, nil if unknown.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// List returns the status of all sessions, oldest first.
func (m *Manager) List() []SessionStatus {
	m.mu.RLock()
	out := make([]SessionStatus, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Stop stops a session and removes it.
func (m *Manager) Stop(ctx context.Context, id string, policy FlushPolicy) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	return s.Stop(ctx, policy)
}

// StopAll stops every session and refuses new ones, used on shutdown.
func (m *Manager) StopAll(ctx context.Context, policy FlushPolicy) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Stop(ctx, policy); err != nil {
			errs = append(errs, fmt.Errorf("stopping session %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}
