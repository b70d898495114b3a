package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps one Session per loaded page and sweeps idle ones.
type Manager struct {
	deps Deps
	idle time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Sessions untouched for idle are swept.
func NewManager(deps Deps, idle time.Duration) *Manager {
	return &Manager{
		deps:     deps.withDefaults(),
		idle:     idle,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session for a freshly loaded page.
func (m *Manager) Create() *Session {
	s := New(uuid.NewString(), m.deps)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.deps.Stats.IncrementSessionsCreated()
	s.log.Debug("Session created")
	return s
}

// Get returns the session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.deps.Now())
	return s, nil
}

// Delete tears a session down, releasing its references.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the idle timeout. Sessions with
// an open event subscription are kept.
func (m *Manager) Sweep() int {
	cutoff := m.deps.Now().Add(-m.idle)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.Subscribers() == 0 && s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		m.deps.Stats.AddSessionsExpired(len(expired))
		m.deps.Logger.WithField("count", len(expired)).Info("Swept idle sessions")
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
