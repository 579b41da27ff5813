package agent

import (
	"log"
	"sync"
	"time"

	"github.com/uleaarn/paahi-backend/internal/metrics"
)

// Manager tracks live sessions by stream id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

func NewManager(m *metrics.Metrics) *Manager {
	return &Manager{sessions: make(map[string]*Session), metrics: m}
}

// Add registers s. A session already registered under the same id is closed
// first. The session removes itself when closed.
func (m *Manager) Add(s *Session) {
	s.mu.Lock()
	s.onClose = m.remove
	s.mu.Unlock()

	m.mu.Lock()
	prev := m.sessions[s.ID()]
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	if prev != nil && prev != s {
		log.Printf("[%s] replacing existing session", s.ID())
		prev.Close()
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if m.sessions[s.ID()] == s {
		delete(m.sessions, s.ID())
	}
	m.mu.Unlock()
	m.metrics.SessionClosed(time.Since(s.startedAt).Seconds())
}

// Get returns the live session for id, if any.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every live session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
