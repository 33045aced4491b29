package session

import "sync"

// Manager maps user ids to their live session, creating on first use.
// Sessions are in-memory only and die with the process; the saved-evaluation
// store is the durable path.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*Session)}
}

// Get returns the user's session, creating a fresh one if needed.
func (m *Manager) Get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = New()
		m.sessions[userID] = s
	}
	return s
}

// Drop discards a user's session (sign-out).
func (m *Manager) Drop(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
