package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docshelf/backend/internal/logging"
	"github.com/docshelf/backend/internal/metrics"
	"github.com/docshelf/backend/internal/models"
)

// MaxSessionsPerUser limits concurrent sessions of a single user. The oldest
// session is dropped when a new one would exceed it.
const MaxSessionsPerUser = 10

// SessionKeepAliveWindow is how long an idle session is kept even if it has
// expired, so in-flight requests finish with a valid session.
const SessionKeepAliveWindow = 5 * time.Minute

// Manager tracks signed-in web sessions. The session id is the browser id
// carried in the auth token, so logout can revoke a token before it expires.
type Manager struct {
	sessions map[string]*models.WebSession
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a new session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*models.WebSession),
		now:      time.Now,
	}
}

// Create registers a new session for userID valid for ttl.
func (m *Manager) Create(userID string, ttl time.Duration) *models.WebSession {
	now := m.now()
	s := &models.WebSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	m.evictOldestIfNeeded(userID)
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(count)
	cp := *s
	return &cp
}

// evictOldestIfNeeded drops the oldest sessions of userID at capacity.
// Callers hold the write lock.
func (m *Manager) evictOldestIfNeeded(userID string) {
	for {
		var oldest *models.WebSession
		n := 0
		for _, s := range m.sessions {
			if s.UserID != userID {
				continue
			}
			n++
			if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
				oldest = s
			}
		}
		if n < MaxSessionsPerUser || oldest == nil {
			return
		}
		delete(m.sessions, oldest.ID)
		logging.Debug("evicted oldest session", zap.String("user", userID), zap.String("session", oldest.ID))
	}
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*models.WebSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Touch marks a session as used and reports whether it is still valid.
// Unknown and expired sessions are not valid.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	now := m.now()
	if s.Expired(now) {
		return false
	}
	s.LastSeen = now
	return true
}

// Revoke ends a session. It reports whether the session existed.
func (m *Manager) Revoke(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(count)
	return ok
}

// RevokeUser ends all sessions of userID and returns how many were removed.
func (m *Manager) RevokeUser(userID string) int {
	m.mu.Lock()
	n := 0
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			n++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(count)
	return n
}

// CleanupOldSessions removes expired sessions, but keeps sessions that have
// been used within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions() int {
	m.mu.Lock()
	now := m.now()
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	removed := 0
	for id, s := range m.sessions {
		if !s.Expired(now) {
			continue
		}
		if s.LastSeen.After(keepAliveCutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.SetActiveSessions(count)
	if removed > 0 {
		logging.Info("cleaned up expired sessions", zap.Int("removed", removed), zap.Int("active", count))
	}
	return removed
}

// Count returns the number of tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
