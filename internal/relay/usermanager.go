package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/streamgate/internal/models"
)

// UserManager maps (username, fingerprint_session_key) to the one live
// session for that pairing and enforces per-user connection caps.
type UserManager struct {
	mu       sync.RWMutex
	sessions map[string]*models.UserSession

	idleTTL time.Duration
	logger  *slog.Logger

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewUserManager creates a manager whose idle sweep removes sessions that
// have not been touched within idleTTL.
func NewUserManager(idleTTL time.Duration, logger *slog.Logger) *UserManager {
	return &UserManager{
		sessions:  make(map[string]*models.UserSession),
		idleTTL:   idleTTL,
		logger:    logger,
		stopSweep: make(chan struct{}),
	}
}

// StartSweep launches the background goroutine that evicts idle sessions.
// Call Stop to terminate it.
func (m *UserManager) StartSweep(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweepIdle()
			case <-m.stopSweep:
				return
			}
		}
	}()
}

// Stop terminates the idle sweep goroutine. Safe to call multiple times.
func (m *UserManager) Stop() {
	m.sweepOnce.Do(func() { close(m.stopSweep) })
}

func (m *UserManager) sweepIdle() {
	cutoff := time.Now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.sessions {
		if s.LastTouch.Before(cutoff) {
			delete(m.sessions, key)
			m.logger.Debug("evicted idle session", "key", key, "username", s.Username)
		}
	}
}

// UserConnections counts live sessions for username.
func (m *UserManager) UserConnections(username string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Username == username {
			count++
		}
	}
	return count
}

// IsUserBlockedForStream reports whether username already has a live
// session for virtualID, preventing a duplicate simultaneous join.
func (m *UserManager) IsUserBlockedForStream(username string, virtualID uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Username == username && s.VirtualID == virtualID {
			return true
		}
	}
	return false
}

// CreateUserSession computes the session's permission from the user's
// max_connections against their current count, stores the session, and
// returns its opaque token.
func (m *UserManager) CreateUserSession(user *models.UserCredentials, fingerprintKey string, virtualID uint32, providerName, streamURL string) *models.UserSession {
	token := uuid.NewString()

	count := m.UserConnections(user.Username)
	permission := models.PermissionAllowed
	switch {
	case user.MaxConnections == 0:
		permission = models.PermissionAllowed
	case count < user.MaxConnections:
		permission = models.PermissionAllowed
	case count == user.MaxConnections:
		permission = models.PermissionGracePeriod
	default:
		permission = models.PermissionExhausted
	}

	now := time.Now()
	session := &models.UserSession{
		FingerprintKey: fingerprintKey,
		Username:       user.Username,
		VirtualID:      virtualID,
		ProviderName:   providerName,
		StreamURL:      streamURL,
		Token:          token,
		Permission:     permission,
		CreatedAt:      now,
		LastTouch:      now,
	}

	m.mu.Lock()
	m.sessions[session.Key()] = session
	m.mu.Unlock()
	return session
}

// GetAndUpdateUserSession touches last_touch and returns the session for
// (username, fingerprintKey, virtualID), if any.
func (m *UserManager) GetAndUpdateUserSession(username, fingerprintKey string, virtualID uint32) *models.UserSession {
	key := sessionKey(username, fingerprintKey, virtualID)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}
	s.LastTouch = time.Now()
	return s
}

// RemoveSession deletes the session identified by (username, fingerprintKey,
// virtualID). Safe to call on a session that no longer exists.
func (m *UserManager) RemoveSession(username, fingerprintKey string, virtualID uint32) {
	key := sessionKey(username, fingerprintKey, virtualID)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// ActiveStreams returns an ordered snapshot of every live session, retained
// for parity with a tuner-status style introspection endpoint.
func (m *UserManager) ActiveStreams() []models.UserSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.UserSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

func sessionKey(username, fingerprintKey string, virtualID uint32) string {
	return fmt.Sprintf("%s\x00%s\x00%d", username, fingerprintKey, virtualID)
}
