package booking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultSessionTimeout = 30 * time.Minute

// SessionStore manages booking sessions by id.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionStore creates a new session store.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// WithClock sets the time source used for expiry. It should match the
// workflow clock that stamps Session.UpdatedAt.
func (ss *SessionStore) WithClock(now func() time.Time) *SessionStore {
	if now != nil {
		ss.now = now
	}
	return ss
}

// Put stores a session under its id.
func (ss *SessionStore) Put(session *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[session.ID] = session
}

// Get returns a live session, or nil when it is unknown or expired.
func (ss *SessionStore) Get(id string) *Session {
	ss.mu.RLock()
	session, ok := ss.sessions[id]
	ss.mu.RUnlock()
	if !ok || session.IsExpired(ss.now(), ss.timeout) {
		return nil
	}
	return session
}

// Delete removes a session.
func (ss *SessionStore) Delete(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, id)
}

// Len returns the number of stored sessions, expired ones included.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Cleanup removes expired sessions.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	now := ss.now()
	removed := 0
	for id, session := range ss.sessions {
		if session.IsExpired(now, ss.timeout) {
			delete(ss.sessions, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (ss *SessionStore) RunCleanup(ctx context.Context, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ss.Cleanup(); n > 0 {
				logger.Debug().Int("removed", n).Msg("expired booking sessions removed")
			}
		}
	}
}
