package contextstore

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// SessionPatch is a partial update applied in-place by UpdateSession. A nil
// field is left untouched; a non-nil field replaces the session's value.
type SessionPatch struct {
	LastIntent       *string
	LastParameters   map[string]string
	LastUsedService  *string
	PerServiceState  map[string]string
	Variables        map[string]string
	ConversationType *string
}

// CreateSession mints a random session id for userID and persists a new,
// empty session.
func (s *Store) CreateSession(userID string, iface models.InterfaceKind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := uuid.NewString()
	s.sessions[id] = &models.SessionContext{
		SessionID:    id,
		UserID:       userID,
		Interface:    iface,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := s.saveSessions(); err != nil {
		return "", fmt.Errorf("contextstore: create session: %w", err)
	}
	return id, nil
}

// GetSession returns the session only if it is still active, touching
// last_accessed and persisting on every successful lookup.
func (s *Store) GetSession(sessionID string) (*models.SessionContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	now := s.now()
	if !sess.Active(now, s.activeWindow) {
		return nil, false
	}
	sess.LastAccessed = now
	_ = s.saveSessions()

	clone := *sess
	return &clone, true
}

// UpdateSession applies patch to an existing session and touches
// last_accessed. The session's activity window is not checked.
func (s *Store) UpdateSession(sessionID string, patch SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("contextstore: session %q not found", sessionID)
	}

	if patch.LastIntent != nil {
		sess.LastIntent = *patch.LastIntent
	}
	if patch.LastParameters != nil {
		sess.LastParameters = patch.LastParameters
	}
	if patch.LastUsedService != nil {
		sess.LastUsedService = *patch.LastUsedService
	}
	if patch.PerServiceState != nil {
		sess.PerServiceState = patch.PerServiceState
	}
	if patch.Variables != nil {
		sess.Variables = patch.Variables
	}
	if patch.ConversationType != nil {
		sess.ConversationType = *patch.ConversationType
	}
	sess.LastAccessed = s.now()

	if err := s.saveSessions(); err != nil {
		return fmt.Errorf("contextstore: update session: %w", err)
	}
	return nil
}

// AddToHistory appends one command/response pair to the session's history,
// truncating to the most recent maxHistory entries.
func (s *Store) AddToHistory(sessionID, command, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("contextstore: session %q not found", sessionID)
	}

	now := s.now()
	sess.History = append(sess.History, models.HistoryEntry{
		Command:   command,
		Response:  response,
		Timestamp: now,
	})
	if len(sess.History) > s.maxHistory {
		sess.History = sess.History[len(sess.History)-s.maxHistory:]
	}
	sess.LastAccessed = now

	if err := s.saveSessions(); err != nil {
		return fmt.Errorf("contextstore: add to history: %w", err)
	}
	return nil
}

// CleanupExpiredSessions drops every session whose active window has
// elapsed and persists once. Returns the number of sessions removed.
func (s *Store) CleanupExpiredSessions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.Active(now, s.activeWindow) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.saveSessions(); err != nil {
		return removed, fmt.Errorf("contextstore: cleanup expired sessions: %w", err)
	}
	return removed, nil
}
