package contextstore

import (
	"fmt"

	"github.com/sparesparrow/mia-sub000/pkg/models"
)

// GetUser returns a copy of the persisted user context, if any.
func (s *Store) GetUser(userID string) (*models.UserContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	clone := *user
	return &clone, true
}

// UpsertUser creates or replaces a user's persisted context and stamps
// last_activity.
func (s *Store) UpsertUser(user *models.UserContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.UserID == "" {
		return fmt.Errorf("contextstore: user id is required")
	}
	user.LastActivity = s.now()
	s.users[user.UserID] = user

	if err := s.saveUsers(); err != nil {
		return fmt.Errorf("contextstore: upsert user: %w", err)
	}
	return nil
}
