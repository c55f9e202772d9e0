// Handles login sessions, one active token per user.

package identity

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/maruel/urlshort/internal/flatdb"
	"github.com/maruel/urlshort/internal/storage"
)

// SessionService handles session management.
type SessionService struct {
	table flatdb.Table[storage.UserSession, string]
	mu    sync.Mutex
}

// NewSessionService creates a new session service.
func NewSessionService(table flatdb.Table[storage.UserSession, string]) *SessionService {
	return &SessionService{table: table}
}

// Start opens a session for userID with a new random token.
func (s *SessionService) Start(userID int64) (*storage.UserSession, error) {
	return s.Create(userID, uuid.NewString())
}

// Create opens a session for userID with the given token, ending the user's
// previous sessions.
func (s *SessionService) Create(userID int64, token string) (*storage.UserSession, error) {
	if userID <= 0 {
		return nil, errUserIDEmpty
	}
	if token == "" {
		return nil, errTokenRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Keep the previous sessions when the new token is unusable.
	if held, err := flatdb.Get(s.table, token); err == nil {
		if held.UserID != userID {
			return nil, &flatdb.UniqueViolationError{Table: s.table.Name(), Field: "token"}
		}
	} else if !errors.Is(err, flatdb.ErrNotFound) {
		return nil, err
	}
	if _, err := s.endAllForUser(userID); err != nil {
		return nil, err
	}
	sess, err := flatdb.Create(s.table, storage.UserSession{UserID: userID, Token: token})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Get retrieves a session by token.
func (s *SessionService) Get(token string) (*storage.UserSession, error) {
	if token == "" {
		return nil, errTokenRequired
	}
	sess, err := flatdb.Get(s.table, token)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// End deletes the session identified by token.
func (s *SessionService) End(token string) (*storage.UserSession, error) {
	if token == "" {
		return nil, errTokenRequired
	}
	sess, err := flatdb.Delete(s.table, token)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// EndAllForUser deletes every session of userID and returns how many were
// deleted.
func (s *SessionService) EndAllForUser(userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endAllForUser(userID)
}

func (s *SessionService) endAllForUser(userID int64) (int, error) {
	rows, err := flatdb.SearchFunc(s.table, func(sess storage.UserSession) bool { return sess.UserID == userID })
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range rows {
		if _, err := flatdb.Delete(s.table, sess.Token); err != nil {
			// Ended concurrently through End.
			if errors.Is(err, flatdb.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}
