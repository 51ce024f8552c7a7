// Package identity supplies the current user for scoping server queries.
package identity

import "sync"

// AnonymousID is the user id used when nobody is logged in; the backend
// accepts it for uploads and chat but keeps no per-user history for it.
const AnonymousID = "anonymous"

type User struct {
	ID       string
	Username string
	Email    string
}

func (u User) IsAnonymous() bool { return u.ID == "" || u.ID == AnonymousID }

// Provider yields the user all requests are issued as.
type Provider interface {
	CurrentUser() User
}

// Store is a Provider whose user can change at runtime (login, logout).
type Store struct {
	mu   sync.RWMutex
	user User
}

// NewStore returns a Store for the given user id, falling back to the
// anonymous user when id is empty.
func NewStore(id string) *Store {
	if id == "" {
		id = AnonymousID
	}
	return &Store{user: User{ID: id}}
}

func (s *Store) CurrentUser() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Store) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = AnonymousID
	}
	s.user = u
}

// Clear returns to the anonymous user.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = User{ID: AnonymousID}
}
